package ingest

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SourceConfig is one source definition, loaded from a yaml file in the
// sources directory. The file name (without extension) is the default name.
type SourceConfig struct {
	Name     string         `yaml:"name"`
	URL      string         `yaml:"url"`
	Category string         `yaml:"category"`
	Settings SourceSettings `yaml:"settings"`
}

type SourceSettings struct {
	Enabled        bool `yaml:"enabled"`
	ExtractContent bool `yaml:"extract_content"`
}

// LoadSourceConfigs reads every *.yml file in the directory. A missing
// directory yields an empty list, not an error; a broken file fails the load
// so misconfiguration surfaces at startup instead of silently dropping a source.
func LoadSourceConfigs(dir string) ([]SourceConfig, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.yml"))
	if err != nil {
		return nil, fmt.Errorf("failed to find YML files: %w", err)
	}

	configs := make([]SourceConfig, 0, len(files))
	for _, file := range files {
		config, err := parseSourceConfig(file)
		if err != nil {
			return nil, fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Source configuration loaded",
			"source", config.Name, "url", config.URL, "enabled", config.Settings.Enabled)
		configs = append(configs, *config)
	}

	return configs, nil
}

func parseSourceConfig(file string) (*SourceConfig, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var config SourceConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if config.Name == "" {
		config.Name = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	}
	if config.URL == "" {
		return nil, fmt.Errorf("source URL is required")
	}

	return &config, nil
}
