package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DBPath string `long:"db-path" env:"DB_PATH" default:"./data/news-comb.db" description:"Path to the SQLite database file"`

	// Application configuration
	SourcesDir        string `long:"sources-dir" env:"SOURCES_DIR" default:"./sources" description:"Directory containing source configuration files"`
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	CycleInterval     int    `long:"cycle-interval" env:"CYCLE_INTERVAL" default:"300" description:"Ingestion cycle interval in seconds"`
	SourceDelay       int    `long:"source-delay" env:"SOURCE_DELAY" default:"1000" description:"Delay between source fetches in milliseconds"`
	FetchTimeout      int    `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"20" description:"Per-source fetch timeout in seconds"`
	MaxItemsPerSource int    `long:"max-items-per-source" env:"MAX_ITEMS_PER_SOURCE" default:"50" description:"Maximum feed entries processed per source per cycle"`
	ResolveBatchSize  int    `long:"resolve-batch-size" env:"RESOLVE_BATCH_SIZE" default:"100" description:"Number of recent items resolved per cycle"`
	TimeWindowHours   int    `long:"time-window-hours" env:"TIME_WINDOW_HOURS" default:"6" description:"Trailing window for duplicate candidates in hours"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"News Comb/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:            raw.DBPath,
		SourcesDir:        raw.SourcesDir,
		Port:              raw.Port,
		CycleInterval:     raw.CycleInterval,
		SourceDelay:       raw.SourceDelay,
		FetchTimeout:      raw.FetchTimeout,
		MaxItemsPerSource: raw.MaxItemsPerSource,
		ResolveBatchSize:  raw.ResolveBatchSize,
		TimeWindowHours:   raw.TimeWindowHours,
		APIAccessKey:      raw.APIAccessKey,
		UserAgent:         raw.UserAgent,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			fmt.Printf("Timezone configured: %s\n", timezone)
		}
	}
	return nil
}
