package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/news-comb/app/api"
	"github.com/lysyi3m/news-comb/app/cfg"
	"github.com/lysyi3m/news-comb/app/database"
	"github.com/lysyi3m/news-comb/app/dedup"
	"github.com/lysyi3m/news-comb/app/feed"
	"github.com/lysyi3m/news-comb/app/ingest"
	"github.com/lysyi3m/news-comb/app/scheduler"
)

func main() {
	appConfig, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appConfig == nil {
		// Help was shown, exit gracefully
		return
	}

	if appConfig.Debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	slog.Info("Starting News Comb server", "version", appConfig.Version)

	db, err := database.NewConnection(appConfig.DBPath)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", appConfig.DBPath, "migration_version", version, "dirty", dirty)

	sourceRepo := database.NewSourceRepository(db)
	itemRepo := database.NewItemRepository(db)

	// Register configured sources in the database
	configs, err := ingest.LoadSourceConfigs(appConfig.SourcesDir)
	if err != nil {
		slog.Error("Failed to load source configurations", "error", err)
		os.Exit(1)
	}

	registeredCount := 0
	for _, config := range configs {
		id, err := sourceRepo.UpsertSource(config.Name, config.URL, config.Category,
			config.Settings.Enabled, config.Settings.ExtractContent)
		if err != nil {
			slog.Warn("Failed to register source", "source", config.Name, "error", err)
			continue
		}
		slog.Info("Registered source", "source", config.Name, "id", id, "url", config.URL)
		registeredCount++
	}
	slog.Info("Source registration completed", "registered", registeredCount, "configured", len(configs))

	// Core components
	httpClient := &http.Client{
		Timeout: time.Duration(appConfig.FetchTimeout) * time.Second,
	}
	feedParser := feed.NewParser()
	contentExtractor := feed.NewContentExtractor()

	ingestor := ingest.NewIngestor(sourceRepo, itemRepo, httpClient, feedParser, contentExtractor,
		ingest.Options{
			UserAgent:         appConfig.UserAgent,
			SourceDelay:       time.Duration(appConfig.SourceDelay) * time.Millisecond,
			FetchTimeout:      time.Duration(appConfig.FetchTimeout) * time.Second,
			MaxItemsPerSource: appConfig.MaxItemsPerSource,
		})

	resolver := dedup.NewResolver(itemRepo, time.Duration(appConfig.TimeWindowHours)*time.Hour)

	runner := scheduler.NewRunner(ingestor, resolver,
		time.Duration(appConfig.CycleInterval)*time.Second, appConfig.ResolveBatchSize)
	runner.Start()
	defer runner.Stop()

	// HTTP server
	apiHandler := api.NewHandler(itemRepo, sourceRepo, runner)
	server := api.NewServer(apiHandler, appConfig.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appConfig.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appConfig.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	slog.Info("News Comb server started successfully")

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	slog.Info("News Comb server shutdown complete")
}
