package app

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/i474232898/weather-ingest/internal/config"
	"github.com/i474232898/weather-ingest/internal/ingest"
	"github.com/i474232898/weather-ingest/internal/ingest/providers"
	"github.com/i474232898/weather-ingest/internal/store"
)

// App bundles the pipeline with the resources it owns.
type App struct {
	Pipeline *ingest.Pipeline
	Ledger   store.Ledger
	Config   *config.AppConfig
	Logger   *zap.Logger
}

// Build wires the fetcher, the configured ledger and the pipeline.
// The caller must Close the returned App.
func Build(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*App, error) {
	ledger, err := store.Open(ctx, LedgerOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("open %s ledger: %w", cfg.Ledger.Driver, err)
	}
	return New(cfg, logger, ledger), nil
}

// New builds an App around an already opened ledger.
func New(cfg *config.AppConfig, logger *zap.Logger, ledger store.Ledger) *App {
	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	var limiter *rate.Limiter
	if cfg.ProviderRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.ProviderRateLimit), 1)
	}

	fetcher := providers.NewWeatherAPIFetcher(httpClient, cfg.ProviderEndpoint, cfg.APIKey, limiter)
	pipeline := ingest.NewPipeline(
		ingest.SourceKeyBuilder{Endpoint: cfg.ProviderEndpoint},
		fetcher,
		ledger,
		ingest.WithLogger(logger.Named("pipeline")),
	)

	return &App{
		Pipeline: pipeline,
		Ledger:   ledger,
		Config:   cfg,
		Logger:   logger,
	}
}

// LedgerOptions maps configuration onto store.Options.
func LedgerOptions(cfg *config.AppConfig) store.Options {
	return store.Options{
		Driver:   cfg.Ledger.Driver,
		DSN:      cfg.Ledger.DSN,
		Project:  cfg.Ledger.Project,
		Dataset:  cfg.Ledger.Dataset,
		Table:    cfg.Ledger.Table,
		Location: cfg.Ledger.Location,
	}
}

// Run ingests (location, date) bounded by the configured run timeout.
func (a *App) Run(ctx context.Context, location, date string) ingest.Outcome {
	ctx, cancel := context.WithTimeout(ctx, a.Config.RunTimeout)
	defer cancel()
	return a.Pipeline.Run(ctx, location, date)
}

// Lookup reports whether (location, date) is already recorded.
func (a *App) Lookup(ctx context.Context, location, date string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, a.Config.RunTimeout)
	defer cancel()
	return a.Pipeline.Lookup(ctx, location, date)
}

// Close releases the ledger and flushes the logger.
func (a *App) Close() error {
	_ = a.Logger.Sync()
	return a.Ledger.Close()
}
