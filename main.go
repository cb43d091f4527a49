package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/padm/dwh/clients/duckdb"
	"github.com/padm/dwh/lib/config"
	"github.com/padm/dwh/lib/logger"
	"github.com/padm/dwh/lib/telemetry/metrics"
	"github.com/padm/dwh/processes/bronze"
	"github.com/padm/dwh/processes/transform"
)

func main() {
	// Parse args into settings.
	settings, err := config.LoadSettings(os.Args[1:], true)
	if err != nil {
		logger.Fatal("Failed to load settings", slog.Any("err", err))
	}

	// Initialize default logger
	_logger, usingSentry := logger.NewLogger(settings)
	slog.SetDefault(_logger)
	if usingSentry {
		defer logger.Flush()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Loading Telemetry
	metricsClient := metrics.LoadExporter(settings.Config)
	defer func() {
		if err := metricsClient.Flush(); err != nil {
			slog.Warn("Failed to flush metrics", slog.Any("err", err))
		}
	}()

	slog.Info("Config is loaded",
		slog.Int("sources", len(settings.Config.Sources)),
		slog.String("destination", settings.Config.Destination.Path),
		slog.Any("resources", settings.Config.Bronze.Resources),
		slog.Int("extract_workers", settings.Config.Bronze.Workers.Extract),
		slog.Int("normalize_workers", settings.Config.Bronze.Workers.Normalize),
		slog.Int("load_workers", settings.Config.Bronze.Workers.Load),
	)

	summary, err := bronze.Run(ctx, settings.Config, metricsClient)
	if err != nil {
		logger.Fatal("Bronze run failed", slog.Any("err", err))
	}

	if !settings.SkipTransform {
		store, err := duckdb.Open(ctx, settings.Config.Destination)
		if err != nil {
			logger.Fatal("Failed to open destination", slog.Any("err", err))
		}

		_, err = transform.Run(ctx, store, settings.Config.Transform.Steps, metricsClient)
		if closeErr := store.Close(); closeErr != nil {
			slog.Warn("Failed to close destination", slog.Any("err", closeErr))
		}
		if err != nil {
			logger.Fatal("Transform failed", slog.Any("err", err))
		}
	}

	if failed := summary.Failed(); len(failed) > 0 {
		logger.Fatal("Some resources failed", slog.Any("resources", failed))
	}
}
