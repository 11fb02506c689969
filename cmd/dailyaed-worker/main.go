package main

import (
	"context"
	"errors"
	"os"
	"time"

	"dailyaed/internal/cli"
	"dailyaed/internal/config"
	applog "dailyaed/internal/log"
	"dailyaed/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger("info", applog.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg.LogLevel, applog.ComponentWorker)

	if cfg.DataBackend == config.BackendMemory {
		logger.Error("The sync worker needs a shared store; set DATA_BACKEND to sqlite or postgres")
		os.Exit(1)
	}

	logger.Info("Starting dailyaed-worker", "backend", cfg.DataBackend)

	app, err := cli.OpenApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to open record store", applog.FieldError, err)
		os.Exit(1)
	}

	mirror, err := cli.OpenMirror(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
		_ = app.Close()
		os.Exit(1)
	}
	logger.WithComponent(applog.ComponentSheets).Info("Google Sheets client initialized",
		"spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)

	syncWorker := worker.NewSyncWorker(app.Backend.Store, mirror, cfg.SyncBatchSize)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := syncWorker.Stop(ctx); err != nil {
			logger.Warn("Sync worker did not stop cleanly", applog.FieldError, err)
		}
		if err := app.Close(); err != nil {
			logger.Error("Failed to close record store", applog.FieldError, err)
		}
	})

	// Rows saved while the worker was down are still pending.
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", applog.FieldError, err)
	}

	if err := syncWorker.Start(ctx, cfg.SyncInterval); err != nil {
		logger.Error("Failed to start periodic sync", applog.FieldError, err)
		os.Exit(1)
	}

	if consumer := app.Backend.Publisher; consumer != nil {
		go func() {
			err := consumer.ConsumeRecordSync(ctx, syncWorker.HandleSyncMessage)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption stopped; relying on periodic sync",
					applog.FieldError, err)
			}
		}()
	} else {
		logger.Info("AMQP not configured; relying on periodic sync", "interval", cfg.SyncInterval)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
