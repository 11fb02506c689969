package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"dailyaed/internal/cli"
	apphttp "dailyaed/internal/http"
	applog "dailyaed/internal/log"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger("info", applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg.LogLevel, applog.ComponentApp)

	app, err := cli.OpenApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to open record store", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		Records:            app.Records,
		JWTSecret:          []byte(cfg.JWTSecret),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
		Export:             cfg.ExportOptions(),
		Ready:              app.Backend.Store.Ping,
		Logger:             logger.WithComponent(applog.ComponentHTTP),
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if err := app.Close(); err != nil {
			logger.Error("Failed to close record store", applog.FieldError, err)
		}
	})

	logger.Info("Starting dailyaed server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"timezone", app.Location.String(),
		"auth", cfg.JWTSecret != "",
		"amqp", app.Backend.Publisher != nil)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		_ = app.Close()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
