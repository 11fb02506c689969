// Package cli holds the start-up helpers shared by the binaries and the
// dailyaedctl command tree.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"dailyaed/internal/backend"
	"dailyaed/internal/cache"
	"dailyaed/internal/config"
	"dailyaed/internal/core"
	applog "dailyaed/internal/log"
	"dailyaed/internal/metrics"
	"dailyaed/internal/services"
)

// SetupLogger builds the process logger at level and installs it as the
// slog default.
func SetupLogger(level, component string) *applog.Logger {
	cfg := applog.DefaultConfig()
	cfg.Level = applog.ParseLevel(level)
	cfg.Component = component
	logger := applog.New(cfg)
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *applog.Logger) *config.Config {
	cfg, err := LoadConfig()
	if err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// LoadConfig is LoadAndValidateConfig without the exit.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// App is an opened backend with the record service on top of it.
type App struct {
	Config   *config.Config
	Backend  *backend.BackendResult
	Records  *services.RecordService
	Location *time.Location
	caches   *cache.Manager
}

// OpenApp opens the configured store (and AMQP publisher when configured)
// and builds the record service with its month cache. extra options are
// applied last.
func OpenApp(ctx context.Context, cfg *config.Config, logger *applog.Logger, extra ...services.Option) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("open backend: %w", err)
	}

	opts := []services.Option{
		services.WithLocation(loc),
		services.WithLogger(logger),
	}
	if res.Publisher != nil {
		opts = append(opts, services.WithPublisher(res.Publisher, res.Store))
	}

	app := &App{Config: cfg, Backend: res, Location: loc}
	if cfg.CacheSize > 0 {
		months := cache.NewLRUCache[core.MonthlyAggregate](cfg.CacheSize, cfg.CacheTTL)
		opts = append(opts, services.WithMonthCache(months))
		metrics.SetMonthCacheEvictions(months.Evictions)

		app.caches = cache.NewManager(logger.WithComponent(applog.ComponentCache).Logger)
		app.caches.Register(months)
		app.caches.StartCleanup(time.Minute)
	}

	app.Records = services.NewRecordService(res.Store, append(opts, extra...)...)
	return app, nil
}

// Close stops the cache cleanup and closes the store and publisher.
func (a *App) Close() error {
	if a.caches != nil {
		a.caches.Stop()
	}
	return a.Records.Close()
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup ran.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
