// Package cli provides common CLI initialization utilities shared by
// cmd/finassist, cmd/anomaly-worker and cmd/detect.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"finassist/internal/backend"
	"finassist/internal/config"
	"finassist/internal/log"
	"finassist/internal/telemetry"
)

// SetupLogger initializes structured logging at info level and sets it as
// the default logger. Call ApplyLogLevel once the configuration is loaded.
func SetupLogger(component string) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Component = component
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// ApplyLogLevel rebuilds the logger at the configured level.
func ApplyLogLevel(logger *log.Logger, cfg *config.Config) *log.Logger {
	level, err := cfg.SlogLevel()
	if err != nil || level == slog.LevelInfo {
		return logger
	}
	lc := log.DefaultConfig()
	lc.Level = level
	lc.Component = logger.Component()
	next := log.New(lc)
	log.SetDefault(next)
	return next
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// InitBackend opens the configured transaction store.
// Returns the backend result or exits the process on failure.
func InitBackend(ctx context.Context, logger *log.Logger, cfg *config.Config) *backend.BackendResult {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	return res
}

// InitTracing registers the OTLP tracer provider when an endpoint is set.
// Failures are logged and tracing stays disabled.
func InitTracing(ctx context.Context, logger *log.Logger, cfg *config.Config) telemetry.ShutdownFunc {
	shutdown, err := telemetry.SetupTracing(ctx, cfg.OTELExporterEndpoint, cfg.ServiceName)
	if err != nil {
		logger.Warn("Tracing disabled", "error", err, "endpoint", cfg.OTELExporterEndpoint)
	}
	return shutdown
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
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

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
