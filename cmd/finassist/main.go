package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"finassist/internal/cli"
	apphttp "finassist/internal/http"
	"finassist/internal/log"
	"finassist/internal/services"
	"finassist/internal/telemetry"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.ApplyLogLevel(logger, cfg)

	ctx := context.Background()
	shutdownTracing := cli.InitTracing(ctx, logger, cfg)

	store := cli.InitBackend(ctx, logger, cfg)

	svc := services.NewAnomalyService(store.Backend,
		services.WithForestSeed(cfg.ForestSeed),
		services.WithMetrics(telemetry.NewMetrics(prometheus.DefaultRegisterer)),
		services.WithLogger(logger),
	)

	srv := apphttp.NewServer(":"+cfg.Port, svc,
		apphttp.WithDetectionTimeout(cfg.DetectionTimeout),
		apphttp.WithReadinessCheck(cfg.DataBackend, store.Backend),
		apphttp.WithLogger(logger),
	)

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = cfg.DetectionTimeout + 10*time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if store.Cleanup != nil {
			if err := store.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", "error", err)
			}
		}
		if err := shutdownTracing(ctx); err != nil {
			logger.Error("Tracing shutdown error", "error", err)
		}
	})

	logger.Info("Starting finassist server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
