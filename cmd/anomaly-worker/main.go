package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"finassist/internal/amqp"
	"finassist/internal/cli"
	"finassist/internal/log"
	"finassist/internal/services"
	"finassist/internal/telemetry"
	"finassist/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.ApplyLogLevel(logger, cfg)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the anomaly worker")
		os.Exit(1)
	}

	logger.Info("Starting anomaly-worker", "backend", cfg.DataBackend, "queue", cfg.AMQPQueue)

	shutdownTracing := cli.InitTracing(context.Background(), logger, cfg)
	store := cli.InitBackend(context.Background(), logger, cfg)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, cfg.WorkerPrefetch)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}

	svc := services.NewAnomalyService(store.Backend,
		services.WithForestSeed(cfg.ForestSeed),
		services.WithMetrics(telemetry.NewMetrics(prometheus.DefaultRegisterer)),
		services.WithLogger(logger),
	)
	checkWorker := worker.NewCheckWorker(svc, amqpClient, store.Backend)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := amqpClient.Close(); err != nil {
			logger.Error("AMQP close error", "error", err)
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

	if err := checkWorker.Run(ctx, amqpClient); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Anomaly worker stopped gracefully")
}
