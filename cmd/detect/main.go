// Command detect runs anomaly detection once for a user and prints the
// result as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"finassist/internal/cli"
	"finassist/internal/log"
	"finassist/internal/services"
)

func main() {
	userID := flag.String("user", "", "user ID to analyse (required)")
	categoryID := flag.String("category", "", "restrict detection to one category")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "usage: detect -user <id> [-category <id>]")
		os.Exit(2)
	}

	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.ApplyLogLevel(logger, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DetectionTimeout)
	defer cancel()

	store := cli.InitBackend(ctx, logger, cfg)
	if store.Cleanup != nil {
		defer store.Cleanup()
	}

	svc := services.NewAnomalyService(store.Backend,
		services.WithForestSeed(cfg.ForestSeed),
		services.WithLogger(logger),
	)

	var (
		out any
		err error
	)
	if *categoryID != "" {
		out, err = svc.DetectAnomaliesForCategory(ctx, *userID, *categoryID)
	} else {
		out, err = svc.DetectAnomaliesForUser(ctx, *userID)
	}
	if err != nil {
		logger.Error("Detection failed", "error", err, "user_id", *userID)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logger.Error("Failed to write result", "error", err)
		os.Exit(1)
	}
}
