package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"oauthsample-go/internal/app"
	"oauthsample-go/internal/config"
	"oauthsample-go/internal/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to an optional JSON config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "oauthsample: failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "oauthsample: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Create a new application instance
	application, err := app.New(cfg, log)
	if err != nil {
		log.Fatal("failed to create application", zap.Error(err))
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start the application
	if err := application.Start(ctx); err != nil {
		log.Fatal("application failed to start", zap.Error(err))
	}

	<-ctx.Done()
	log.Info("shutdown signal received, initiating graceful shutdown")
	if err := application.Stop(context.Background()); err != nil {
		log.Error("error during graceful shutdown", zap.Error(err))
	}
	log.Info("application has stopped")
}
