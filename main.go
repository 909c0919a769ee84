package main

import (
	"context"
	"log"

	"outreach-server/internal/bootstrap"
	"outreach-server/internal/config"
	"outreach-server/internal/observability"
	"outreach-server/internal/server"
)

func main() {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize logger
	logger := observability.NewLogger()

	// Initialize dependencies
	deps, err := bootstrap.Initialize(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "failed to initialize dependencies", err)
		log.Fatalf("failed to initialize dependencies: %v", err)
	}

	// Create and set up the server
	srv := server.New(cfg, deps, logger)
	srv.Setup()

	// Start the server and background workers
	if err := srv.Start(ctx); err != nil {
		logger.Error(ctx, "failed to start server", err)
		log.Fatalf("failed to start server: %v", err)
	}

	// Wait for shutdown signal and handle graceful shutdown
	if err := srv.WaitForShutdown(ctx); err != nil {
		logger.Error(ctx, "error during server shutdown", err)
		log.Fatalf("error during server shutdown: %v", err)
	}
}
