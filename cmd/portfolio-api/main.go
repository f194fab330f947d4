package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"binance-portfolio-api/internal/api"
	"binance-portfolio-api/internal/binance"
	"binance-portfolio-api/internal/config"
	"binance-portfolio-api/internal/database"
	"binance-portfolio-api/internal/logger"
	"binance-portfolio-api/internal/report"
	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Snapshot recording is optional; an empty DSN disables it.
	var snapshots report.SnapshotStore
	if cfg.Database.DSN != "" {
		db, err := database.NewDatabase(cfg.Database.DSN)
		if err != nil {
			log.Fatal("Failed to connect to database", zap.Error(err))
		}
		snapshots = database.NewSnapshotStore(db)
		log.Info("Database connection successful and schema migrated.")
	} else {
		log.Info("Snapshot recording disabled")
	}

	// Initialize Binance REST client
	restClient := binance.NewRestClient(&cfg.Binance, log)
	if _, err := restClient.GetServerTime(context.Background()); err != nil {
		log.Fatal("Failed to connect to Binance API", zap.Error(err))
	}
	log.Info("Successfully connected to Binance API.")

	service := report.NewService(restClient, snapshots, cfg.Portfolio.QuoteAsset, log)
	server := api.NewServer(cfg.Server, service, log)
	server.Start()

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
	<-sigchan
	log.Info("Shutdown signal received, gracefully shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		log.Error("Failed to stop API server", zap.Error(err))
	}

	log.Info("Portfolio API has been shut down.")
}
