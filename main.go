package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stridelog-strava-sync/internal/config"
	"stridelog-strava-sync/internal/database"
	"stridelog-strava-sync/internal/handlers"
	"stridelog-strava-sync/internal/metrics"
	"stridelog-strava-sync/internal/middleware"
	"stridelog-strava-sync/internal/strava"
	"stridelog-strava-sync/internal/sync"
	"stridelog-strava-sync/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Set up logger
	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting stridelog-strava-sync server",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.DatabasePath,
		"scheduler_enabled", cfg.SchedulerEnabled,
		"log_level", cfg.LogLevel)

	// Open database
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		logger.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Init(); err != nil {
		logger.Error("Failed to initialize database schema", "error", err)
		os.Exit(1)
	}

	logger.Info("Database opened successfully")

	// Create Strava client
	stravaClient := strava.NewClient(db, logger)
	if cfg.StravaBaseURL != "" {
		stravaClient.SetBaseURL(cfg.StravaBaseURL)
	}

	// Create sync orchestrator
	orchestrator := sync.NewOrchestrator(db, stravaClient, logger)

	// Create handlers
	opsHandler := handlers.NewOpsHandler(db, orchestrator, cfg)

	// Set up HTTP routes
	mux := http.NewServeMux()
	mux.Handle("/health", middleware.WrapHandler(metrics.EndpointHealth, opsHandler.HandleHealth))
	mux.Handle("/internal/connection-status", middleware.WrapHandler(metrics.EndpointConnectionStatus, opsHandler.HandleConnectionStatus))
	mux.Handle("/internal/connect", middleware.WrapHandler(metrics.EndpointConnect, opsHandler.HandleConnect))
	mux.Handle("/internal/sync", middleware.WrapHandler(metrics.EndpointSync, opsHandler.HandleSync))
	mux.Handle("/internal/backfill-rollups", middleware.WrapHandler(metrics.EndpointBackfill, opsHandler.HandleBackfillRollups))

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // Syncs run inline in the request
		IdleTimeout:  120 * time.Second,
	}

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	defer backgroundCancel()

	// Start sync scheduler in background
	if cfg.SchedulerEnabled {
		workerInstance := worker.NewWorker(db, orchestrator, cfg)
		go func() {
			if err := workerInstance.Start(backgroundCtx); err != nil && err != context.Canceled {
				logger.Error("Sync scheduler failed", "error", err)
			}
		}()
	}

	// Start connection gauge collector
	go func() {
		metrics.StartConnectionGaugeCollector(backgroundCtx, db, 15*time.Second)
	}()

	// Start metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	metricsAddr := fmt.Sprintf("%s:%d", cfg.Host, cfg.MetricsPort)
	metricsServer := &http.Server{
		Addr:    metricsAddr,
		Handler: metricsMux,
	}

	go func() {
		logger.Info("Metrics server listening", "addr", metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", "error", err)
		}
	}()

	// Start HTTP server in background
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down gracefully...")

	// Stop background workers
	backgroundCancel()

	// Shutdown HTTP servers with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Metrics server shutdown failed", "error", err)
	}

	logger.Info("Server stopped")
}
