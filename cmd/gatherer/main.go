package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/kraken-replay/internal/config"
	"github.com/rickgao/kraken-replay/internal/database"
	"github.com/rickgao/kraken-replay/internal/feed"
	"github.com/rickgao/kraken-replay/internal/ingest"
	"github.com/rickgao/kraken-replay/internal/metrics"
	"github.com/rickgao/kraken-replay/internal/store"
	"github.com/rickgao/kraken-replay/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/gatherer.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to load .env file", "error", err)
	}

	logger.Info("starting gatherer",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Rebuild the logger at the configured level
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		"environment", cfg.Environment,
		"feed_url", cfg.Feed.URL,
		"symbols", cfg.Feed.Symbols,
		"depth", cfg.Feed.Depth,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	logger.Info("database connected")

	st := store.New(db, logger)
	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	health := metrics.NewHealthStatus(true)
	health.StartLivenessChecker(ctx, db, 15*time.Second)

	// Start the monitor server early so liveness is visible during startup
	monitorSrv := metrics.NewServer(cfg.Monitor.Listen, health, logger)
	monitorSrv.Start()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		monitorSrv.Stop(shutdownCtx)
	}()

	// Start the pipeline before the feed so it's ready to consume messages
	// as soon as the subscription lands
	pipeline := ingest.NewPipeline(ingest.Config{
		QueueSize: cfg.Ingest.QueueSize,
		RetryMax:  cfg.Ingest.RetryMax,
		RetryBase: cfg.Ingest.RetryBase,
		RetryCap:  cfg.Ingest.RetryCap,
	}, st, m, logger)
	if err := pipeline.Start(ctx); err != nil {
		logger.Error("failed to start pipeline", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		pipeline.Stop(shutdownCtx)
	}()

	feedMgr := feed.NewManager(feed.ManagerConfig{
		URL:                cfg.Feed.URL,
		Symbols:            cfg.Feed.Symbols,
		Depth:              cfg.Feed.Depth,
		PingInterval:       cfg.Feed.PingInterval,
		StaleAfter:         cfg.Feed.StaleAfter,
		WriteTimeout:       cfg.Feed.WriteTimeout,
		ReconnectBaseDelay: cfg.Feed.ReconnectBaseDelay,
		ReconnectMaxDelay:  cfg.Feed.ReconnectMaxDelay,
		SnapshotInterval:   cfg.Feed.SnapshotInterval,
		BufferSize:         cfg.Feed.BufferSize,
	}, m, logger)

	// Bridge feed messages into the pipeline. Runs until Stop closes the
	// feed's output channel.
	bridgeDone := make(chan struct{})
	go func() {
		defer close(bridgeDone)
		for msg := range feedMgr.Messages() {
			health.SetLastMessageTime(msg.ReceivedAt)
			pipeline.Enqueue(msg)
		}
	}()

	if err := feedMgr.Start(ctx); err != nil {
		logger.Error("failed to start feed manager", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		feedMgr.Stop(shutdownCtx)
		// Wait for the bridge to drain the tail so pipeline.Stop flushes it
		<-bridgeDone
	}()

	// Mirror feed connection state into the health endpoint
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				health.SetFeedConnected(feedMgr.Stats().Connected)
			}
		}
	}()

	logger.Info("gatherer running",
		"symbols", cfg.Feed.Symbols,
		"monitor", cfg.Monitor.Listen,
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")
}
