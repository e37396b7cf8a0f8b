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
	"github.com/rickgao/kraken-replay/internal/metrics"
	"github.com/rickgao/kraken-replay/internal/replay"
	"github.com/rickgao/kraken-replay/internal/server"
	"github.com/rickgao/kraken-replay/internal/store"
	"github.com/rickgao/kraken-replay/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/replayer.yaml", "path to config file")
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

	logger.Info("starting replayer",
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
		"listen", cfg.Replay.Listen,
		"default_symbol", cfg.Replay.DefaultSymbol,
		"max_rate", cfg.Replay.MaxRate,
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

	// No feed on the replayer; health reflects only the database
	health := metrics.NewHealthStatus(false)
	health.StartLivenessChecker(ctx, db, 15*time.Second)

	monitorSrv := metrics.NewServer(cfg.Monitor.Listen, health, logger)
	monitorSrv.Start()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		monitorSrv.Stop(shutdownCtx)
	}()

	ix := replay.NewIndex(st, logger)
	opener := server.NewStoreOpener(st, cfg.Replay.ScanPageSize)

	srv := server.New(cfg.Replay, ix, opener, m, logger)
	if err := srv.Start(ctx); err != nil {
		logger.Error("failed to start replay server", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		srv.Stop(shutdownCtx)
	}()

	logger.Info("replayer running",
		"listen", cfg.Replay.Listen,
		"monitor", cfg.Monitor.Listen,
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")
}
