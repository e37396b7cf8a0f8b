// resetdb creates or resets the capture schema. Without flags it creates
// the tables, hypertables, and indexes when missing, and truncates the data
// when they already exist. With -drop it removes the tables entirely.
//
// Usage: go run ./cmd/resetdb --config configs/gatherer.yaml [--drop] [--yes]
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/rickgao/kraken-replay/internal/config"
	"github.com/rickgao/kraken-replay/internal/database"
)

const (
	createMessagesTable = `
		CREATE TABLE IF NOT EXISTS book_messages (
			event_time    TIMESTAMPTZ NOT NULL,
			received_time TIMESTAMPTZ NOT NULL,
			channel       TEXT        NOT NULL,
			symbol        TEXT        NOT NULL,
			message_kind  TEXT        NOT NULL,
			checksum      BIGINT,
			payload       JSONB       NOT NULL,
			sequence_id   BIGINT      NOT NULL,
			PRIMARY KEY (event_time, symbol, sequence_id)
		)`

	createLevelsTable = `
		CREATE TABLE IF NOT EXISTS book_levels (
			event_time   TIMESTAMPTZ   NOT NULL,
			symbol       TEXT          NOT NULL,
			side         TEXT          NOT NULL,
			price        NUMERIC(20,8) NOT NULL,
			quantity     NUMERIC(20,8) NOT NULL,
			message_kind TEXT          NOT NULL,
			checksum     BIGINT,
			PRIMARY KEY (event_time, symbol, side, price)
		)`
)

// Indexes cover the replay access paths: snapshot lookup by kind and the
// keyset scan over (event_time, sequence_id).
var createIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_book_messages_symbol_kind ON book_messages (symbol, message_kind, event_time)`,
	`CREATE INDEX IF NOT EXISTS idx_book_messages_symbol_scan ON book_messages (symbol, event_time, sequence_id)`,
	`CREATE INDEX IF NOT EXISTS idx_book_levels_symbol_side ON book_levels (symbol, side, event_time)`,
	`CREATE INDEX IF NOT EXISTS idx_book_levels_event_time ON book_levels (event_time)`,
}

var captureTables = []string{"book_messages", "book_levels"}

func main() {
	configPath := flag.String("config", "configs/gatherer.yaml", "path to config file")
	drop := flag.Bool("drop", false, "drop the capture tables instead of resetting them")
	yes := flag.Bool("yes", false, "skip the confirmation prompt for -drop")
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

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

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

	if *drop {
		if !*yes && !confirmDrop() {
			logger.Info("drop cancelled, no changes made")
			return
		}
		if err := dropTables(ctx, db, logger); err != nil {
			logger.Error("failed to drop tables", "error", err)
			os.Exit(1)
		}
		logger.Info("capture tables removed")
		return
	}

	exists, err := tablesExist(ctx, db)
	if err != nil {
		logger.Error("failed to check for existing tables", "error", err)
		os.Exit(1)
	}

	if exists {
		logger.Info("capture tables found, truncating data")
		if err := truncateTables(ctx, db, logger); err != nil {
			logger.Error("failed to truncate tables", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Info("capture tables not found, creating schema")
		if err := createSchema(ctx, db, logger); err != nil {
			logger.Error("failed to create schema", "error", err)
			os.Exit(1)
		}
	}

	reportStatus(ctx, db, logger)
	logger.Info("database ready")
}

// tablesExist reports whether both capture tables are present.
func tablesExist(ctx context.Context, db *pgxpool.Pool) (bool, error) {
	var count int
	err := db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name = ANY($1)
	`, captureTables).Scan(&count)
	if err != nil {
		return false, err
	}
	return count == len(captureTables), nil
}

// createSchema builds both tables from scratch, converts them to
// hypertables, and adds the query indexes.
func createSchema(ctx context.Context, db *pgxpool.Pool, logger *slog.Logger) error {
	logger.Info("creating book_messages")
	if _, err := db.Exec(ctx, createMessagesTable); err != nil {
		return fmt.Errorf("create book_messages: %w", err)
	}

	logger.Info("creating book_levels")
	if _, err := db.Exec(ctx, createLevelsTable); err != nil {
		return fmt.Errorf("create book_levels: %w", err)
	}

	for _, table := range captureTables {
		logger.Info("creating hypertable", "table", table)
		_, err := db.Exec(ctx,
			`SELECT create_hypertable($1, 'event_time', if_not_exists => TRUE)`, table)
		if err != nil {
			return fmt.Errorf("create hypertable %s: %w", table, err)
		}
	}

	logger.Info("creating indexes")
	for _, stmt := range createIndexes {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}

	return nil
}

// truncateTables empties both tables while keeping the schema and
// hypertable chunks intact.
func truncateTables(ctx context.Context, db *pgxpool.Pool, logger *slog.Logger) error {
	for _, table := range captureTables {
		logger.Info("truncating", "table", table)
		if _, err := db.Exec(ctx, `TRUNCATE TABLE `+table); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}
	return nil
}

// dropTables removes both tables. CASCADE also removes the hypertable
// chunks TimescaleDB keeps under them.
func dropTables(ctx context.Context, db *pgxpool.Pool, logger *slog.Logger) error {
	for _, table := range captureTables {
		logger.Info("dropping", "table", table)
		if _, err := db.Exec(ctx, `DROP TABLE IF EXISTS `+table+` CASCADE`); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
	}
	return nil
}

// reportStatus logs row counts and hypertable chunk counts so the operator
// can confirm the reset landed. Failures here are informational only.
func reportStatus(ctx context.Context, db *pgxpool.Pool, logger *slog.Logger) {
	for _, table := range captureTables {
		var count int64
		if err := db.QueryRow(ctx, `SELECT COUNT(*) FROM `+table).Scan(&count); err != nil {
			logger.Warn("could not count rows", "table", table, "error", err)
			continue
		}
		logger.Info("table status", "table", table, "rows", count)
	}

	rows, err := db.Query(ctx, `
		SELECT hypertable_name, num_chunks
		FROM timescaledb_information.hypertables
		WHERE hypertable_name = ANY($1)
	`, captureTables)
	if err != nil {
		logger.Warn("could not fetch hypertable info, is TimescaleDB installed?", "error", err)
		return
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var chunks int
		if err := rows.Scan(&name, &chunks); err != nil {
			logger.Warn("could not scan hypertable info", "error", err)
			return
		}
		logger.Info("hypertable status", "table", name, "chunks", chunks)
	}
}

// confirmDrop asks the operator to type yes before anything is deleted.
func confirmDrop() bool {
	fmt.Println("WARNING: this permanently deletes all captured book data.")
	fmt.Print("Type 'yes' to confirm: ")

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	return strings.TrimSpace(strings.ToLower(scanner.Text())) == "yes"
}
