package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", c.LogLevel)
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if c.Feed.URL == "" {
		return errors.New("feed.url is required")
	}
	if len(c.Feed.Symbols) == 0 {
		return errors.New("feed.symbols must list at least one symbol")
	}
	switch c.Feed.Depth {
	case 10, 25, 100, 500, 1000:
	default:
		return fmt.Errorf("feed.depth must be one of 10, 25, 100, 500, 1000, got %d", c.Feed.Depth)
	}
	if c.Feed.PingInterval <= 0 {
		return errors.New("feed.ping_interval must be > 0")
	}
	if c.Feed.StaleAfter <= c.Feed.PingInterval {
		return fmt.Errorf("feed.stale_after (%v) must exceed ping_interval (%v)", c.Feed.StaleAfter, c.Feed.PingInterval)
	}
	if c.Feed.ReconnectBaseDelay > c.Feed.ReconnectMaxDelay {
		return fmt.Errorf("feed.reconnect_base_delay (%v) cannot exceed reconnect_max_delay (%v)", c.Feed.ReconnectBaseDelay, c.Feed.ReconnectMaxDelay)
	}
	if c.Feed.SnapshotInterval < 0 {
		return errors.New("feed.snapshot_interval cannot be negative")
	}
	if c.Feed.BufferSize < 1 {
		return errors.New("feed.buffer_size must be >= 1")
	}

	if c.Ingest.QueueSize < 1 {
		return errors.New("ingest.queue_size must be >= 1")
	}
	if c.Ingest.RetryMax < 0 {
		return errors.New("ingest.retry_max cannot be negative")
	}
	if c.Ingest.RetryBase <= 0 {
		return errors.New("ingest.retry_base must be > 0")
	}
	if c.Ingest.RetryBase > c.Ingest.RetryCap {
		return fmt.Errorf("ingest.retry_base (%v) cannot exceed retry_cap (%v)", c.Ingest.RetryBase, c.Ingest.RetryCap)
	}

	if c.Replay.Listen == "" {
		return errors.New("replay.listen is required")
	}
	if c.Replay.ScanPageSize < 1 {
		return errors.New("replay.scan_page_size must be >= 1")
	}
	if c.Replay.MaxRate < 0 {
		return errors.New("replay.max_rate cannot be negative")
	}
	if c.Replay.BufferSize < 1 {
		return errors.New("replay.buffer_size must be >= 1")
	}

	if c.Monitor.Listen == "" {
		return errors.New("monitor.listen is required")
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
