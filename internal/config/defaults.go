package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultEnvironment        = "development"
	DefaultLogLevel           = "info"
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultFeedURL            = "wss://ws.kraken.com/v2"
	DefaultDepth              = 10
	DefaultSymbol             = "BTC/USD"
	DefaultPingInterval       = 30 * time.Second
	DefaultStaleAfter         = 90 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultFeedBufferSize     = 4096
	DefaultQueueSize          = 8192
	DefaultRetryMax           = 5
	DefaultRetryBase          = 100 * time.Millisecond
	DefaultRetryCap           = 5 * time.Second
	DefaultReplayListen       = ":8000"
	DefaultScanPageSize       = 500
	DefaultSessionBufferSize  = 256
	DefaultMonitorListen      = ":8080"
)

func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = DefaultEnvironment
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}

	// Database defaults
	applyDBDefaults(&c.Database)

	// Feed defaults
	if c.Feed.URL == "" {
		c.Feed.URL = DefaultFeedURL
	}
	if len(c.Feed.Symbols) == 0 {
		c.Feed.Symbols = []string{DefaultSymbol}
	}
	if c.Feed.Depth == 0 {
		c.Feed.Depth = DefaultDepth
	}
	if c.Feed.PingInterval == 0 {
		c.Feed.PingInterval = DefaultPingInterval
	}
	if c.Feed.StaleAfter == 0 {
		c.Feed.StaleAfter = DefaultStaleAfter
	}
	if c.Feed.WriteTimeout == 0 {
		c.Feed.WriteTimeout = DefaultWriteTimeout
	}
	if c.Feed.ReconnectBaseDelay == 0 {
		c.Feed.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Feed.ReconnectMaxDelay == 0 {
		c.Feed.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Feed.BufferSize == 0 {
		c.Feed.BufferSize = DefaultFeedBufferSize
	}

	// Ingest defaults
	if c.Ingest.QueueSize == 0 {
		c.Ingest.QueueSize = DefaultQueueSize
	}
	if c.Ingest.RetryMax == 0 {
		c.Ingest.RetryMax = DefaultRetryMax
	}
	if c.Ingest.RetryBase == 0 {
		c.Ingest.RetryBase = DefaultRetryBase
	}
	if c.Ingest.RetryCap == 0 {
		c.Ingest.RetryCap = DefaultRetryCap
	}

	// Replay defaults
	if c.Replay.Listen == "" {
		c.Replay.Listen = DefaultReplayListen
	}
	if c.Replay.DefaultSymbol == "" {
		c.Replay.DefaultSymbol = c.Feed.Symbols[0]
	}
	if c.Replay.ScanPageSize == 0 {
		c.Replay.ScanPageSize = DefaultScanPageSize
	}
	if c.Replay.BufferSize == 0 {
		c.Replay.BufferSize = DefaultSessionBufferSize
	}

	// Monitor defaults
	if c.Monitor.Listen == "" {
		c.Monitor.Listen = DefaultMonitorListen
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
