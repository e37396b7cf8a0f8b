package config

import (
	"log/slog"
	"time"
)

// Config is the root configuration shared by the gatherer and replayer.
type Config struct {
	Environment string        `yaml:"environment"`
	LogLevel    string        `yaml:"log_level"`
	Database    DBConfig      `yaml:"database"`
	Feed        FeedConfig    `yaml:"feed"`
	Ingest      IngestConfig  `yaml:"ingest"`
	Replay      ReplayConfig  `yaml:"replay"`
	Monitor     MonitorConfig `yaml:"monitor"`
}

// DBConfig holds the TimescaleDB connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// FeedConfig holds Kraken WebSocket feed settings.
type FeedConfig struct {
	URL                string        `yaml:"url"`
	Symbols            []string      `yaml:"symbols"`
	Depth              int           `yaml:"depth"` // Book depth: 10, 25, 100, 500, or 1000
	PingInterval       time.Duration `yaml:"ping_interval"`
	StaleAfter         time.Duration `yaml:"stale_after"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	SnapshotInterval   time.Duration `yaml:"snapshot_interval"` // 0 disables periodic resubscribe
	BufferSize         int           `yaml:"buffer_size"`
}

// IngestConfig holds ingest pipeline settings.
type IngestConfig struct {
	QueueSize int           `yaml:"queue_size"`
	RetryMax  int           `yaml:"retry_max"`
	RetryBase time.Duration `yaml:"retry_base"`
	RetryCap  time.Duration `yaml:"retry_cap"`
}

// ReplayConfig holds replay server settings.
type ReplayConfig struct {
	Listen        string  `yaml:"listen"`
	DefaultSymbol string  `yaml:"default_symbol"`
	ScanPageSize  int     `yaml:"scan_page_size"`
	MaxRate       float64 `yaml:"max_rate"` // Messages per second per session; 0 = as fast as accepted
	BufferSize    int     `yaml:"buffer_size"`
}

// MonitorConfig holds the metrics and health HTTP listener settings.
type MonitorConfig struct {
	Listen string `yaml:"listen"`
}

// SlogLevel maps the configured log_level to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
