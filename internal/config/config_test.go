package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
environment: development
log_level: debug
database:
  host: localhost
  port: 5432
  name: kraken
  user: testuser
  password: testpass
feed:
  url: wss://ws.kraken.com/v2
  symbols:
    - BTC/USD
    - ETH/USD
  depth: 25
replay:
  listen: ":8000"
  max_rate: 500
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("Database.Host = %q, want %q", cfg.Database.Host, "localhost")
	}
	if len(cfg.Feed.Symbols) != 2 || cfg.Feed.Symbols[1] != "ETH/USD" {
		t.Errorf("Feed.Symbols = %v, want [BTC/USD ETH/USD]", cfg.Feed.Symbols)
	}
	if cfg.Feed.Depth != 25 {
		t.Errorf("Feed.Depth = %d, want 25", cfg.Feed.Depth)
	}
	if cfg.Replay.MaxRate != 500 {
		t.Errorf("Replay.MaxRate = %v, want 500", cfg.Replay.MaxRate)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
database:
  host: localhost
  name: kraken
  user: testuser
  password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Password != "secret123" {
		t.Errorf("Database.Password = %q, want %q", cfg.Database.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
database:
  host: localhost
  name: kraken
  user: testuser
  password: testpass
feed:
  symbols:
    - ETH/USD
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.Feed.URL != DefaultFeedURL {
		t.Errorf("Feed.URL = %q, want default %q", cfg.Feed.URL, DefaultFeedURL)
	}
	if cfg.Feed.Depth != DefaultDepth {
		t.Errorf("Feed.Depth = %d, want default %d", cfg.Feed.Depth, DefaultDepth)
	}
	if cfg.Database.Port != DefaultDBPort {
		t.Errorf("Database.Port = %d, want default %d", cfg.Database.Port, DefaultDBPort)
	}
	if cfg.Ingest.QueueSize != DefaultQueueSize {
		t.Errorf("Ingest.QueueSize = %d, want default %d", cfg.Ingest.QueueSize, DefaultQueueSize)
	}
	if cfg.Replay.Listen != DefaultReplayListen {
		t.Errorf("Replay.Listen = %q, want default %q", cfg.Replay.Listen, DefaultReplayListen)
	}
	// The replay symbol falls back to the first feed symbol.
	if cfg.Replay.DefaultSymbol != "ETH/USD" {
		t.Errorf("Replay.DefaultSymbol = %q, want %q", cfg.Replay.DefaultSymbol, "ETH/USD")
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"error", "ERROR"},
		{"", "INFO"},
	}

	for _, tt := range tests {
		cfg := Config{LogLevel: tt.level}
		if got := cfg.SlogLevel().String(); got != tt.want {
			t.Errorf("SlogLevel(%q) = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	db := DBConfig{Host: "localhost", Name: "kraken", User: "user", Password: "pass", MaxConns: 10, MinConns: 2}
	feed := FeedConfig{
		URL:                "wss://ws.kraken.com/v2",
		Symbols:            []string{"BTC/USD"},
		Depth:              10,
		PingInterval:       30 * time.Second,
		StaleAfter:         90 * time.Second,
		ReconnectBaseDelay: time.Second,
		ReconnectMaxDelay:  60 * time.Second,
		BufferSize:         4096,
	}
	ingest := IngestConfig{QueueSize: 1024, RetryMax: 5, RetryBase: 100 * time.Millisecond, RetryCap: 5 * time.Second}
	replay := ReplayConfig{Listen: ":8000", ScanPageSize: 500, BufferSize: 256}
	monitor := MonitorConfig{Listen: ":8080"}

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "missing database host",
			cfg:     Config{},
			wantErr: "database.host is required",
		},
		{
			name:    "bad log level",
			cfg:     Config{LogLevel: "verbose"},
			wantErr: `log_level must be one of debug, info, warn, error, got "verbose"`,
		},
		{
			name: "min_conns exceeds max_conns",
			cfg: Config{
				Database: DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 5, MinConns: 10},
			},
			wantErr: "database.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name:    "missing feed url",
			cfg:     Config{Database: db},
			wantErr: "feed.url is required",
		},
		{
			name: "invalid depth",
			cfg: Config{
				Database: db,
				Feed:     FeedConfig{URL: "wss://ws.kraken.com/v2", Symbols: []string{"BTC/USD"}, Depth: 50},
			},
			wantErr: "feed.depth must be one of 10, 25, 100, 500, 1000, got 50",
		},
		{
			name: "stale_after below ping_interval",
			cfg: Config{
				Database: db,
				Feed: FeedConfig{
					URL: "wss://ws.kraken.com/v2", Symbols: []string{"BTC/USD"}, Depth: 10,
					PingInterval: 30 * time.Second, StaleAfter: 10 * time.Second,
				},
			},
			wantErr: "feed.stale_after (10s) must exceed ping_interval (30s)",
		},
		{
			name: "retry_base exceeds retry_cap",
			cfg: Config{
				Database: db,
				Feed:     feed,
				Ingest:   IngestConfig{QueueSize: 1024, RetryBase: 10 * time.Second, RetryCap: 5 * time.Second},
			},
			wantErr: "ingest.retry_base (10s) cannot exceed retry_cap (5s)",
		},
		{
			name: "valid config",
			cfg: Config{
				Database: db,
				Feed:     feed,
				Ingest:   ingest,
				Replay:   replay,
				Monitor:  monitor,
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
