package feed

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no pong)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// subscribeRequest is a Kraken v2 subscribe command.
type subscribeRequest struct {
	Method string          `json:"method"`
	Params subscribeParams `json:"params"`
}

// subscribeParams are parameters for a book subscription.
type subscribeParams struct {
	Channel string   `json:"channel"`
	Symbol  []string `json:"symbol"`
	Depth   int      `json:"depth,omitempty"`
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL          string        // WebSocket URL (e.g., wss://ws.kraken.com/v2)
	PingInterval time.Duration // How often to send keepalive pings
	StaleAfter   time.Duration // Max time without a pong before considering connection stale
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval: 30 * time.Second,
		StaleAfter:   90 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   4096,
	}
}

// ManagerConfig configures the feed manager.
type ManagerConfig struct {
	URL                string        // WebSocket URL (e.g., wss://ws.kraken.com/v2)
	Symbols            []string      // Pairs to subscribe (e.g., BTC/USD)
	Depth              int           // Book depth per side
	PingInterval       time.Duration // Keepalive ping interval
	StaleAfter         time.Duration // Staleness threshold
	WriteTimeout       time.Duration // Write deadline for sends
	ReconnectBaseDelay time.Duration // Base wait time for reconnection
	ReconnectMaxDelay  time.Duration // Max wait time for reconnection
	SnapshotInterval   time.Duration // Re-subscribe interval for fresh snapshots (0 = never)
	BufferSize         int           // Buffer size for output message channel
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		URL:                "wss://ws.kraken.com/v2",
		Depth:              10,
		PingInterval:       30 * time.Second,
		StaleAfter:         90 * time.Second,
		WriteTimeout:       5 * time.Second,
		ReconnectBaseDelay: 1 * time.Second,
		ReconnectMaxDelay:  60 * time.Second,
		BufferSize:         4096,
	}
}
