package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/kraken-replay/internal/metrics"
)

// Manager owns the feed connection and its subscription.
type Manager interface {
	// Start connects and begins forwarding frames.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the connection.
	Stop(ctx context.Context) error

	// Messages returns the channel of timestamped raw frames.
	Messages() <-chan TimestampedMessage

	// Stats returns current connection statistics.
	Stats() ManagerStats
}

// ManagerStats provides statistics about the feed manager.
type ManagerStats struct {
	Connected  bool
	Reconnects int64
}

// manager implements the Manager interface.
type manager struct {
	cfg     ManagerConfig
	metrics *metrics.Metrics
	logger  *slog.Logger

	out chan TimestampedMessage

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	client Client

	reconnects int64
}

// NewManager creates a new feed manager.
func NewManager(cfg ManagerConfig, m *metrics.Metrics, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &manager{
		cfg:     cfg,
		metrics: m,
		logger:  logger,
		out:     make(chan TimestampedMessage, cfg.BufferSize),
	}
}

// Start begins the feed manager.
func (m *manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.run()

	m.logger.Info("feed manager started",
		"url", m.cfg.URL,
		"symbols", m.cfg.Symbols,
		"depth", m.cfg.Depth,
	)
	return nil
}

// Stop gracefully shuts down.
func (m *manager) Stop(ctx context.Context) error {
	m.logger.Info("stopping feed manager")

	if m.cancel != nil {
		m.cancel()
	}

	// Wait for goroutines with timeout
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("shutdown timeout, forcing close")
	}

	m.mu.Lock()
	cl := m.client
	m.client = nil
	m.mu.Unlock()

	if cl != nil {
		cl.Close()
	}

	close(m.out)

	m.logger.Info("feed manager stopped")
	return nil
}

// Messages returns the output channel.
func (m *manager) Messages() <-chan TimestampedMessage {
	return m.out
}

// Stats returns current statistics.
func (m *manager) Stats() ManagerStats {
	m.mu.RLock()
	cl := m.client
	m.mu.RUnlock()

	return ManagerStats{
		Connected:  cl != nil && cl.IsConnected(),
		Reconnects: atomic.LoadInt64(&m.reconnects),
	}
}

// run connects, serves the connection until it fails, and reconnects with
// exponential backoff. A successful connection resets the backoff. The
// initial connect is immediate; every reconnect waits first.
func (m *manager) run() {
	defer m.wg.Done()

	wait := m.cfg.ReconnectBaseDelay
	first := true

	for {
		if m.ctx.Err() != nil {
			return
		}

		if !first {
			select {
			case <-m.ctx.Done():
				return
			case <-time.After(wait):
			}
		}

		cl, err := m.connect()
		if err != nil {
			m.logger.Warn("feed connect failed",
				"url", m.cfg.URL,
				"retry_in", wait,
				"error", err,
			)
			first = false

			// Exponential backoff
			wait *= 2
			if wait > m.cfg.ReconnectMaxDelay {
				wait = m.cfg.ReconnectMaxDelay
			}
			continue
		}

		if !first {
			atomic.AddInt64(&m.reconnects, 1)
			m.metrics.FeedReconnects.Inc()
			m.logger.Info("feed reconnected")
		}
		first = false
		wait = m.cfg.ReconnectBaseDelay

		m.serve(cl)

		cl.Close()
		if m.ctx.Err() != nil {
			return
		}
	}
}

// connect dials, subscribes, and publishes the new client.
func (m *manager) connect() (Client, error) {
	clientCfg := ClientConfig{
		URL:          m.cfg.URL,
		PingInterval: m.cfg.PingInterval,
		StaleAfter:   m.cfg.StaleAfter,
		WriteTimeout: m.cfg.WriteTimeout,
		BufferSize:   m.cfg.BufferSize,
	}

	cl := NewClient(clientCfg, m.logger)
	if err := cl.Connect(m.ctx); err != nil {
		return nil, err
	}

	if err := m.subscribe(cl); err != nil {
		cl.Close()
		return nil, err
	}

	m.mu.Lock()
	m.client = cl
	m.mu.Unlock()

	return cl, nil
}

// subscribe sends the book subscription for all configured symbols. The
// ack and the initial snapshots arrive as regular frames.
func (m *manager) subscribe(cl Client) error {
	req := subscribeRequest{
		Method: "subscribe",
		Params: subscribeParams{
			Channel: "book",
			Symbol:  m.cfg.Symbols,
			Depth:   m.cfg.Depth,
		},
	}

	data, err := json.Marshal(req)
	if err != nil {
		return err
	}

	return cl.Send(data)
}

// serve forwards frames from cl until the connection fails or the manager
// stops. Re-subscribing on the snapshot ticker makes Kraken push a fresh
// snapshot for every symbol.
func (m *manager) serve(cl Client) {
	var snapshotC <-chan time.Time
	if m.cfg.SnapshotInterval > 0 {
		ticker := time.NewTicker(m.cfg.SnapshotInterval)
		defer ticker.Stop()
		snapshotC = ticker.C
	}

	for {
		select {
		case <-m.ctx.Done():
			return

		case err := <-cl.Errors():
			m.logger.Warn("feed connection error", "error", err)
			return

		case msg, ok := <-cl.Messages():
			if !ok {
				return
			}
			select {
			case m.out <- msg:
			case <-m.ctx.Done():
				return
			}

		case <-snapshotC:
			m.logger.Debug("requesting fresh snapshots")
			if err := m.subscribe(cl); err != nil {
				m.logger.Warn("snapshot re-subscribe failed", "error", err)
				return
			}
		}
	}
}
