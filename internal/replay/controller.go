package replay

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/rickgao/kraken-replay/internal/model"
	"github.com/rickgao/kraken-replay/internal/store"
)

// ErrMissingSnapshot means the first record of a session was not a
// snapshot, so the receiver would build its book from a partial update.
var ErrMissingSnapshot = errors.New("replay window does not open with a snapshot")

// RecordSource yields raw records in log order.
type RecordSource interface {
	Next(ctx context.Context) (model.RawMessage, error)
}

// State is the lifecycle phase of a controller.
type State int32

const (
	StateIdle State = iota
	StateStreaming
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// ControllerConfig configures a single replay session.
type ControllerConfig struct {
	Symbol  string
	MaxRate float64 // Payloads per second; 0 streams as fast as accepted
}

// Controller streams one snapshot-to-snapshot window of raw payloads.
// Payloads leave exactly as captured; the receiver cannot tell them from
// the live feed.
type Controller struct {
	id      uuid.UUID
	cfg     ControllerConfig
	source  RecordSource
	out     chan<- []byte
	limiter *rate.Limiter
	logger  *slog.Logger

	state atomic.Int32
	sent  atomic.Int64
}

// NewController creates a controller writing payloads to out. The caller
// owns out and keeps receiving until Run returns.
func NewController(cfg ControllerConfig, source RecordSource, out chan<- []byte, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.MaxRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxRate), 1)
	}

	c := &Controller{
		id:      uuid.New(),
		cfg:     cfg,
		source:  source,
		out:     out,
		limiter: limiter,
		logger:  logger,
	}
	c.state.Store(int32(StateIdle))
	return c
}

// ID returns the session identifier.
func (c *Controller) ID() uuid.UUID {
	return c.id
}

// State returns the current lifecycle phase.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Sent returns how many payloads have been emitted.
func (c *Controller) Sent() int64 {
	return c.sent.Load()
}

// Run streams records from the source to out. The first record opens the
// window and must be a snapshot. A later snapshot closes it: that snapshot
// is emitted, then Run returns, because it is where the next session would
// start. Reaching the end of the captured log also ends the session.
func (c *Controller) Run(ctx context.Context) error {
	c.state.Store(int32(StateStreaming))
	defer c.state.Store(int32(StateStopped))

	c.logger.Info("replay session streaming",
		"session_id", c.id,
		"symbol", c.cfg.Symbol,
		"max_rate", c.cfg.MaxRate,
	)

	snapshots := 0
	for {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		msg, err := c.source.Next(ctx)
		if errors.Is(err, store.ErrEndOfLog) {
			c.logger.Info("replay session reached end of log",
				"session_id", c.id,
				"sent", c.sent.Load(),
			)
			return nil
		}
		if err != nil {
			return err
		}

		if msg.Kind == model.KindSnapshot {
			snapshots++
		} else if snapshots == 0 {
			return ErrMissingSnapshot
		}

		select {
		case c.out <- msg.Payload:
			c.sent.Add(1)
		case <-ctx.Done():
			return ctx.Err()
		}

		// The second snapshot is emitted and then ends the window.
		if snapshots > 1 {
			c.logger.Info("replay session reached next snapshot",
				"session_id", c.id,
				"sent", c.sent.Load(),
			)
			return nil
		}
	}
}
