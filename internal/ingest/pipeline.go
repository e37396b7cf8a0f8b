package ingest

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/kraken-replay/internal/feed"
	"github.com/rickgao/kraken-replay/internal/metrics"
	"github.com/rickgao/kraken-replay/internal/model"
	"github.com/rickgao/kraken-replay/internal/store"
)

// Writer is the slice of the store the pipeline writes through.
type Writer interface {
	Append(ctx context.Context, msg *model.RawMessage) error
	UpsertLevels(ctx context.Context, levels []model.BookLevel) error
}

// Config holds pipeline tuning.
type Config struct {
	QueueSize int
	RetryMax  int
	RetryBase time.Duration
	RetryCap  time.Duration
}

// Pipeline decouples the feed connection from storage writes. Enqueue never
// blocks the caller; a single consumer drains the queue so same-symbol
// writes keep their arrival order.
type Pipeline struct {
	cfg     Config
	store   Writer
	metrics *metrics.Metrics
	logger  *slog.Logger

	queue *BoundedBuffer[feed.TimestampedMessage]

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Stats
	processed int64
	skipped   int64
	malformed int64
	dropped   int64
}

// PipelineStats is a point-in-time snapshot of pipeline counters.
type PipelineStats struct {
	Queue     BufferStats
	Processed int64
	Skipped   int64
	Malformed int64
	Dropped   int64
}

// NewPipeline creates a pipeline writing through st. The metrics set must
// be non-nil; tests pass one backed by a private registry.
func NewPipeline(cfg Config, st Writer, m *metrics.Metrics, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:     cfg,
		store:   st,
		metrics: m,
		logger:  logger,
		queue:   NewBoundedBuffer[feed.TimestampedMessage](cfg.QueueSize),
	}
}

// Start launches the consumer goroutine.
func (p *Pipeline) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.consumeLoop()

	p.logger.Info("ingest pipeline started",
		"queue_size", p.cfg.QueueSize,
		"retry_max", p.cfg.RetryMax,
	)
	return nil
}

// Stop shuts the pipeline down, flushing whatever is still queued with ctx
// as the write deadline.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.logger.Info("stopping ingest pipeline")

	p.queue.Close()
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		p.logger.Warn("ingest pipeline stop timed out")
	}

	// Final drain
	for {
		msg, ok := p.queue.TryReceive()
		if !ok {
			break
		}
		p.process(ctx, msg)
	}

	p.logger.Info("ingest pipeline stopped", "processed", atomic.LoadInt64(&p.processed))
	return nil
}

// Enqueue hands one feed message to the pipeline. Never blocks: when the
// queue is full the oldest queued message is shed and counted.
func (p *Pipeline) Enqueue(msg feed.TimestampedMessage) {
	evicted, ok := p.queue.Send(msg)
	if !ok {
		return // shutting down
	}
	if evicted {
		p.metrics.QueueDrops.Inc()
		p.logger.Warn("ingest queue full, dropped oldest message")
	}
	p.metrics.QueueDepth.Set(float64(p.queue.Len()))
}

// Stats returns current pipeline counters.
func (p *Pipeline) Stats() PipelineStats {
	return PipelineStats{
		Queue:     p.queue.Stats(),
		Processed: atomic.LoadInt64(&p.processed),
		Skipped:   atomic.LoadInt64(&p.skipped),
		Malformed: atomic.LoadInt64(&p.malformed),
		Dropped:   atomic.LoadInt64(&p.dropped),
	}
}

// consumeLoop reads from the queue and writes each message to the store.
func (p *Pipeline) consumeLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		default:
			msg, ok := p.queue.TryReceive()
			if !ok {
				select {
				case <-p.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}

			p.process(p.ctx, msg)
			p.metrics.QueueDepth.Set(float64(p.queue.Len()))
		}
	}
}

// process classifies one frame and writes it: raw row first, projection
// rows second. Projection rows must never exist without their raw parent.
func (p *Pipeline) process(ctx context.Context, in feed.TimestampedMessage) {
	msg, levels, err := classify(in.Data, in.ReceivedAt)
	if errors.Is(err, errSkip) {
		atomic.AddInt64(&p.skipped, 1)
		p.metrics.FeedSkipped.Inc()
		return
	}
	if err != nil {
		atomic.AddInt64(&p.malformed, 1)
		p.metrics.FeedMalformed.Inc()
		p.logger.Warn("malformed feed message", "error", err)
		return
	}

	p.metrics.FeedMessages.WithLabelValues(msg.Symbol, string(msg.Kind)).Inc()

	if err := p.withRetry(ctx, "append", func(ctx context.Context) error {
		return p.store.Append(ctx, &msg)
	}); err != nil {
		atomic.AddInt64(&p.dropped, 1)
		p.metrics.MessagesDropped.Inc()
		p.logger.Error("raw append failed, dropping message",
			"symbol", msg.Symbol,
			"kind", msg.Kind,
			"error", err,
		)
		return
	}

	if err := p.withRetry(ctx, "upsert_levels", func(ctx context.Context) error {
		return p.store.UpsertLevels(ctx, levels)
	}); err != nil {
		// The raw row is durable; the projection is allowed to lag behind.
		p.logger.Error("level upsert failed",
			"symbol", msg.Symbol,
			"levels", len(levels),
			"error", err,
		)
		return
	}

	p.metrics.LevelsWritten.Add(float64(len(levels)))
	atomic.AddInt64(&p.processed, 1)
}

// withRetry runs fn, retrying transient store failures with jittered
// exponential backoff. Permanent failures and exhausted retries return the
// last error.
func (p *Pipeline) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	backoff := p.cfg.RetryBase
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !store.IsTransient(err) {
			p.metrics.StoreErrors.WithLabelValues(op, "permanent").Inc()
			return err
		}
		if attempt >= p.cfg.RetryMax {
			p.metrics.StoreErrors.WithLabelValues(op, "transient").Inc()
			return err
		}

		p.metrics.StoreRetries.Inc()

		// Add jitter: random delay between backoff/2 and backoff*1.5
		jitter := backoff/2 + time.Duration(rand.Int63n(int64(backoff)))
		p.logger.Warn("store operation failed, retrying",
			"op", op,
			"attempt", attempt+1,
			"backoff", jitter,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jitter):
		}

		backoff *= 2
		if backoff > p.cfg.RetryCap {
			backoff = p.cfg.RetryCap
		}
	}
}
