package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the capture and replay services.
// Each binary registers the full set; series the binary never touches stay
// at zero.
type Metrics struct {
	// --- Feed ---
	FeedMessages   *prometheus.CounterVec // labels: symbol, kind
	FeedSkipped    prometheus.Counter
	FeedMalformed  prometheus.Counter
	FeedReconnects prometheus.Counter

	// --- Ingest ---
	QueueDepth      prometheus.Gauge
	QueueDrops      prometheus.Counter
	StoreRetries    prometheus.Counter
	StoreErrors     *prometheus.CounterVec // labels: op, kind
	MessagesDropped prometheus.Counter
	LevelsWritten   prometheus.Counter

	// --- Replay ---
	PrepareRequests *prometheus.CounterVec // labels: status
	ReplaySessions  prometheus.Counter
	ReplayActive    prometheus.Gauge
	ReplayMessages  prometheus.Counter
	ReplayErrors    prometheus.Counter
}

// NewMetrics creates all metrics and registers them with reg. Binaries pass
// prometheus.DefaultRegisterer; tests pass a fresh registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Feed
		FeedMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "krakenreplay_feed_messages_total",
			Help: "Book messages ingested, by symbol and kind",
		}, []string{"symbol", "kind"}),

		FeedSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "krakenreplay_feed_skipped_total",
			Help: "Frames skipped because they are not book data (heartbeat, status, acks)",
		}),

		FeedMalformed: factory.NewCounter(prometheus.CounterOpts{
			Name: "krakenreplay_feed_malformed_total",
			Help: "Frames dropped because the book envelope failed to parse",
		}),

		FeedReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "krakenreplay_feed_reconnects_total",
			Help: "Feed WebSocket reconnection attempts",
		}),

		// Ingest
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "krakenreplay_ingest_queue_depth",
			Help: "Current ingest queue occupancy",
		}),

		QueueDrops: factory.NewCounter(prometheus.CounterOpts{
			Name: "krakenreplay_ingest_queue_drops_total",
			Help: "Oldest entries shed because the ingest queue was full",
		}),

		StoreRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "krakenreplay_store_retries_total",
			Help: "Transient store failures that were retried",
		}),

		StoreErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "krakenreplay_store_errors_total",
			Help: "Store failures after retries, by operation and classification",
		}, []string{"op", "kind"}),

		MessagesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "krakenreplay_messages_dropped_total",
			Help: "Messages dropped after exhausting retries or hitting a permanent failure",
		}),

		LevelsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "krakenreplay_levels_written_total",
			Help: "Price level rows upserted into the projection",
		}),

		// Replay
		PrepareRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "krakenreplay_prepare_requests_total",
			Help: "Replay prepare requests, by outcome",
		}, []string{"status"}),

		ReplaySessions: factory.NewCounter(prometheus.CounterOpts{
			Name: "krakenreplay_replay_sessions_total",
			Help: "Replay WebSocket sessions accepted",
		}),

		ReplayActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "krakenreplay_replay_active_sessions",
			Help: "Replay sessions currently streaming",
		}),

		ReplayMessages: factory.NewCounter(prometheus.CounterOpts{
			Name: "krakenreplay_replay_messages_total",
			Help: "Captured messages emitted to replay clients",
		}),

		ReplayErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "krakenreplay_replay_errors_total",
			Help: "Replay sessions that ended with an error",
		}),
	}
}
