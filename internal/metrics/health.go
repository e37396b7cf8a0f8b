package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// HealthStatus tracks liveness of the service's dependencies. It serves
// /healthz and is updated by the components that own each dependency.
type HealthStatus struct {
	mu sync.RWMutex

	feedExpected bool

	FeedConnected   bool
	LastMessageTime time.Time
	DatabaseOK      bool

	DatabaseLatencyMs float64
	LastCheckAt       time.Time
	StartedAt         time.Time
}

// NewHealthStatus returns a default health status. feedExpected is true for
// the gatherer, which degrades when the feed is down; the replayer has no
// feed and passes false.
func NewHealthStatus(feedExpected bool) *HealthStatus {
	return &HealthStatus{
		feedExpected: feedExpected,
		StartedAt:    time.Now(),
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastMessageTime(t time.Time) {
	h.mu.Lock()
	h.LastMessageTime = t
	h.mu.Unlock()
}

// CheckDatabase pings the pool and records latency and connectivity.
func (h *HealthStatus) CheckDatabase(ctx context.Context, db *pgxpool.Pool) {
	start := time.Now()
	err := db.Ping(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.DatabaseOK = err == nil
	h.DatabaseLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic database checks until ctx ends. The
// first check runs immediately so /healthz is accurate during startup.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, db *pgxpool.Pool, interval time.Duration) {
	go func() {
		probe := func() {
			probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			h.CheckDatabase(probeCtx, db)
			cancel()
		}
		probe()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probe()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.DatabaseOK || (h.feedExpected && !h.FeedConnected) {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.DatabaseOK && h.feedExpected && !h.FeedConnected {
		overallStatus = "unhealthy"
	}

	messageAge := ""
	if !h.LastMessageTime.IsZero() {
		messageAge = time.Since(h.LastMessageTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status            string  `json:"status"`
		Uptime            string  `json:"uptime"`
		FeedConnected     bool    `json:"feed_connected"`
		LastMessageTime   string  `json:"last_message_time"`
		MessageAge        string  `json:"message_age"`
		DatabaseOK        bool    `json:"database_ok"`
		DatabaseLatencyMs float64 `json:"database_latency_ms"`
		LastCheckAt       string  `json:"last_check_at"`
	}{
		Status:            overallStatus,
		Uptime:            time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:     h.FeedConnected,
		LastMessageTime:   h.LastMessageTime.Format(time.RFC3339),
		MessageAge:        messageAge,
		DatabaseOK:        h.DatabaseOK,
		DatabaseLatencyMs: h.DatabaseLatencyMs,
		LastCheckAt:       h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}
