package feed

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/kraken-replay/internal/metrics"
)

func testManagerConfig(url string) ManagerConfig {
	return ManagerConfig{
		URL:                url,
		Symbols:            []string{"BTC/USD"},
		Depth:              10,
		PingInterval:       30 * time.Second,
		StaleAfter:         90 * time.Second,
		WriteTimeout:       5 * time.Second,
		ReconnectBaseDelay: 10 * time.Millisecond,
		ReconnectMaxDelay:  100 * time.Millisecond,
		BufferSize:         16,
	}
}

func newTestManager(cfg ManagerConfig) Manager {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(cfg, m, logger)
}

func TestManager_SubscribesAndForwards(t *testing.T) {
	snapshot := `{"channel":"book","type":"snapshot","data":[{"symbol":"BTC/USD","bids":[],"asks":[],"checksum":1}]}`

	var gotSubscribe atomic.Value

	server := mockWSServer(t, func(conn *websocket.Conn) {
		// First frame must be the book subscription
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		gotSubscribe.Store(string(msg))

		if err := conn.WriteMessage(websocket.TextMessage, []byte(snapshot)); err != nil {
			return
		}

		// Keep the connection open
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	mgr := newTestManager(testManagerConfig(wsURL(server)))

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case msg := <-mgr.Messages():
		if string(msg.Data) != snapshot {
			t.Errorf("forwarded frame = %s, want %s", msg.Data, snapshot)
		}
		if msg.ReceivedAt.IsZero() {
			t.Error("ReceivedAt should not be zero")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for forwarded frame")
	}

	// Verify the subscribe payload shape
	var req subscribeRequest
	sub, _ := gotSubscribe.Load().(string)
	if err := json.Unmarshal([]byte(sub), &req); err != nil {
		t.Fatalf("subscribe frame not valid JSON: %v", err)
	}
	if req.Method != "subscribe" {
		t.Errorf("method = %q, want subscribe", req.Method)
	}
	if req.Params.Channel != "book" {
		t.Errorf("channel = %q, want book", req.Params.Channel)
	}
	if len(req.Params.Symbol) != 1 || req.Params.Symbol[0] != "BTC/USD" {
		t.Errorf("symbol = %v, want [BTC/USD]", req.Params.Symbol)
	}
	if req.Params.Depth != 10 {
		t.Errorf("depth = %d, want 10", req.Params.Depth)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := mgr.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestManager_ReconnectsAfterDrop(t *testing.T) {
	var connections atomic.Int64

	server := mockWSServer(t, func(conn *websocket.Conn) {
		n := connections.Add(1)

		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}

		if n == 1 {
			// Drop the first connection right after the subscribe
			return
		}

		// Keep later connections open
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	mgr := newTestManager(testManagerConfig(wsURL(server)))

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		stats := mgr.Stats()
		if stats.Reconnects >= 1 && stats.Connected {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	stats := mgr.Stats()
	if stats.Reconnects < 1 {
		t.Errorf("Reconnects = %d, want >= 1", stats.Reconnects)
	}
	if !stats.Connected {
		t.Error("expected manager to be connected after reconnect")
	}
	if connections.Load() < 2 {
		t.Errorf("server saw %d connections, want >= 2", connections.Load())
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := mgr.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestManager_StopWithoutConnection(t *testing.T) {
	// Nothing listens on this port; Stop must still return promptly.
	cfg := testManagerConfig("ws://127.0.0.1:1")
	mgr := newTestManager(cfg)

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := mgr.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if mgr.Stats().Connected {
		t.Error("expected disconnected state")
	}
}
