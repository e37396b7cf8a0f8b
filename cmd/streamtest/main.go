// streamtest prepares a replay session and streams the captured book
// messages to console. It exercises the full replay path: prepare over
// HTTP, subscribe over WebSocket, then frames until the server closes.
//
// Usage: go run ./cmd/streamtest --server http://localhost:8000 --start 2025-11-08
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

type prepareResponse struct {
	Status               string `json:"status"`
	ReplayStartTimestamp string `json:"replay_start_timestamp"`
	RequestedDate        string `json:"requested_date"`
	Message              string `json:"message"`
	Error                string `json:"error"`
}

// frame covers every shape the server sends: book payloads, subscribe
// acks, and error frames.
type frame struct {
	Channel string `json:"channel"`
	Method  string `json:"method"`
	Type    string `json:"type"`
	Data    []struct {
		Symbol    string            `json:"symbol"`
		Bids      []json.RawMessage `json:"bids"`
		Asks      []json.RawMessage `json:"asks"`
		Checksum  *int64            `json:"checksum"`
		Timestamp string            `json:"timestamp"`
	} `json:"data"`
	Success *bool  `json:"success"`
	Error   string `json:"error"`
}

func main() {
	server := flag.String("server", "http://localhost:8000", "replay server base URL")
	start := flag.String("start", "", "replay start date (YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS)")
	symbol := flag.String("symbol", "BTC/USD", "symbol to replay")
	verbose := flag.Bool("verbose", false, "print full message JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	if *start == "" {
		logger.Error("missing required flag", "flag", "-start")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	// Prepare the replay session
	logger.Info("preparing replay", "server", *server, "start", *start, "symbol", *symbol)
	prep, err := prepare(ctx, *server, *start, *symbol)
	if err != nil {
		logger.Error("prepare failed", "error", err)
		os.Exit(1)
	}
	logger.Info("replay prepared",
		"replay_start", prep.ReplayStartTimestamp,
		"requested", prep.RequestedDate,
	)

	// Connect and subscribe
	wsURL := "ws" + strings.TrimPrefix(*server, "http") +
		"/ws?start_date=" + url.QueryEscape(prep.ReplayStartTimestamp)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		logger.Error("failed to connect", "url", wsURL, "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	// Unblock the read loop when a signal lands
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	subscribe := struct {
		Method string `json:"method"`
		Params struct {
			Channel string   `json:"channel"`
			Symbol  []string `json:"symbol"`
		} `json:"params"`
	}{Method: "subscribe"}
	subscribe.Params.Channel = "book"
	subscribe.Params.Symbol = []string{*symbol}

	if err := conn.WriteJSON(subscribe); err != nil {
		logger.Error("failed to subscribe", "error", err)
		os.Exit(1)
	}

	// Stats printer
	var frames atomic.Int64
	startedAt := time.Now()
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n := frames.Load()
				elapsed := time.Since(startedAt).Seconds()
				logger.Info("stats", "frames", n, "rate", fmt.Sprintf("%.1f/s", float64(n)/elapsed))
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			switch {
			case websocket.IsCloseError(err, websocket.CloseNormalClosure):
				elapsed := time.Since(startedAt)
				logger.Info("replay complete",
					"frames", frames.Load(),
					"elapsed", elapsed.Round(time.Millisecond),
				)
				return
			case ctx.Err() != nil:
				logger.Info("stream interrupted", "frames", frames.Load())
				return
			default:
				logger.Error("stream ended", "error", err, "frames", frames.Load())
				os.Exit(1)
			}
		}
		printFrame(data, *verbose)
		frames.Add(1)
	}
}

// prepare POSTs the replay date and returns the resolved start point.
func prepare(ctx context.Context, server, start, symbol string) (*prepareResponse, error) {
	body, err := json.Marshal(map[string]string{"date": start, "symbol": symbol})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		server+"/replay/prepare", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var prep prepareResponse
	if err := json.Unmarshal(raw, &prep); err != nil {
		return nil, fmt.Errorf("bad response (%d): %s", resp.StatusCode, raw)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s (%d)", prep.Error, resp.StatusCode)
	}
	return &prep, nil
}

func printFrame(data []byte, verbose bool) {
	if verbose {
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err == nil {
			fmt.Printf("[FRAME] %s\n", buf.String())
			return
		}
	}

	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		fmt.Printf("[RAW] %s\n", data)
		return
	}

	switch {
	case f.Error != "":
		fmt.Printf("[ERROR] %s\n", f.Error)
	case f.Method == "subscribe":
		ok := f.Success != nil && *f.Success
		fmt.Printf("[ACK] subscribed success=%v\n", ok)
	case f.Channel == "book" && len(f.Data) > 0:
		d := f.Data[0]
		checksum := int64(0)
		if d.Checksum != nil {
			checksum = *d.Checksum
		}
		if f.Type == "snapshot" {
			fmt.Printf("[SNAPSHOT] symbol=%s bids=%d asks=%d checksum=%d\n",
				d.Symbol, len(d.Bids), len(d.Asks), checksum)
		} else {
			fmt.Printf("[UPDATE] symbol=%s bids=%d asks=%d checksum=%d ts=%s\n",
				d.Symbol, len(d.Bids), len(d.Asks), checksum, d.Timestamp)
		}
	default:
		fmt.Printf("[RAW] %s\n", data)
	}
}
