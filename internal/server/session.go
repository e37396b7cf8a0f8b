package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/kraken-replay/internal/model"
	"github.com/rickgao/kraken-replay/internal/replay"
)

const (
	subscribeTimeout = 30 * time.Second
	writeTimeout     = 10 * time.Second
)

// Session failures after the upgrade travel as {"error": ...} text frames.
// These strings are part of the protocol.
var (
	errNoSubscription   = errors.New("No subscription message received")
	errNoSymbols        = errors.New("No symbols in subscription")
	errMissingStartDate = errors.New("start_date parameter required in query string")
	errBadStartDate     = errors.New("Invalid start_date format. Use ISO format (YYYY-MM-DDTHH:MM:SS)")
)

// subscribeFrame is the inbound Kraken-style subscription envelope.
type subscribeFrame struct {
	Method string `json:"method"`
	Params struct {
		Channel string   `json:"channel"`
		Symbol  []string `json:"symbol"`
	} `json:"params"`
}

// subscribeAck mirrors the ack a live book subscription gets.
type subscribeAck struct {
	Method  string    `json:"method"`
	Result  ackResult `json:"result"`
	Success bool      `json:"success"`
	TimeIn  string    `json:"time_in"`
	TimeOut string    `json:"time_out"`
}

type ackResult struct {
	Channel  string `json:"channel"`
	Snapshot bool   `json:"snapshot"`
	Symbol   string `json:"symbol"`
}

// handleWS runs one replay session over a WebSocket connection.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	s.wg.Add(1)
	defer s.wg.Done()

	logger := s.logger.With("remote", r.RemoteAddr)

	symbol, err := awaitSubscribe(conn)
	if err != nil {
		s.writeError(conn, err.Error())
		return
	}

	startAt, err := parseStartDate(r.URL.Query().Get("start_date"))
	if err != nil {
		s.writeError(conn, err.Error())
		return
	}

	sp, err := s.index.Resolve(s.ctx, symbol, startAt)
	if errors.Is(err, replay.ErrStaleStartPoint) {
		s.metrics.ReplayErrors.Inc()
		logger.Warn("stale start point", "symbol", symbol, "start_date", startAt)
		s.writeError(conn, "Prepared start point is stale, prepare again")
		s.closeWith(conn, websocket.ClosePolicyViolation, "stale start point")
		return
	}
	if err != nil {
		s.metrics.ReplayErrors.Inc()
		logger.Error("start point resolve failed", "symbol", symbol, "error", err)
		s.writeError(conn, err.Error())
		s.closeWith(conn, websocket.CloseInternalServerErr, "resolve failed")
		return
	}

	if err := s.sendAck(conn, symbol); err != nil {
		logger.Warn("subscription ack failed", "error", err)
		return
	}

	s.runSession(conn, logger, symbol, sp)
}

// runSession streams one snapshot-to-snapshot window to the client.
func (s *Server) runSession(conn *websocket.Conn, logger *slog.Logger, symbol string, sp model.StartPoint) {
	source := s.opener.Open(symbol, sp)
	out := make(chan []byte, s.cfg.BufferSize)

	ctrl := replay.NewController(replay.ControllerConfig{
		Symbol:  symbol,
		MaxRate: s.cfg.MaxRate,
	}, source, out, logger)

	logger = logger.With("session_id", ctrl.ID())

	s.metrics.ReplaySessions.Inc()
	s.metrics.ReplayActive.Inc()
	defer s.metrics.ReplayActive.Dec()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	// The client sends nothing after subscribing; reads only notice it
	// going away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	runErr := make(chan error, 1)
	go func() {
		runErr <- ctrl.Run(ctx)
		close(out)
	}()

	for payload := range out {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			logger.Warn("session write failed", "error", err)
			cancel()
			for range out {
			}
			break
		}
		s.metrics.ReplayMessages.Inc()
	}

	switch err := <-runErr; {
	case err == nil:
		logger.Info("replay session complete", "sent", ctrl.Sent())
		s.closeWith(conn, websocket.CloseNormalClosure, "replay complete")

	case errors.Is(err, replay.ErrMissingSnapshot):
		s.metrics.ReplayErrors.Inc()
		logger.Warn("replay window missing opening snapshot", "symbol", symbol)
		s.writeError(conn, "Replay window does not start with a snapshot")
		s.closeWith(conn, websocket.ClosePolicyViolation, "missing snapshot")

	case errors.Is(err, context.Canceled):
		logger.Info("replay session canceled", "sent", ctrl.Sent())

	default:
		s.metrics.ReplayErrors.Inc()
		logger.Error("replay session failed", "sent", ctrl.Sent(), "error", err)
		s.writeError(conn, err.Error())
		s.closeWith(conn, websocket.CloseInternalServerErr, "replay failed")
	}
}

// awaitSubscribe reads frames until one is a subscribe command, mirroring
// how the live feed ignores anything else before the subscription.
func awaitSubscribe(conn *websocket.Conn) (string, error) {
	conn.SetReadDeadline(time.Now().Add(subscribeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return "", errNoSubscription
		}

		var frame subscribeFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		if frame.Method != "subscribe" {
			continue
		}
		if len(frame.Params.Symbol) == 0 {
			return "", errNoSymbols
		}
		return frame.Params.Symbol[0], nil
	}
}

var startDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

// parseStartDate reads the start_date query value. A '+' in an unescaped
// query string arrives as a space, so put it back before parsing. Naive
// timestamps are read as UTC.
func parseStartDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errMissingStartDate
	}

	raw = strings.ReplaceAll(raw, " ", "+")
	for _, layout := range startDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errBadStartDate
}

func (s *Server) sendAck(conn *websocket.Conn, symbol string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	ack := subscribeAck{
		Method: "subscribe",
		Result: ackResult{
			Channel:  "book",
			Snapshot: true,
			Symbol:   symbol,
		},
		Success: true,
		TimeIn:  now,
		TimeOut: now,
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(ack)
}

func (s *Server) writeError(conn *websocket.Conn, msg string) {
	frame, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if werr := conn.WriteMessage(websocket.TextMessage, frame); werr != nil {
		s.logger.Debug("error frame write failed", "error", werr)
	}
}

func (s *Server) closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(writeTimeout)
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		s.logger.Debug("close frame write failed", "error", err)
	}
}
