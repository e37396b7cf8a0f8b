package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rickgao/kraken-replay/internal/store"
)

// Date layouts accepted by the prepare endpoint. Naive forms are read as
// UTC.
var prepareLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z",
	time.RFC3339,
}

type prepareRequest struct {
	Date   json.RawMessage `json:"date"`
	Symbol string          `json:"symbol"`
}

// handlePrepare resolves a requested date to the snapshot the replay will
// start from and tells the client where that is.
func (s *Server) handlePrepare(w http.ResponseWriter, r *http.Request) {
	var req prepareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.PrepareRequests.WithLabelValues("invalid").Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	if len(req.Date) == 0 || string(req.Date) == "null" {
		s.metrics.PrepareRequests.WithLabelValues("invalid").Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date parameter required"})
		return
	}

	requested, err := parseRequestedDate(req.Date)
	if err != nil {
		s.metrics.PrepareRequests.WithLabelValues("invalid").Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid date format: " + err.Error()})
		return
	}

	symbol := req.Symbol
	if symbol == "" {
		symbol = s.cfg.DefaultSymbol
	}

	sp, err := s.index.FindStartPoint(r.Context(), symbol, requested)
	if errors.Is(err, store.ErrNoSnapshot) {
		s.metrics.PrepareRequests.WithLabelValues("not_found").Inc()
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":          "No snapshot found after the requested date",
			"requested_date": requested.Format(time.RFC3339Nano),
		})
		return
	}
	if err != nil {
		s.metrics.PrepareRequests.WithLabelValues("error").Inc()
		s.logger.Error("prepare failed", "symbol", symbol, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	s.metrics.PrepareRequests.WithLabelValues("ready").Inc()
	s.logger.Info("replay prepared",
		"symbol", symbol,
		"requested", requested,
		"snapshot", sp.EventTime,
	)

	writeJSON(w, http.StatusOK, map[string]string{
		"status":                 "ready",
		"replay_start_timestamp": sp.EventTime.UTC().Format(time.RFC3339Nano),
		"requested_date":         requested.Format(time.RFC3339Nano),
		"message":                "Replay prepared. Connect via WebSocket to start.",
	})
}

// parseRequestedDate accepts a date string in one of the prepare layouts
// or a numeric Unix timestamp with optional fractional seconds.
func parseRequestedDate(raw json.RawMessage) (time.Time, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		for _, layout := range prepareLayouts {
			if t, perr := time.Parse(layout, str); perr == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, errors.New("use YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS")
	}

	var unix float64
	if err := json.Unmarshal(raw, &unix); err == nil {
		secs := int64(unix)
		nsec := int64((unix - float64(secs)) * float64(time.Second))
		return time.Unix(secs, nsec).UTC(), nil
	}

	return time.Time{}, errors.New("date must be a string or Unix timestamp")
}
