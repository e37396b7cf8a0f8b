package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/kraken-replay/internal/config"
	"github.com/rickgao/kraken-replay/internal/metrics"
	"github.com/rickgao/kraken-replay/internal/model"
	"github.com/rickgao/kraken-replay/internal/replay"
	"github.com/rickgao/kraken-replay/internal/store"
)

// SourceOpener opens an ordered record source for one session.
type SourceOpener interface {
	Open(symbol string, from model.StartPoint) replay.RecordSource
}

// storeOpener adapts the store's cursor to the opener interface.
type storeOpener struct {
	st       *store.Store
	pageSize int
}

// NewStoreOpener returns an opener reading pages of pageSize from st.
func NewStoreOpener(st *store.Store, pageSize int) SourceOpener {
	return storeOpener{st: st, pageSize: pageSize}
}

func (o storeOpener) Open(symbol string, from model.StartPoint) replay.RecordSource {
	return o.st.Scan(store.ScanConfig{
		Symbol:   symbol,
		From:     from,
		PageSize: o.pageSize,
	})
}

// Server serves the replay protocol.
type Server struct {
	cfg     config.ReplayConfig
	index   *replay.Index
	opener  SourceOpener
	metrics *metrics.Metrics
	logger  *slog.Logger

	httpSrv  *http.Server
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a replay server. Sessions opened before Start still work,
// which keeps handler-level tests free of lifecycle plumbing.
func New(cfg config.ReplayConfig, index *replay.Index, opener SourceOpener, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:     cfg,
		index:   index,
		opener:  opener,
		metrics: m,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("/replay/prepare", requireMethod(http.MethodPost, s.handlePrepare))
	mux.HandleFunc("/ws", requireMethod(http.MethodGet, s.handleWS))

	s.httpSrv = &http.Server{
		Addr:              cfg.Listen,
		Handler:           corsMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the HTTP handler, for mounting under a test server.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start begins serving on the configured address.
func (s *Server) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	go func() {
		s.logger.Info("replay server started", "addr", s.cfg.Listen)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("replay server failed", "error", err)
		}
	}()

	return nil
}

// Stop ends all sessions and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping replay server")

	s.cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Warn("replay server shutdown", "error", err)
	}

	// Shutdown does not wait for hijacked connections, so wait for
	// sessions ourselves.
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("replay sessions did not drain in time")
	}

	s.logger.Info("replay server stopped")
	return nil
}

// requireMethod restricts a route to one HTTP method, answering others
// with 405 the way method-qualified mux patterns do on Go 1.22+; this
// module must also build on toolchains that predate that syntax.
func requireMethod(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

// corsMiddleware allows browser clients to call the prepare endpoint from
// any origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("response encode failed", "error", err)
	}
}
