// Package ingest provides an HTTP server through which the external
// macro agent and candidate scanner publish into C2 (spec §2: "external
// macro/scanner agents write into C2"; §4.2's watchlist/regime
// mutators). Grounded on the teacher's internal/webhook postback
// receiver, generalized from order-postback-parsing to two plain JSON
// ingestion routes.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/nitinkhare/quantumflow/internal/state"
)

// Config holds ingest server settings.
type Config struct {
	Port int
}

// watchlistPayload is the wire shape the scanner posts to /ingest/watchlist.
type watchlistPayload struct {
	Entries []state.WatchlistEntry `json:"entries"`
}

// regimePayload is the wire shape the macro agent posts to /ingest/regime.
type regimePayload struct {
	Snapshot state.RegimeSnapshot `json:"snapshot"`
}

// Server is the HTTP ingestion receiver for C2 writes that originate
// outside the core.
type Server struct {
	cfg    Config
	store  *state.Store
	logger *zap.Logger
	srv    *http.Server
}

// New creates a Server. It does not start listening until Start is called.
func New(cfg Config, store *state.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{cfg: cfg, store: store, logger: logger}
}

// Start begins listening in a background goroutine.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ingest/watchlist", s.handleWatchlist)
	mux.HandleFunc("/ingest/regime", s.handleRegime)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"status":"ok"}`)
	})

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("ingest: starting server", zap.String("addr", addr))
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("ingest: server error", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown gracefully stops the ingest server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleWatchlist(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var payload watchlistPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.store.SetWatchlist(payload.Entries)
	s.logger.Info("ingest: watchlist replaced", zap.Int("entries", len(payload.Entries)))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRegime(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var payload regimePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.store.SetRegime(payload.Snapshot)
	s.logger.Info("ingest: regime updated", zap.String("label", string(payload.Snapshot.RegimeLabel)))
	w.WriteHeader(http.StatusNoContent)
}
