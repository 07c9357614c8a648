package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Snapshot is the live state of the current run, served as JSON on
// /progress.
type Snapshot struct {
	Running    bool      `json:"running"`
	Current    int       `json:"current"`
	Total      int       `json:"total"`
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
	Halted     int       `json:"halted"`
	LastTo     string    `json:"last_to,omitempty"`
	LastStatus string    `json:"last_status,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Server serves Prometheus metrics and run progress over HTTP.
type Server struct {
	httpServer *http.Server
	metrics    *Metrics
	addr       string
	logger     *slog.Logger

	mu       sync.RWMutex
	snapshot Snapshot
}

// NewServer creates a status server. The zero addr defaults to :9091.
func NewServer(m *Metrics, addr string, logger *slog.Logger) *Server {
	if addr == "" {
		addr = ":9091"
	}
	s := &Server{
		metrics: m,
		addr:    addr,
		logger:  logger,
	}
	// Built up front so a Shutdown racing a slow start still reaches
	// the server.
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Update replaces the progress snapshot. Called from the dispatch
// progress callback.
func (s *Server) Update(snap Snapshot) {
	snap.UpdatedAt = time.Now()
	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()
}

// ListenAndServe starts the status HTTP server. A graceful Shutdown is
// not an error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("starting status server", "addr", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(
		s.metrics.Registry(),
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	))
	r.Get("/progress", s.handleProgress)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}

func (s *Server) handleProgress(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	snap := s.snapshot
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.logger.Warn("failed to encode progress", "error", err)
	}
}
