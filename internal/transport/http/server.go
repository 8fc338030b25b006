// Package http provides the read-only observation API for alarmd.
//
// Routes (Go 1.22+ method-qualified patterns):
//
//	GET /health
//	GET /alarms
//	GET /alarms/{id}
//	GET /journal
//	GET /metrics
//	GET /events        (websocket event stream)
//
// The API never mutates alarms; all writes go through the console gateway.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alarmd-project/alarmd/internal/config"
	"github.com/alarmd-project/alarmd/internal/core"
	"github.com/alarmd-project/alarmd/internal/journal"
	"github.com/alarmd-project/alarmd/internal/metrics"
	transportws "github.com/alarmd-project/alarmd/internal/transport/websocket"
)

// Server wraps the stdlib HTTP server with alarmd route wiring.
type Server struct {
	inner *http.Server
}

// New builds a Server. jnl and reg may be nil when the journal or metrics are
// disabled; their routes then answer 404.
func New(c *core.Core, jnl *journal.Journal, cfg *config.Config, nodeID string, reg *metrics.Registry, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{core: c, journal: jnl, nodeID: nodeID, started: time.Now()}
	ws := &transportws.Handler{Hub: c.Hub(), Log: log}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /alarms", h.listAlarms)
	mux.HandleFunc("GET /alarms/{id}", h.getAlarm)
	mux.HandleFunc("GET /journal", h.recentJournal)

	// Metrics (Prometheus text format)
	if reg != nil {
		mux.Handle("GET /metrics", reg.Handler())
	}

	// Live event stream
	mux.Handle("GET /events", ws)

	var handler http.Handler = mux
	handler = chain(handler,
		LoggingMiddleware(log, reg),
		RateLimitMiddleware(float64(cfg.HTTP.RateLimitRPS), cfg.HTTP.RateLimitBurst),
	)

	return &Server{
		inner: &http.Server{
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Handler returns the composed http.Handler (useful for testing).
func (s *Server) Handler() http.Handler { return s.inner.Handler }

// ListenAndServe starts the server on the given address (e.g. ":8080").
// It returns when the server stops or encounters an error.
func (s *Server) ListenAndServe(addr string) error {
	s.inner.Addr = addr
	return s.inner.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting up to ctx's deadline for
// in-flight requests to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
