// Package gateway exposes the orchestrator over HTTP: JSON control
// routes plus SSE and WebSocket event streams.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/averin/conduit/internal/observability"
	"github.com/averin/conduit/internal/tracing"
	"github.com/averin/conduit/pkg/orchestrator"
)

// Server is the HTTP front of the daemon.
type Server struct {
	port         int
	sharedSecret string
	orch         *orchestrator.Orchestrator
	server       *http.Server
	upgrader     websocket.Upgrader
	logger       zerolog.Logger

	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// Config holds server configuration.
type Config struct {
	Port         int
	SharedSecret string
	Orchestrator *orchestrator.Orchestrator
	Logger       zerolog.Logger
}

// NewServer creates a gateway server. The shared secret is optional;
// when set, every request must carry it in X-Conduit-Secret.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}

	return &Server{
		port:         cfg.Port,
		sharedSecret: cfg.SharedSecret,
		orch:         cfg.Orchestrator,
		logger:       cfg.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for now
			},
		},
	}, nil
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /agent/create", s.guard(s.handleCreate))
	mux.HandleFunc("POST /agent/{id}/query", s.guard(s.handleQuery))
	mux.HandleFunc("GET /agent/{id}/events", s.guard(s.handleEvents))
	mux.HandleFunc("GET /agent/{id}/ws", s.guard(s.handleWebSocket))
	mux.HandleFunc("GET /agent/{id}/status", s.guard(s.handleStatus))
	mux.HandleFunc("GET /agent/{id}/session", s.guard(s.handleSession))
	mux.HandleFunc("POST /agent/{id}/interrupt", s.guard(s.handleInterrupt))
	mux.HandleFunc("DELETE /agent/{id}", s.guard(s.handleDelete))
	mux.HandleFunc("GET /agents", s.guard(s.handleList))
	mux.Handle("GET /metrics", observability.MetricsHandler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// Start begins serving. Non-blocking.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Handler(),
	}

	s.logger.Info().Int("port", s.port).Msg("Starting gateway server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()

	return nil
}

// Stop gracefully stops the server, waiting for in-flight requests.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down gateway server")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}

	s.logger.Info().Msg("Gateway server stopped")
	return nil
}

// guard wraps a handler with the shutdown check, the shared secret
// check and in-flight accounting.
func (s *Server) guard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.shutdownMu.RLock()
		if s.isShuttingDown {
			s.shutdownMu.RUnlock()
			http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
			return
		}
		s.shutdownMu.RUnlock()

		if s.sharedSecret != "" {
			if r.Header.Get("X-Conduit-Secret") != s.sharedSecret {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}

		traceID := r.Header.Get("X-Trace-Id")
		if traceID == "" {
			traceID = tracing.NewTraceID()
		}
		ctx := tracing.WithTraceID(r.Context(), traceID)
		logger := tracing.LoggerFromContext(ctx, s.logger)
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Gateway request")

		s.inFlightReqs.Add(1)
		defer s.inFlightReqs.Done()
		next(w, r.WithContext(ctx))
	}
}
