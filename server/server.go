package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/xhad/pagesearch/pkg/config"
	"github.com/xhad/pagesearch/pkg/protocol"
	"github.com/xhad/pagesearch/pkg/retrieval"
)

const shutdownTimeout = 10 * time.Second

// Server exposes an Orchestrator over websocket. Every connection is one
// session of the protocol.
type Server struct {
	config       config.ServerConfig
	orchestrator *protocol.Orchestrator
	upgrader     websocket.Upgrader
	logger       *log.Logger
	ready        func() bool

	sessions atomic.Int32
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

type Option func(*Server)

func WithLogger(logger *log.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithReadiness reports whether the embedding model is loaded on /health.
func WithReadiness(fn func() bool) Option {
	return func(s *Server) { s.ready = fn }
}

func New(cfg *config.Config, backend retrieval.Backend, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config: cfg.Server,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Be careful with this in production
			},
		},
		logger: log.Default(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.orchestrator = protocol.NewOrchestrator(backend,
		protocol.WithDefaultThreshold(cfg.Search.Threshold),
		protocol.WithOrchestratorLogger(s.logger),
	)
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.config.Path, s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Sessions returns the number of connected callers.
func (s *Server) Sessions() int {
	return int(s.sessions.Load())
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()
	s.sessions.Add(1)
	defer s.sessions.Add(-1)

	id := uuid.NewString()
	s.logger.Printf("session %s connected from %s", id, r.RemoteAddr)

	err = s.orchestrator.Serve(s.ctx, protocol.NewWebSocketChannel(conn, protocol.WithReadLimit(s.config.MaxMessageBytes)))
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Printf("session %s ended: %v", id, err)
		return
	}
	s.logger.Printf("session %s closed", id)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":   "ok",
		"sessions": s.Sessions(),
	}
	if s.ready != nil {
		status["model_loaded"] = s.ready()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Printf("Error writing health response: %v", err)
	}
}

// ListenAndServe serves until ctx is done, then notifies connected callers
// and shuts down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("Starting WebSocket server on %s%s", s.config.Addr, s.config.Path)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}

	s.logger.Printf("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	s.Close()
	return err
}

// Close ends every session and waits for their handlers to return.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}
