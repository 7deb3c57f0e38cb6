// Package api exposes the order execution engine over HTTP: Submit, Get,
// List, Stats, and a websocket Subscribe stream. Grounded on the teacher's
// api/router.go APIServer, generalized from its sprawling HFT/exchange
// surface down to the five operations §6 of the system's HTTP contract
// requires.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/solswap/execution-engine/internal/engine"
	"github.com/solswap/execution-engine/pkg/observability"
)

// Config controls the HTTP listener.
type Config struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// PublicScheme and PublicHost build the subscribeURL returned by
	// Submit; when empty they're derived from the incoming request.
	PublicScheme string
	PublicHost   string
}

// Server is the HTTP surface over an Engine.
type Server struct {
	cfg    Config
	engine *engine.Engine
	logger *observability.Logger
	router *mux.Router
	http   *http.Server
	health *observability.HealthServer

	upgrader websocket.Upgrader
}

// NewServer builds a Server wired to eng. Call Start to listen. health
// serves /health, /health/live, /health/ready, and /health/startup.
func NewServer(cfg Config, eng *engine.Engine, logger *observability.Logger, health *observability.HealthServer) *Server {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}

	s := &Server{
		cfg:    cfg,
		engine: eng,
		logger: logger,
		router: mux.NewRouter(),
		health: health,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/orders", s.handleSubmit).Methods(http.MethodPost)
	s.router.HandleFunc("/orders", s.handleList).Methods(http.MethodGet)
	s.router.HandleFunc("/orders/{id}", s.handleGet).Methods(http.MethodGet)
	s.router.HandleFunc("/orders/{id}/subscribe", s.handleSubscribe).Methods(http.MethodGet)
	s.router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	s.health.RegisterRoutes(s.router)
}

// Start begins listening. It returns once the listener is bound; serving
// continues on a background goroutine.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error(context.Background(), "http server error", err)
		}
	}()

	s.logger.Info(context.Background(), "http server started", map[string]interface{}{"address": addr})
	return nil
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
