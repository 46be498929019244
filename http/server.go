// Package http serves the inference pipeline over HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ServerConfig configures the HTTP listener and middleware limits.
type ServerConfig struct {
	Port           int
	Timeout        time.Duration
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// DefaultServerConfig returns the settings used by tests and local runs.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           8080,
		Timeout:        30 * time.Second,
		AllowedOrigins: []string{"*"},
		MaxBodyBytes:   1 << 20,
	}
}

// Server owns the http.Server and its routed handler.
type Server struct {
	server  *http.Server
	handler http.Handler
	config  ServerConfig
	logger  *zap.Logger
}

// NewServer wires the API routes behind the middleware chain. The verdict
// feed, when present, skips the timeout and body limit so the WebSocket
// stays open.
func NewServer(config ServerConfig, h *Handlers, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	api := http.NewServeMux()
	RegisterHandlers(api, h)

	chain := Chain(
		RecoveryMiddleware(logger),
		LoggerMiddleware(logger),
		SecurityHeadersMiddleware,
		CORSMiddleware(config.AllowedOrigins),
		TimeoutMiddleware(config.Timeout),
		RequestSizeMiddleware(config.MaxBodyBytes),
	)

	root := http.NewServeMux()
	root.Handle("/", chain(api))
	if h.Feed != nil {
		feed := Chain(
			RecoveryMiddleware(logger),
			LoggerMiddleware(logger),
		)
		root.Handle("GET /api/ws/verdicts", feed(http.HandlerFunc(h.Feed.HandleWebSocket)))
	}

	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", config.Port),
			Handler:           root,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		handler: root,
		config:  config,
		logger:  logger,
	}
}

// Handler returns the routed handler, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start blocks until the server stops. A clean Shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
