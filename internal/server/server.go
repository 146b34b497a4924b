// Package server exposes the hub over a single HTTP/WebSocket listener:
// device and plugin sessions, plugin and icon assets, fonts, LAN
// discovery and the optional Prometheus endpoint.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tilepad/tilepad-server/internal/logger"
	"github.com/tilepad/tilepad-server/pkg/hub"
)

// Identifier is the discovery identifier returned by /server/details.
const Identifier = "TILEPAD_CONTROLLER_SERVER"

// Config configures the hub listener.
type Config struct {
	// Host is the bind address.
	Host string

	// Port is the listen port.
	Port int

	// Metrics exposes /metrics on this listener.
	Metrics bool

	// IconsDir, UploadsDir and FontsDir are the static asset roots.
	IconsDir   string
	UploadsDir string
	FontsDir   string
}

// Server is the hub HTTP server.
//
// The server is created in a stopped state; Start begins serving and
// blocks until the context is cancelled.
type Server struct {
	server       *http.Server
	config       Config
	shutdownOnce sync.Once
}

// New creates the hub HTTP server.
func New(config Config, h *hub.Hub) *Server {
	router := NewRouter(config, h)

	// No server-level read/write timeouts: WebSocket sessions are
	// long-lived and manage their own deadlines.
	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:     router,
		IdleTimeout: 120 * time.Second,
	}

	return &Server{server: server, config: config}
}

// Start serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("hub server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("hub server shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("hub server failed: %w", err)
	}
}

// Stop initiates graceful shutdown. Safe to call multiple times.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("hub server shutdown error: %w", err)
			logger.Error("hub server shutdown error", "error", err)
		} else {
			logger.Info("hub server stopped gracefully")
		}
	})
	return shutdownErr
}

// Port returns the configured listen port.
func (s *Server) Port() int {
	return s.config.Port
}
