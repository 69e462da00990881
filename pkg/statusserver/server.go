// Package statusserver exposes a local, read-only HTTP view of upload
// progress: /health, /sessions/{id}, and /metrics. It never accepts control
// operations; those remain function-call based against the Session Engine
// (§6). This lets an operator curl a running process without wiring a full
// management API.
package statusserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/uploadkit/engine/internal/logger"
	"github.com/uploadkit/engine/pkg/store"
)

// Server is the status HTTP server.
type Server struct {
	server       *http.Server
	shutdownOnce sync.Once
}

// NewServer creates a status server reading from s. The server is created
// stopped; call Start to begin serving.
func NewServer(cfg Config, s store.Store) *Server {
	cfg.applyDefaults()

	return &Server{
		server: &http.Server{
			Addr:         cfg.Addr,
			Handler:      NewRouter(s),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("status server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errCh <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("status server failed: %w", err)
	}
}

// Stop gracefully shuts down the server. Safe to call multiple times.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if shutdownErr := s.server.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("status server shutdown error: %w", shutdownErr)
		}
	})
	return err
}
