// Package server runs the loopback bridge the webview talks to.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/simplepos/shell/pkg/logger"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Server is an http.Server bound to a listener it owns.
type Server struct {
	http *http.Server
	ln   net.Listener
}

// Listen binds addr. Use "127.0.0.1:0" for an ephemeral port.
func Listen(addr string, handler http.Handler) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("server: listen %s: %w", addr, err)
	}
	return &Server{
		http: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		ln: ln,
	}, nil
}

// Addr is the bound address.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Serve handles requests until ctx ends, then drains in-flight requests for
// up to ten seconds.
func (s *Server) Serve(ctx context.Context) error {
	serveErr := make(chan error, 1)
	logger.Target("bridge").Info("bridge: listening", "addr", s.Addr())
	go func() {
		serveErr <- s.http.Serve(s.ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		logger.Target("bridge").Info("bridge: stopped")
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: serve: %w", err)
	}
}

// Start listens on addr and serves until ctx ends.
func Start(ctx context.Context, addr string, handler http.Handler) error {
	s, err := Listen(addr, handler)
	if err != nil {
		return err
	}
	return s.Serve(ctx)
}
