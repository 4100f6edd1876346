// Package fileserver serves a directory of playlist and segment files over
// HTTP and can be started and stopped repeatedly.
package fileserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
)

// Server is a stoppable static file server over a single directory.
type Server struct {
	addr string
	dir  string
	log  *slog.Logger

	mu      sync.Mutex
	srv     *http.Server
	port    int
	serving bool
}

// New returns an unstarted Server that will listen on addr and serve dir.
// addr may use port 0 to pick a free port.
func New(addr, dir string, log *slog.Logger) *Server {
	return &Server{addr: addr, dir: dir, log: log}
}

// Start begins serving. Starting an already-serving server is a no-op.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.serving {
		return nil
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}

	srv := &http.Server{Handler: http.FileServer(http.Dir(s.dir))}
	s.srv = srv
	s.port = ln.Addr().(*net.TCPAddr).Port
	s.serving = true

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("file server stopped unexpectedly", slog.String("error", err.Error()))
		}
		s.mu.Lock()
		if s.srv == srv {
			s.serving = false
			s.srv = nil
		}
		s.mu.Unlock()
	}()

	s.log.Info("file server started",
		slog.Int("port", s.port),
		slog.String("dir", s.dir))
	return nil
}

// Stop shuts the server down gracefully. Stopping a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.serving = false
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("file server shutdown: %w", err)
	}
	s.log.Info("file server stopped")
	return nil
}

// Serving reports whether the server is currently accepting requests.
func (s *Server) Serving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serving
}

// URL returns the local URL for a file name under the served directory, or
// the empty string when the server is not serving.
func (s *Server) URL(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.serving {
		return ""
	}
	return fmt.Sprintf("http://localhost:%d/%s", s.port, name)
}
