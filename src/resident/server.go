// Package resident exposes a running pipeline on a loopback port. Binding the
// port doubles as the single-instance lock: a second daemon fails to bind and
// refuses to start.
package resident

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"character-hunter/src/coordinator"
)

const (
	residentHost = "127.0.0.1"
	pongBody     = "PONG\n"
)

// ErrAlreadyRunning is returned by Listen when the resident port is taken.
var ErrAlreadyRunning = errors.New("another instance is already running")

// StatusFunc returns the snapshot served on /status.
type StatusFunc func() coordinator.Snapshot

// Server serves /ping and /status over loopback HTTP.
type Server struct {
	port   int
	status StatusFunc
	lis    net.Listener
	srv    *http.Server
}

func NewServer(port int, status StatusFunc) *Server {
	return &Server{port: port, status: status}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(pongBody))
	})
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s.status()); err != nil {
			log.Printf("resident: encode status: %v", err)
		}
	})
	return r
}

// Listen binds ONLY the configured port. If it is occupied, it fails with
// ErrAlreadyRunning. Port 0 binds an ephemeral port.
func (s *Server) Listen() error {
	if s.lis != nil {
		return nil
	}
	addr := net.JoinHostPort(residentHost, strconv.Itoa(s.port))
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Printf("resident: failed to bind %s: %v", addr, err)
		return fmt.Errorf("%w: %w", ErrAlreadyRunning, err)
	}
	s.lis = lis
	s.port = lis.Addr().(*net.TCPAddr).Port
	log.Printf("resident: listening on %s", lis.Addr())
	return nil
}

// Port returns the bound port (the configured one before Listen).
func (s *Server) Port() int { return s.port }

// Close releases the port if Serve never ran or has already stopped.
func (s *Server) Close() error {
	if s.lis == nil {
		return nil
	}
	err := s.lis.Close()
	s.lis = nil
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Serve handles requests until ctx is cancelled. Listen must succeed first.
func (s *Server) Serve(ctx context.Context) error {
	if s.lis == nil {
		return errors.New("resident: Serve called before Listen")
	}
	s.srv = &http.Server{Handler: s.Router(), ReadHeaderTimeout: 3 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(s.lis) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
		<-errCh
		log.Printf("resident: stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
