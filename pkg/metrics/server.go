package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/fsgate/internal/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsShutdownTimeout = 5 * time.Second

// Server exposes a Registry at GET /metrics for Prometheus to scrape. It runs
// beside the gateway adapter and knows nothing about gateway requests.
type Server struct {
	handler http.Handler
	port    atomic.Int32

	mu      sync.Mutex
	server  *http.Server
	stopped bool
}

// NewServer creates a stopped server for reg on port. Port 0 binds an
// ephemeral port, reported by Port once Start is running.
func NewServer(reg *Registry, port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", scrapeHandler(reg))

	s := &Server{handler: mux}
	s.port.Store(int32(port))
	return s
}

func scrapeHandler(reg *Registry) http.Handler {
	if !reg.Enabled() {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics collection is disabled", http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(reg.Registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// Start listens and serves until ctx is cancelled or Stop is called. It
// returns nil after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.Port()))
	if err != nil {
		return fmt.Errorf("metrics server failed: %w", err)
	}
	if tcp, ok := listener.Addr().(*net.TCPAddr); ok {
		s.port.Store(int32(tcp.Port))
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return listener.Close()
	}
	s.server = srv
	s.mu.Unlock()

	logger.Info("Metrics server listening on %s", listener.Addr())

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		stopCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := s.Stop(stopCtx); err != nil {
			logger.Warn("%v", err)
		}
	}()

	if err := srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server failed: %w", err)
	}
	return nil
}

// Stop shuts the server down. Calls after the first are no-ops.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	already := s.stopped
	s.stopped = true
	s.mu.Unlock()

	if already || srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	logger.Info("Metrics server stopped")
	return nil
}

// Port returns the listening port once Start has bound it, the configured
// port before.
func (s *Server) Port() int {
	return int(s.port.Load())
}
