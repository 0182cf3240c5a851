package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/fsgate/internal/logger"
	"github.com/marmos91/fsgate/pkg/adapter"
	"github.com/marmos91/fsgate/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// DefaultShutdownTimeout bounds adapter shutdown when none is configured.
const DefaultShutdownTimeout = 30 * time.Second

// GatewayServer manages the lifecycle of the protocol adapters and the
// optional metrics server.
//
// Lifecycle:
//  1. Creation: New() with the shutdown timeout
//  2. Registration: AddAdapter() for each protocol, SetMetricsServer()
//  3. Startup: Serve() starts everything concurrently
//  4. Shutdown: Context cancellation or any component failure stops all
//     adapters in reverse registration order
//
// Thread safety:
// AddAdapter() may be called concurrently with other methods before Serve().
// Serve() may only be called once per server instance.
//
// Example usage:
//
//	srv := server.New(cfg.Server.ShutdownTimeout)
//	for _, a := range adapters {
//	    srv.AddAdapter(a)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
//	    log.Fatal(err)
//	}
type GatewayServer struct {
	shutdownTimeout time.Duration

	// mu protects adapters, metrics and served
	mu       sync.Mutex
	adapters []adapter.Adapter
	metrics  *metrics.Server
	served   bool
}

// New creates a server that allows shutdownTimeout for adapters to drain.
func New(shutdownTimeout time.Duration) *GatewayServer {
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	return &GatewayServer{
		shutdownTimeout: shutdownTimeout,
		adapters:        make([]adapter.Adapter, 0, 2),
	}
}

// AddAdapter registers a protocol adapter.
//
// Returns an error if an adapter for the same protocol or port is already
// registered, or if Serve() has been called.
//
// Panics if a is nil (programmer error).
func (s *GatewayServer) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		return fmt.Errorf("cannot add adapter after Serve() has been called")
	}

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if port != 0 && existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}

	s.adapters = append(s.adapters, a)
	logger.Info("Registered %s adapter on port %d", protocol, port)

	return nil
}

// SetMetricsServer registers the metrics server started alongside the adapters.
func (s *GatewayServer) SetMetricsServer(m *metrics.Server) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
}

// Serve starts all registered adapters and the metrics server, and blocks
// until the context is cancelled or one of them fails.
//
// Shutdown behavior:
// When the context is cancelled or a component fails:
//   - All adapters receive Stop() in reverse registration order, sharing one
//     shutdown timeout
//   - Serve() waits for every component to return
//
// Returns:
//   - the context error if shutdown was triggered by cancellation
//   - the first component error otherwise
func (s *GatewayServer) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return fmt.Errorf("server is already serving")
	}
	s.served = true
	if len(s.adapters) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	metricsServer := s.metrics
	s.mu.Unlock()

	logger.Info("Starting fsgate with %d adapter(s)", len(adapters))

	g, gctx := errgroup.WithContext(ctx)

	for _, a := range adapters {
		g.Go(func() error {
			protocol := a.Protocol()
			logger.Debug("Starting %s adapter", protocol)

			err := a.Serve(gctx)
			if err == nil || errors.Is(err, context.Canceled) {
				logger.Debug("%s adapter stopped", protocol)
				return nil
			}
			logger.Error("%s adapter failed: %v", protocol, err)
			return fmt.Errorf("%s adapter error: %w", protocol, err)
		})
	}

	if metricsServer != nil {
		g.Go(func() error {
			return metricsServer.Start(gctx)
		})
	}

	// Stop everything once the group context ends, whatever ended it.
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received (reason: %v)", context.Cause(gctx))
		s.stopAllAdapters(adapters)
		return nil
	})

	err := g.Wait()
	logger.Info("fsgate stopped")

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// stopAllAdapters stops adapters in reverse registration order. All Stop()
// calls share one timeout.
func (s *GatewayServer) stopAllAdapters(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	logger.Info("Initiating graceful shutdown of %d adapter(s)", len(adapters))

	for i := len(adapters) - 1; i >= 0; i-- {
		a := adapters[i]
		if err := a.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", a.Protocol(), err)
		}
	}
}

// Adapters returns a snapshot of the registered adapters.
func (s *GatewayServer) Adapters() []adapter.Adapter {
	s.mu.Lock()
	defer s.mu.Unlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}
