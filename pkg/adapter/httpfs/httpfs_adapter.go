package httpfs

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
	"github.com/marmos91/fsgate/internal/ratelimiter"
	"golang.org/x/net/netutil"
)

// HTTPAdapter serves the filesystem gateway over HTTP.
//
// The adapter owns the listener and the http.Server; request semantics live
// entirely in the handler it is given.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. In-flight requests drain, up to ShutdownTimeout
//  4. Remaining connections are closed
//
// Thread safety:
// All methods are safe for concurrent use. Shutdown is idempotent.
type HTTPAdapter struct {
	config  HTTPConfig
	handler http.Handler
	limiter *ratelimiter.RateLimiter

	// mu protects server and stopped. Stop sets stopped before reading
	// server, so Serve either publishes its server in time to be shut down
	// or sees stopped and never starts.
	mu      sync.Mutex
	server  *http.Server
	stopped bool
	port    atomic.Int32

	shutdownOnce sync.Once
	shutdown     chan struct{}
	shutdownErr  error
}

// HTTPConfig holds the listener settings of the gateway.
//
// Default values (applied by New if zero):
//   - ReadHeaderTimeout: 10s
//   - IdleTimeout: 2m
//   - ShutdownTimeout: 30s
//
// ReadTimeout and WriteTimeout default to 0 (none): file transfers may take
// arbitrarily long.
type HTTPConfig struct {
	// Enabled controls whether the adapter is started.
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// BindAddress is the interface to listen on. Empty means all.
	BindAddress string `mapstructure:"bind_address" yaml:"bind_address" json:"bind_address"`

	// Port is the TCP port. 0 selects a free port, reported by Port()
	// once listening.
	Port int `mapstructure:"port" validate:"min=0,max=65535" yaml:"port" json:"port"`

	// MaxConnections caps concurrent TCP connections. 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0" yaml:"max_connections" json:"max_connections"`

	// RequestsPerSecond throttles requests across all clients. 0 disables.
	RequestsPerSecond uint `mapstructure:"requests_per_second" yaml:"requests_per_second" json:"requests_per_second"`

	// Burst is the number of requests admitted at once above the sustained
	// rate. Defaults to RequestsPerSecond.
	Burst uint `mapstructure:"burst" yaml:"burst" json:"burst"`

	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout" json:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" json:"idle_timeout"`

	// ShutdownTimeout bounds the drain of in-flight requests.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultPort is the conventional HttpFS port.
const DefaultPort = 14000

func (c *HTTPConfig) applyDefaults() {
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 2 * time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

// New creates an adapter serving handler.
func New(config HTTPConfig, handler http.Handler) *HTTPAdapter {
	config.applyDefaults()

	a := &HTTPAdapter{
		config:   config,
		handler:  handler,
		limiter:  ratelimiter.New(config.RequestsPerSecond, config.Burst),
		shutdown: make(chan struct{}),
	}
	a.port.Store(int32(config.Port))
	return a
}

// Serve listens and serves until ctx is cancelled or Stop is called.
func (a *HTTPAdapter) Serve(ctx context.Context) error {
	select {
	case <-a.shutdown:
		return nil
	default:
	}

	addr := net.JoinHostPort(a.config.BindAddress, fmt.Sprintf("%d", a.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create HTTP listener on %s: %w", addr, err)
	}
	if tcp, ok := listener.Addr().(*net.TCPAddr); ok {
		a.port.Store(int32(tcp.Port))
	}
	if a.config.MaxConnections > 0 {
		listener = netutil.LimitListener(listener, a.config.MaxConnections)
	}

	server := &http.Server{
		Handler:           a.wrap(a.handler),
		ReadHeaderTimeout: a.config.ReadHeaderTimeout,
		ReadTimeout:       a.config.ReadTimeout,
		WriteTimeout:      a.config.WriteTimeout,
		IdleTimeout:       a.config.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		_ = listener.Close()
		return nil
	}
	a.server = server
	a.mu.Unlock()

	logger.Info("HTTP gateway listening on %s", listener.Addr())
	logger.Debug("HTTP config: max_connections=%d requests_per_second=%d read_header_timeout=%v idle_timeout=%v",
		a.config.MaxConnections, a.config.RequestsPerSecond, a.config.ReadHeaderTimeout, a.config.IdleTimeout)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("HTTP shutdown signal received: %v", ctx.Err())
			stopCtx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
			defer cancel()
			_ = a.Stop(stopCtx)
		case <-a.shutdown:
		}
	}()

	err = server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		<-a.shutdown
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return nil
	}
	return fmt.Errorf("HTTP server error: %w", err)
}

// wrap applies the request rate limit.
func (a *HTTPAdapter) wrap(next http.Handler) http.Handler {
	if a.limiter.Unlimited() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Stop drains in-flight requests until ctx expires, then closes the
// remaining connections.
func (a *HTTPAdapter) Stop(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		defer close(a.shutdown)

		a.mu.Lock()
		a.stopped = true
		server := a.server
		a.mu.Unlock()
		if server == nil {
			return
		}

		logger.Info("HTTP graceful shutdown: draining in-flight requests")
		if err := server.Shutdown(ctx); err != nil {
			logger.Warn("HTTP shutdown did not complete: %v", err)
			a.shutdownErr = errors.Join(err, server.Close())
			return
		}
		logger.Info("HTTP graceful shutdown complete")
	})
	return a.shutdownErr
}

// Protocol implements adapter.Adapter.
func (a *HTTPAdapter) Protocol() string {
	return "HTTP"
}

// Port implements adapter.Adapter.
func (a *HTTPAdapter) Port() int {
	return int(a.port.Load())
}
