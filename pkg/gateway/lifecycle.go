package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/marmos91/fsgate/pkg/backend"
	"github.com/marmos91/fsgate/pkg/metrics"
)

// ErrScopeReleased is returned when a released scope is asked for a session.
var ErrScopeReleased = errors.New("request scope already released")

// Lifecycle hands out per-request scopes over a backend connector.
//
// It holds no per-request state; every Scope owns its own session.
type Lifecycle struct {
	connector backend.Connector
	metrics   metrics.GatewayMetrics
}

// NewLifecycle creates a lifecycle manager.
func NewLifecycle(connector backend.Connector, m metrics.GatewayMetrics) *Lifecycle {
	if m == nil {
		m = metrics.NewNoopGatewayMetrics()
	}
	return &Lifecycle{connector: connector, metrics: m}
}

// Begin opens a scope for id. No backend session exists until the first
// call to FileSystem.
func (l *Lifecycle) Begin(id Identity) *Scope {
	return &Scope{lifecycle: l, user: id.Effective}
}

// Scope owns the backend session of one request.
//
// The session is acquired on first use and released exactly once by
// Release, together with any stream registered through Track. Release is
// deferred by the handler until the response, including any streamed body,
// has been written.
type Scope struct {
	lifecycle *Lifecycle
	user      string

	mu       sync.Mutex
	session  backend.Session
	tracked  []io.Closer
	released bool

	releaseOnce sync.Once
	releaseErr  error
}

// FileSystem returns the session, connecting on first call.
func (s *Scope) FileSystem(ctx context.Context) (backend.FileSystem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return nil, ErrScopeReleased
	}
	if s.session != nil {
		return s.session, nil
	}

	session, err := s.lifecycle.connector.Connect(ctx, s.user)
	if err != nil {
		return nil, fmt.Errorf("connect as %s: %w", s.user, err)
	}
	s.session = session
	s.lifecycle.metrics.RecordHandleAcquired()
	return session, nil
}

// Track registers c to be closed on Release, before the session.
func (s *Scope) Track(c io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracked = append(s.tracked, c)
}

// Acquired reports whether a session was opened.
func (s *Scope) Acquired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session != nil
}

// Release closes tracked streams in reverse order, then the session.
// Subsequent calls return the first result.
func (s *Scope) Release() error {
	s.releaseOnce.Do(func() {
		s.mu.Lock()
		s.released = true
		tracked := s.tracked
		session := s.session
		s.tracked = nil
		s.mu.Unlock()

		var errs []error
		for i := len(tracked) - 1; i >= 0; i-- {
			if err := tracked[i].Close(); err != nil {
				errs = append(errs, err)
			}
		}

		if session != nil {
			if err := session.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close session of %s: %w", s.user, err))
			}
			s.lifecycle.metrics.RecordHandleReleased()
		}

		s.releaseErr = errors.Join(errs...)
	})
	return s.releaseErr
}

// onceCloser makes Close idempotent for streams closed both by a copy and
// by the scope.
type onceCloser struct {
	io.ReadCloser
	once sync.Once
	err  error
}

func (c *onceCloser) Close() error {
	c.once.Do(func() { c.err = c.ReadCloser.Close() })
	return c.err
}

type seekableOnceCloser struct {
	*onceCloser
	seeker io.Seeker
}

func (c seekableOnceCloser) Seek(offset int64, whence int) (int64, error) {
	return c.seeker.Seek(offset, whence)
}

// closeOnce wraps rc, keeping io.Seeker when rc has it.
func closeOnce(rc io.ReadCloser) io.ReadCloser {
	oc := &onceCloser{ReadCloser: rc}
	if s, ok := rc.(io.Seeker); ok {
		return seekableOnceCloser{onceCloser: oc, seeker: s}
	}
	return oc
}
