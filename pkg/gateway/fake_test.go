package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/marmos91/fsgate/pkg/audit"
	"github.com/marmos91/fsgate/pkg/auth"
	"github.com/marmos91/fsgate/pkg/backend"
)

// call is one recorded backend invocation.
type call struct {
	User string
	Op   string
	Args []any
}

// fakeConnector is a recording backend with an in-memory file table.
type fakeConnector struct {
	mu       sync.Mutex
	files    map[string][]byte
	dirs     map[string]bool
	calls    []call
	acquired int
	released int
	failWith error
	uri      string
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{
		files: map[string][]byte{},
		dirs:  map[string]bool{"/": true},
		uri:   "fake://namenode:8020",
	}
}

func (f *fakeConnector) Connect(_ context.Context, user string) (backend.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquired++
	return &fakeSession{conn: f, user: user}, nil
}

func (f *fakeConnector) record(user, op string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{User: user, Op: op, Args: args})
	return f.failWith
}

func (f *fakeConnector) callsOf(op string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeConnector) counts() (acquired, released, calls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquired, f.released, len(f.calls)
}

func (f *fakeConnector) status(p string) backend.FileStatus {
	perm := backend.Permission(0o644)
	st := backend.FileStatus{
		Path:             f.uri + (&url.URL{Path: p}).EscapedPath(),
		Type:             backend.TypeFile,
		Length:           int64(len(f.files[p])),
		Owner:            "alice",
		Group:            "staff",
		Permission:       &perm,
		AccessTime:       1000,
		ModificationTime: 2000,
		BlockSize:        128,
		Replication:      3,
	}
	if f.dirs[p] {
		dirPerm := backend.Permission(0o755)
		st.Type = backend.TypeDirectory
		st.Permission = &dirPerm
		st.Length, st.BlockSize, st.Replication = 0, 0, 0
	}
	return st
}

type fakeSession struct {
	conn   *fakeConnector
	user   string
	closed bool
}

func (s *fakeSession) User() string { return s.user }

func (s *fakeSession) Close() error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	if s.closed {
		return backend.ErrClosed
	}
	s.closed = true
	s.conn.released++
	return nil
}

func (s *fakeSession) Open(_ context.Context, p string) (io.ReadCloser, error) {
	if err := s.conn.record(s.user, "open", p); err != nil {
		return nil, err
	}
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	data, ok := s.conn.files[p]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", p, backend.ErrNotFound)
	}
	return &trackedReader{Reader: bytes.NewReader(data)}, nil
}

func (s *fakeSession) Create(_ context.Context, p string, opts backend.CreateOptions) (io.WriteCloser, error) {
	if err := s.conn.record(s.user, "create", p, opts); err != nil {
		return nil, err
	}
	return &fakeWriter{commit: func(b []byte) {
		s.conn.mu.Lock()
		defer s.conn.mu.Unlock()
		s.conn.files[p] = b
	}}, nil
}

func (s *fakeSession) Append(_ context.Context, p string) (io.WriteCloser, error) {
	if err := s.conn.record(s.user, "append", p); err != nil {
		return nil, err
	}
	return &fakeWriter{commit: func(b []byte) {
		s.conn.mu.Lock()
		defer s.conn.mu.Unlock()
		s.conn.files[p] = append(s.conn.files[p], b...)
	}}, nil
}

func (s *fakeSession) Delete(_ context.Context, p string, recursive bool) (bool, error) {
	return true, s.conn.record(s.user, "delete", p, recursive)
}

func (s *fakeSession) Rename(_ context.Context, src, dst string) (bool, error) {
	return true, s.conn.record(s.user, "rename", src, dst)
}

func (s *fakeSession) Mkdirs(_ context.Context, p string, perm *backend.Permission) (bool, error) {
	return true, s.conn.record(s.user, "mkdirs", p, perm)
}

func (s *fakeSession) SetOwner(_ context.Context, p, owner, group string) error {
	return s.conn.record(s.user, "setowner", p, owner, group)
}

func (s *fakeSession) SetPermission(_ context.Context, p string, perm *backend.Permission) error {
	return s.conn.record(s.user, "setpermission", p, perm)
}

func (s *fakeSession) SetReplication(_ context.Context, p string, r int16) (bool, error) {
	return true, s.conn.record(s.user, "setreplication", p, r)
}

func (s *fakeSession) SetTimes(_ context.Context, p string, mtime, atime int64) error {
	return s.conn.record(s.user, "settimes", p, mtime, atime)
}

func (s *fakeSession) GetFileStatus(_ context.Context, p string) (*backend.FileStatus, error) {
	if err := s.conn.record(s.user, "getfilestatus", p); err != nil {
		return nil, err
	}
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	if _, ok := s.conn.files[p]; !ok && !s.conn.dirs[p] {
		return nil, fmt.Errorf("stat %s: %w", p, backend.ErrNotFound)
	}
	st := s.conn.status(p)
	return &st, nil
}

func (s *fakeSession) ListStatus(_ context.Context, p string) ([]backend.FileStatus, error) {
	if err := s.conn.record(s.user, "liststatus", p); err != nil {
		return nil, err
	}
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	if !s.conn.dirs[p] {
		return nil, fmt.Errorf("list %s: %w", p, backend.ErrNotFound)
	}

	var names []string
	for name := range s.conn.files {
		if path.Dir(name) == p {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	out := make([]backend.FileStatus, 0, len(names))
	for _, name := range names {
		out = append(out, s.conn.status(name))
	}
	return out, nil
}

func (s *fakeSession) HomeDirectory(context.Context) (string, error) {
	return "/user/" + s.user, s.conn.record(s.user, "homedir")
}

func (s *fakeSession) Defaults() backend.Defaults {
	return backend.Defaults{Replication: 3, BlockSize: 128, Permission: 0o644}
}

type trackedReader struct {
	*bytes.Reader
	closed bool
}

func (r *trackedReader) Close() error {
	r.closed = true
	return nil
}

type fakeWriter struct {
	buf    bytes.Buffer
	commit func([]byte)
}

func (w *fakeWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *fakeWriter) Close() error {
	w.commit(w.buf.Bytes())
	return nil
}

// fakePolicy records authorization checks.
type fakePolicy struct {
	mu      sync.Mutex
	allowed map[string][]string // caller -> targets
	checks  int
}

func (p *fakePolicy) IsAllowed(_ context.Context, caller, _, target string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checks++
	return slices.Contains(p.allowed[caller], target)
}

// fakeMembership reports membership from a static table.
type fakeMembership map[string][]string // group -> users

func (m fakeMembership) IsMember(_ context.Context, name, group string) bool {
	return slices.Contains(m[group], name)
}

// fakeSnapshots counts snapshot calls.
type fakeSnapshots struct {
	calls int
}

func (s *fakeSnapshots) Snapshot() (map[string]any, error) {
	s.calls++
	return map[string]any{"counters": map[string]any{"requests": 7}}, nil
}

// recordingAudit captures audit records.
type recordingAudit struct {
	mu             sync.Mutex
	operations     []audit.Record
	impersonations []string
}

func (a *recordingAudit) Operation(_ context.Context, rec audit.Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.operations = append(a.operations, rec)
}

func (a *recordingAudit) Impersonation(_ context.Context, _, caller, _, target string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.impersonations = append(a.impersonations, caller+"->"+target)
}

// headerAuth authenticates from the X-User header.
type headerAuth struct{}

func (headerAuth) Authenticate(r *http.Request) (string, error) {
	u := strings.TrimSpace(r.Header.Get("X-User"))
	if u == "" {
		return "", fmt.Errorf("no user: %w", auth.ErrUnauthenticated)
	}
	return u, nil
}

func (headerAuth) Scheme() string { return "header" }
