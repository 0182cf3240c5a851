package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/marmos91/fsgate/pkg/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBaseURL = "http://gateway:14000"

type harness struct {
	gw        *Gateway
	backend   *fakeConnector
	policy    *fakePolicy
	snapshots *fakeSnapshots
	audit     *recordingAudit
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		backend:   newFakeConnector(),
		policy:    &fakePolicy{allowed: map[string][]string{"hue": {"alice"}}},
		snapshots: &fakeSnapshots{},
		audit:     &recordingAudit{},
	}

	gw, err := New(Options{
		Config:        Config{BaseURL: testBaseURL, AdminGroup: "admin", BufferSize: 16},
		Authenticator: headerAuth{},
		Connector:     h.backend,
		Policy:        h.policy,
		Admins:        fakeMembership{"admin": {"root"}},
		Snapshots:     h.snapshots,
		Audit:         h.audit,
	})
	require.NoError(t, err)
	h.gw = gw
	return h
}

func (h *harness) do(t *testing.T, method, target, user string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, target, body)
	if user != "" {
		r.Header.Set("X-User", user)
	}
	w := httptest.NewRecorder()
	h.gw.ServeHTTP(w, r)
	return w
}

func (h *harness) assertBalanced(t *testing.T) {
	t.Helper()
	acquired, released, _ := h.backend.counts()
	assert.Equal(t, acquired, released, "every acquired session must be released")
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), w.Body.String())
	return m
}

func remoteException(t *testing.T, w *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	m := decodeJSON(t, w)
	re, ok := m["RemoteException"].(map[string]any)
	require.True(t, ok, w.Body.String())
	return re["exception"].(string), re["message"].(string)
}

// ============================================================================
// Scenarios
// ============================================================================

func TestDeleteRecursive(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodDelete, "/foo?recursive=true", "alice", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"boolean": true}`, w.Body.String())

	calls := h.backend.callsOf("delete")
	require.Len(t, calls, 1)
	assert.Equal(t, "alice", calls[0].User)
	assert.Equal(t, []any{"/foo", true}, calls[0].Args)
	h.assertBalanced(t)
}

func TestRenameDeniedImpersonation(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPut, "/a/b?op=RENAME&destination=/a/c&doas=bob", "alice", nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	kind, _ := remoteException(t, w)
	assert.Equal(t, "Forbidden", kind)

	acquired, released, calls := h.backend.counts()
	assert.Zero(t, acquired)
	assert.Zero(t, released)
	assert.Zero(t, calls)
	assert.Equal(t, 1, h.policy.checks)
	assert.Empty(t, h.audit.impersonations)
}

func TestListStatusFilter(t *testing.T) {
	h := newHarness(t)
	h.backend.dirs["/dir"] = true
	for _, name := range []string{"a.txt", "b.txt", "c.txt", "d.csv", "e.log"} {
		h.backend.files["/dir/"+name] = []byte(name)
	}

	w := h.do(t, http.MethodGet, "/dir?op=LISTSTATUS&filter=*.txt", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	m := decodeJSON(t, w)
	statuses := m["FileStatuses"].(map[string]any)["FileStatus"].([]any)
	require.Len(t, statuses, 3)

	for i, name := range []string{"a.txt", "b.txt", "c.txt"} {
		st := statuses[i].(map[string]any)
		assert.Equal(t, name, st["pathSuffix"])
		assert.Equal(t, testBaseURL+"/dir/"+name, st["path"])
		assert.Equal(t, "FILE", st["type"])
	}
	h.assertBalanced(t)
}

func TestOpenRange(t *testing.T) {
	h := newHarness(t)
	data := make([]byte, 1000)
	for i := range data {
		data[i] = byte(i % 251)
	}
	h.backend.files["/big.bin"] = data

	w := h.do(t, http.MethodGet, "/big.bin?op=OPEN&offset=100&len=50", "alice", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, data[100:150], w.Body.Bytes())
	h.assertBalanced(t)
}

func TestInstrumentationRequiresAdmin(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/?op=INSTRUMENTATION", "alice", nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Zero(t, h.snapshots.calls)
	acquired, _, _ := h.backend.counts()
	assert.Zero(t, acquired)
}

// ============================================================================
// Identity
// ============================================================================

func TestDoAsSelfSkipsAuthorization(t *testing.T) {
	h := newHarness(t)
	h.backend.files["/f"] = []byte("x")

	w := h.do(t, http.MethodGet, "/f?op=GETFILESTATUS&doas=alice", "alice", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, h.policy.checks)
	assert.Empty(t, h.audit.impersonations)
	require.Len(t, h.audit.operations, 1)
	assert.Equal(t, "alice", h.audit.operations[0].Effective)
}

func TestDoAsAllowed(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/data?op=MKDIRS&doas=alice", "hue", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"mkdirs": true}`, w.Body.String())
	assert.Equal(t, 1, h.policy.checks)
	assert.Equal(t, []string{"hue->alice"}, h.audit.impersonations)

	calls := h.backend.callsOf("mkdirs")
	require.Len(t, calls, 1)
	assert.Equal(t, "alice", calls[0].User)

	require.Len(t, h.audit.operations, 1)
	assert.Equal(t, "hue", h.audit.operations[0].Caller)
	assert.Equal(t, "alice", h.audit.operations[0].Effective)
	h.assertBalanced(t)
}

func TestUnauthenticated(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/f", "", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	kind, _ := remoteException(t, w)
	assert.Equal(t, "Unauthorized", kind)
	_, _, calls := h.backend.counts()
	assert.Zero(t, calls)
}

// ============================================================================
// Routing and parameters
// ============================================================================

func TestRootDefaultsToOpen(t *testing.T) {
	h := newHarness(t)
	h.backend.files["/"] = []byte("root content")

	w := h.do(t, http.MethodGet, "/?offset=5&len=2", "alice", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "root content", w.Body.String(), "root ignores offset and len")
	require.Len(t, h.backend.callsOf("open"), 1)
	h.assertBalanced(t)
}

func TestMutatingCallWithoutOp(t *testing.T) {
	h := newHarness(t)

	for _, method := range []string{http.MethodPut, http.MethodPost} {
		w := h.do(t, method, "/f", "alice", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		_, msg := remoteException(t, w)
		assert.Equal(t, "missing operation parameter", msg)
	}
	_, _, calls := h.backend.counts()
	assert.Zero(t, calls)
}

func TestOpFamilyMismatch(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/f?op=RENAME&destination=/g", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodPut, "/f?op=CREATE", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPatch, "/f", "alice", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestFavicon(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/favicon.ico", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Empty(t, w.Body.Bytes())
	acquired, _, _ := h.backend.counts()
	assert.Zero(t, acquired)
}

func TestInstrumentation(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/dir?op=INSTRUMENTATION", "root", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, h.snapshots.calls)

	w = h.do(t, http.MethodGet, "/?op=instrumentation", "root", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"counters": {"requests": 7}}`, w.Body.String())
	assert.Equal(t, 1, h.snapshots.calls)
}

func TestLegacyAliases(t *testing.T) {
	h := newHarness(t)
	h.backend.files["/f"] = []byte("abc")

	w := h.do(t, http.MethodGet, "/f?op=STATUS", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decodeJSON(t, w), "FileStatus")

	w = h.do(t, http.MethodGet, "/?op=list", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decodeJSON(t, w), "FileStatuses")
}

// ============================================================================
// Operations
// ============================================================================

func TestGetFileStatus(t *testing.T) {
	h := newHarness(t)
	h.backend.files["/dir/file.txt"] = []byte("hello")

	w := h.do(t, http.MethodGet, "/dir/file.txt?op=GETFILESTATUS", "alice", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t,
		`{"FileStatus":{"pathSuffix":"","path":"http://gateway:14000/dir/file.txt","type":"FILE","length":5,`+
			`"owner":"alice","group":"staff","permission":"-rw-r--r--","accessTime":1000,"modificationTime":2000,`+
			`"blockSize":128,"replication":3}}`+"\n",
		w.Body.String())
}

func TestGetFileStatusNotFound(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/missing?op=GETFILESTATUS", "alice", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	kind, _ := remoteException(t, w)
	assert.Equal(t, "NotFound", kind)
	h.assertBalanced(t)
}

func TestHomeDir(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/?op=HOMEDIR&doas=alice", "hue", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"homeDir": "http://gateway:14000/user/alice"}`, w.Body.String())
}

func TestCreate(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/new.txt?op=CREATE&permission=-rwxr-x---&overwrite=false",
		"alice", strings.NewReader("payload"))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, testBaseURL+"/new.txt", w.Header().Get("Location"))
	assert.Empty(t, w.Body.Bytes())
	assert.Equal(t, []byte("payload"), h.backend.files["/new.txt"])

	calls := h.backend.callsOf("create")
	require.Len(t, calls, 1)
	opts := calls[0].Args[1].(backend.CreateOptions)
	require.NotNil(t, opts.Permission)
	assert.Equal(t, backend.Permission(0o750), *opts.Permission)
	assert.False(t, opts.Overwrite)
	assert.Equal(t, int16(3), opts.Replication, "unspecified replication resolves to backend default")
	assert.Equal(t, int64(128), opts.BlockSize, "unspecified block size resolves to backend default")
	h.assertBalanced(t)
}

func TestCreateDefaultPermission(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/new.txt?op=CREATE&permission=default&replication=2&blockSize=4096",
		"alice", strings.NewReader(""))
	require.Equal(t, http.StatusCreated, w.Code)

	opts := h.backend.callsOf("create")[0].Args[1].(backend.CreateOptions)
	assert.Nil(t, opts.Permission)
	assert.True(t, opts.Overwrite)
	assert.Equal(t, int16(2), opts.Replication)
	assert.Equal(t, int64(4096), opts.BlockSize)
}

func TestAppend(t *testing.T) {
	h := newHarness(t)
	h.backend.files["/log"] = []byte("one,")

	w := h.do(t, http.MethodPut, "/log?op=APPEND", "alice", strings.NewReader("two"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.Bytes())
	assert.Equal(t, "one,two", string(h.backend.files["/log"]))
	h.assertBalanced(t)
}

func TestMutateInPlace(t *testing.T) {
	tests := []struct {
		name   string
		target string
		op     string
		args   []any
		body   string
	}{
		{"Rename", "/a?op=RENAME&destination=b", "rename", []any{"/a", "/b"}, `{"rename":true}`},
		{"SetOwner", "/a?op=SETOWNER&owner=bob&group=staff", "setowner", []any{"/a", "bob", "staff"}, ""},
		{"SetReplication", "/a?op=SETREPLICATION&replication=5", "setreplication", []any{"/a", int16(5)}, `{"setReplication":true}`},
		{"SetReplicationDefault", "/a?op=SETREPLICATION", "setreplication", []any{"/a", int16(3)}, `{"setReplication":true}`},
		{"SetTimes", "/a?op=SETTIMES&modifiedTime=10&accessTime=-1", "settimes", []any{"/a", int64(10), int64(-1)}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			w := h.do(t, http.MethodPut, tt.target, "alice", nil)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			if tt.body == "" {
				assert.Empty(t, w.Body.Bytes())
			} else {
				assert.JSONEq(t, tt.body, w.Body.String())
			}

			calls := h.backend.callsOf(tt.op)
			require.Len(t, calls, 1)
			assert.Equal(t, tt.args, calls[0].Args)
			h.assertBalanced(t)
		})
	}
}

func TestSetPermission(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPut, "/a?op=SETPERMISSION&permission=-RWX------", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)

	perm := h.backend.callsOf("setpermission")[0].Args[1].(*backend.Permission)
	require.NotNil(t, perm)
	assert.Equal(t, backend.Permission(0o700), *perm)

	w = h.do(t, http.MethodPut, "/a?op=SETPERMISSION&permission=rwx", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBadParameters(t *testing.T) {
	h := newHarness(t)

	for _, target := range []string{
		"/a?op=OPEN&offset=-1",
		"/a?op=OPEN&len=-2",
		"/a?op=OPEN&offset=abc",
		"/a?op=GETFILESTATUS&doas=bad%20name",
		"/a?op=BOGUS",
	} {
		w := h.do(t, http.MethodGet, target, "alice", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}

	w := h.do(t, http.MethodPut, "/a?op=RENAME", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodDelete, "/a?recursive=maybe", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	_, _, calls := h.backend.counts()
	assert.Zero(t, calls)
}

func TestInvalidFilter(t *testing.T) {
	h := newHarness(t)
	h.backend.files["/x"] = []byte("1")

	w := h.do(t, http.MethodGet, "/?op=LISTSTATUS&filter=[", "alice", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	h.assertBalanced(t)
}

// ============================================================================
// Resource lifecycle
// ============================================================================

func TestOffsetBeyondEnd(t *testing.T) {
	h := newHarness(t)
	h.backend.files["/small"] = []byte("0123456789")

	w := h.do(t, http.MethodGet, "/small?offset=11&len=5", "alice", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	kind, _ := remoteException(t, w)
	assert.Equal(t, "BadRequest", kind)
	h.assertBalanced(t)
}

func TestBackendFailureReleases(t *testing.T) {
	h := newHarness(t)
	h.backend.failWith = errors.New("disk on fire")

	for _, tt := range []struct{ method, target string }{
		{http.MethodGet, "/f?op=GETFILESTATUS"},
		{http.MethodGet, "/f?op=LISTSTATUS"},
		{http.MethodGet, "/f"},
		{http.MethodDelete, "/f"},
		{http.MethodPut, "/f?op=SETTIMES"},
		{http.MethodPost, "/f?op=MKDIRS"},
		{http.MethodPost, "/f?op=CREATE"},
	} {
		w := h.do(t, tt.method, tt.target, "alice", strings.NewReader("x"))
		assert.Equal(t, http.StatusInternalServerError, w.Code, tt.target)
		kind, msg := remoteException(t, w)
		assert.Equal(t, "BackendFailure", kind)
		assert.Equal(t, backendFailureMessage, msg)
	}

	acquired, released, _ := h.backend.counts()
	assert.Equal(t, 7, acquired)
	assert.Equal(t, 7, released)
}

// failingWriter accepts headers and fails every body write, like a client
// that went away.
type failingWriter struct {
	header http.Header
	status int
	writes int
}

func (w *failingWriter) Header() http.Header {
	if w.header == nil {
		w.header = http.Header{}
	}
	return w.header
}

func (w *failingWriter) WriteHeader(status int) { w.status = status }

func (w *failingWriter) Write([]byte) (int, error) {
	w.writes++
	return 0, errors.New("connection reset by peer")
}

func TestClientDisconnectMidStream(t *testing.T) {
	h := newHarness(t)
	h.backend.files["/big"] = bytes.Repeat([]byte("z"), 4096)

	r := httptest.NewRequest(http.MethodGet, "/big?len=1000", nil)
	r.Header.Set("X-User", "alice")
	w := &failingWriter{}

	h.gw.ServeHTTP(w, r)

	assert.Equal(t, 1, w.writes, "copy stops at the first failed write")
	assert.Equal(t, http.StatusOK, w.status)
	h.assertBalanced(t)
	require.Len(t, h.audit.operations, 1)
}

func TestStreamClosedOnRelease(t *testing.T) {
	env := &Env{}
	conn := newFakeConnector()
	conn.files["/f"] = []byte("abcdef")

	lc := NewLifecycle(conn, nil)
	env.Scope = lc.Begin(Identity{Caller: "alice", Effective: "alice"})

	res, err := (&openCommand{path: "/f", offset: 1, length: 2}).Execute(t.Context(), env)
	require.NoError(t, err)

	stream := res.(ByteStream)
	var buf bytes.Buffer
	_, err = NewCopier(0).CopyRange(&buf, stream.Reader, stream.Offset, stream.Length)
	require.NoError(t, err)
	assert.Equal(t, "bc", buf.String())

	require.NoError(t, env.Scope.Release())
	acquired, released, _ := conn.counts()
	assert.Equal(t, 1, acquired)
	assert.Equal(t, 1, released)
}

func TestCompression(t *testing.T) {
	conn := newFakeConnector()
	conn.dirs["/dir"] = true
	for i := 0; i < 50; i++ {
		conn.files["/dir/file-"+strings.Repeat("x", i)] = []byte("x")
	}
	conn.files["/blob"] = bytes.Repeat([]byte("b"), 4096)

	gw, err := New(Options{
		Config:        Config{BaseURL: testBaseURL, Compression: true},
		Authenticator: headerAuth{},
		Connector:     conn,
	})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/dir?op=LISTSTATUS", nil)
	r.Header.Set("X-User", "alice")
	r.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	gw.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))

	r = httptest.NewRequest(http.MethodGet, "/blob", nil)
	r.Header.Set("X-User", "alice")
	r.Header.Set("Accept-Encoding", "gzip")
	w = httptest.NewRecorder()
	gw.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, 4096, w.Body.Len())
}
