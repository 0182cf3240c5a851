package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/marmos91/fsgate/pkg/auth"
	"github.com/marmos91/fsgate/pkg/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializerURL(t *testing.T) {
	s := NewSerializer("http://gw:14000/")

	assert.Equal(t, "http://gw:14000/user/alice", s.URL("hdfs://namenode:8020/user/alice"))
	assert.Equal(t, "http://gw:14000/user/alice", s.URL("/user/alice"))
	assert.Equal(t, "http://gw:14000/", s.URL("hdfs://namenode:8020"))
	assert.Equal(t, "http://gw:14000/a%20b", s.URL("file://host/a%20b"))

	// Bare paths are unescaped and get escaped.
	assert.Equal(t, "http://gw:14000/tmp/a%23b.txt", s.URL("/tmp/a#b.txt"))
	assert.Equal(t, "http://gw:14000/tmp/100%25.txt", s.URL("/tmp/100%.txt"))
	assert.Equal(t, "http://gw:14000/tmp/q%3Fx=1", s.URL("/tmp/q?x=1"))

	// A malformed URI never leaks the backend address.
	assert.Equal(t, "http://gw:14000/", s.URL("hdfs://nn:8020/100%.txt"))
}

func TestEntryName(t *testing.T) {
	assert.Equal(t, "a b.txt", entryName("hdfs://nn:8020/dir/a%20b.txt"))
	assert.Equal(t, "c", entryName("/a/b/c"))
	assert.Equal(t, "a#b.txt", entryName("hdfs://nn:8020/tmp/a%23b.txt"))
	assert.Equal(t, "%41.txt", entryName("hdfs://nn:8020/tmp/%2541.txt"))
	assert.Equal(t, "q?x=1", entryName("/tmp/q?x=1"))
}

func TestSerializerBodies(t *testing.T) {
	s := NewSerializer("http://gw:14000")
	perm := backend.Permission(0o750)
	st := backend.FileStatus{
		Path:             "hdfs://nn:8020/data/x.csv",
		Type:             backend.TypeFile,
		Length:           42,
		Owner:            "alice",
		Group:            "eng",
		Permission:       &perm,
		AccessTime:       10,
		ModificationTime: 20,
		BlockSize:        64,
		Replication:      2,
	}

	render := func(res Result) string {
		b, err := json.Marshal(s.Body(res))
		require.NoError(t, err)
		return string(b)
	}

	assert.Equal(t,
		`{"FileStatus":{"pathSuffix":"","path":"http://gw:14000/data/x.csv","type":"FILE","length":42,`+
			`"owner":"alice","group":"eng","permission":"-rwxr-x---","accessTime":10,"modificationTime":20,`+
			`"blockSize":64,"replication":2}}`,
		render(Status{Status: st}))

	assert.JSONEq(t,
		`{"FileStatuses":{"FileStatus":[{"pathSuffix":"x.csv","path":"http://gw:14000/data/x.csv","type":"FILE",`+
			`"length":42,"owner":"alice","group":"eng","permission":"-rwxr-x---","accessTime":10,`+
			`"modificationTime":20,"blockSize":64,"replication":2}]}}`,
		render(StatusList{Statuses: []backend.FileStatus{st}}))

	assert.Equal(t, `{"FileStatuses":{"FileStatus":[]}}`, render(StatusList{}))
	assert.Equal(t, `{"mkdirs":false}`, render(Flag{Label: "mkdirs"}))
	assert.Equal(t, `{"homeDir":"http://gw:14000/user/bob"}`, render(HomeDir{Path: "hdfs://nn:8020/user/bob"}))
	assert.Nil(t, s.Body(Empty{}))
}

func TestWriteError(t *testing.T) {
	s3Err := errors.New("operation error S3: PutObject, https response error StatusCode: 503, RequestID: 4442587FB7D0A2F9")

	for _, tt := range []struct {
		err     error
		status  int
		kind    string
		message string
	}{
		{fmt.Errorf("open /x: %w", backend.ErrNotFound), http.StatusNotFound, "NotFound", ""},
		{fmt.Errorf("open /x: %w", backend.ErrPermissionDenied), http.StatusForbidden, "Forbidden", ""},
		{fmt.Errorf("bad perm: %w", backend.ErrInvalidArgument), http.StatusBadRequest, "BadRequest", ""},
		{fmt.Errorf("skip: %w", ErrTruncated), http.StatusBadRequest, "BadRequest", ""},
		{fmt.Errorf("token: %w", auth.ErrUnauthenticated), http.StatusUnauthorized, "Unauthorized", ""},
		{fmt.Errorf("/x: %w", backend.ErrAlreadyExists), http.StatusInternalServerError, "BackendFailure", ""},
		{fmt.Errorf("/x: %w", backend.ErrNotEmpty), http.StatusInternalServerError, "BackendFailure", ""},
		{errors.New("namenode unreachable"), http.StatusInternalServerError, "BackendFailure", backendFailureMessage},
		{fmt.Errorf("/x: failed to store content: %w", s3Err), http.StatusInternalServerError, "BackendFailure", backendFailureMessage},
		{badRequest("missing %s parameter", "destination"), http.StatusBadRequest, "BadRequest", ""},
	} {
		w := httptest.NewRecorder()
		require.NoError(t, writeError(w, Translate(tt.err)))

		assert.Equal(t, tt.status, w.Code)
		assert.Equal(t, contentTypeJSON, w.Header().Get("Content-Type"))

		var body remoteExceptionJSON
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, tt.kind, body.RemoteException.Exception)
		want := tt.message
		if want == "" {
			want = tt.err.Error()
		}
		assert.Equal(t, want, body.RemoteException.Message)
		assert.NotContains(t, body.RemoteException.Message, "RequestID")
	}

	e := Translate(fmt.Errorf("/x: %w", s3Err))
	assert.ErrorIs(t, e, s3Err, "the cause is kept for logging")
}

func TestResponseWriterTracksHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	w := newResponseWriter(rec)

	w.Flush()
	assert.False(t, rec.Flushed, "flush before the header is a no-op")
	assert.False(t, w.wroteHeader)

	_, err := w.Write([]byte("abc"))
	require.NoError(t, err)
	w.WriteHeader(http.StatusTeapot)

	assert.True(t, w.wroteHeader)
	assert.Equal(t, http.StatusOK, w.status)
	assert.Equal(t, int64(3), w.written)

	w.Flush()
	assert.True(t, rec.Flushed)
}
