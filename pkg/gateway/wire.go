package gateway

import (
	"encoding/json"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/marmos91/fsgate/pkg/backend"
)

const (
	contentTypeJSON   = "application/json"
	contentTypeText   = "text/plain"
	contentTypeBinary = "application/octet-stream"
)

// fileStatusJSON fixes the field order of a status record on the wire.
type fileStatusJSON struct {
	PathSuffix       string `json:"pathSuffix"`
	Path             string `json:"path"`
	Type             string `json:"type"`
	Length           int64  `json:"length"`
	Owner            string `json:"owner"`
	Group            string `json:"group"`
	Permission       string `json:"permission"`
	AccessTime       int64  `json:"accessTime"`
	ModificationTime int64  `json:"modificationTime"`
	BlockSize        int64  `json:"blockSize"`
	Replication      int16  `json:"replication"`
}

type fileStatusEnvelope struct {
	FileStatus fileStatusJSON `json:"FileStatus"`
}

type fileStatusesEnvelope struct {
	FileStatuses struct {
		FileStatus []fileStatusJSON `json:"FileStatus"`
	} `json:"FileStatuses"`
}

type homeDirJSON struct {
	HomeDir string `json:"homeDir"`
}

type remoteExceptionJSON struct {
	RemoteException struct {
		Exception string `json:"exception"`
		Message   string `json:"message"`
	} `json:"RemoteException"`
}

// Serializer renders results with paths rewritten onto the gateway base URL.
type Serializer struct {
	baseURL string
}

// NewSerializer creates a serializer for baseURL, e.g.
// "http://gateway:14000". A trailing slash is ignored.
func NewSerializer(baseURL string) *Serializer {
	return &Serializer{baseURL: strings.TrimSuffix(baseURL, "/")}
}

// URL maps a backend path or URI onto the gateway. Only the raw path of p is
// kept; scheme, host and port are replaced by the base URL.
//
// A URI ("hdfs://nn:8020/a%20b") is taken as already escaped. A bare path
// ("/a b") is unescaped and gets escaped here.
func (s *Serializer) URL(p string) string {
	return s.baseURL + rawPath(p)
}

func rawPath(p string) string {
	if !isURI(p) {
		return (&url.URL{Path: p}).EscapedPath()
	}
	u, err := url.Parse(p)
	if err != nil {
		// Never hand the backend address to the client.
		return "/"
	}
	if raw := u.EscapedPath(); raw != "" {
		return raw
	}
	return "/"
}

// entryName returns the unescaped last element of a backend path or URI.
func entryName(p string) string {
	if isURI(p) {
		u, err := url.Parse(p)
		if err != nil {
			return ""
		}
		p = u.Path
	}
	return path.Base(p)
}

// isURI reports whether p carries a scheme. Backend paths are absolute, so
// anything not starting with "/" is a URI.
func isURI(p string) bool {
	return !strings.HasPrefix(p, "/") && strings.Contains(p, "://")
}

func (s *Serializer) status(st backend.FileStatus, suffix string) fileStatusJSON {
	return fileStatusJSON{
		PathSuffix:       suffix,
		Path:             s.URL(st.Path),
		Type:             string(st.Type),
		Length:           st.Length,
		Owner:            st.Owner,
		Group:            st.Group,
		Permission:       backend.FormatPermission(st.Permission),
		AccessTime:       st.AccessTime,
		ModificationTime: st.ModificationTime,
		BlockSize:        st.BlockSize,
		Replication:      st.Replication,
	}
}

// Body returns the JSON value for a non-streaming result, or nil when the
// result has no body.
func (s *Serializer) Body(res Result) any {
	switch r := res.(type) {
	case Flag:
		return map[string]bool{r.Label: r.Value}

	case Status:
		return fileStatusEnvelope{FileStatus: s.status(r.Status, "")}

	case StatusList:
		var env fileStatusesEnvelope
		env.FileStatuses.FileStatus = make([]fileStatusJSON, 0, len(r.Statuses))
		for _, st := range r.Statuses {
			env.FileStatuses.FileStatus = append(env.FileStatuses.FileStatus,
				s.status(st, entryName(st.Path)))
		}
		return env

	case HomeDir:
		return homeDirJSON{HomeDir: s.URL(r.Path)}

	case Snapshot:
		return r.Data
	}
	return nil
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if v == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(v)
}

// writeError renders e as a RemoteException envelope.
func writeError(w http.ResponseWriter, e *Error) error {
	var body remoteExceptionJSON
	body.RemoteException.Exception = e.Kind.String()
	body.RemoteException.Message = e.Error()
	return writeJSON(w, e.Kind.Status(), body)
}

// responseWriter records the status and body size and whether anything has
// been sent, so a failure before the first byte can still become an error
// response.
type responseWriter struct {
	http.ResponseWriter
	status      int
	written     int64
	wroteHeader bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (w *responseWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.status = status
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *responseWriter) Flush() {
	if !w.wroteHeader {
		return
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
