// Package gateway implements the HTTP surface of the filesystem gateway.
//
// A request flows through:
//
//	authenticate -> parse -> resolve identity -> open scope -> execute -> render -> release -> audit
//
// Every stage reports failures as errors; they are classified once, by
// Translate, when the response is written. The backend session of a request
// is owned by its Scope, acquired on first use and released after the
// response body, including a streamed file, has been sent.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"
	"github.com/marmos91/fsgate/internal/logger"
	"github.com/marmos91/fsgate/pkg/audit"
	"github.com/marmos91/fsgate/pkg/auth"
	"github.com/marmos91/fsgate/pkg/backend"
	"github.com/marmos91/fsgate/pkg/metrics"
)

// DefaultAdminGroup may read instrumentation when none is configured.
const DefaultAdminGroup = "admin"

// Config holds the gateway settings.
type Config struct {
	// BaseURL prefixes every path returned to clients.
	BaseURL string

	// AdminGroup members may call INSTRUMENTATION.
	AdminGroup string

	// BufferSize is the copy buffer size in bytes.
	BufferSize int

	// Compression gzips JSON responses for clients that accept it.
	Compression bool
}

// Options are the collaborators of a Gateway.
//
// Connector and Authenticator are required. Missing optional collaborators
// get inert defaults: no impersonation, no admins, an empty snapshot, no
// audit output and no metrics.
type Options struct {
	Config        Config
	Authenticator auth.Authenticator
	Connector     backend.Connector
	Policy        Authorizer
	Admins        Membership
	Snapshots     SnapshotProvider
	Audit         audit.Sink
	Metrics       metrics.GatewayMetrics
}

// Gateway is the request handler. It is built once at startup and shared by
// all requests; it holds no per-request state.
type Gateway struct {
	cfg        Config
	authn      auth.Authenticator
	identities *IdentityResolver
	lifecycle  *Lifecycle
	copier     *Copier
	serializer *Serializer
	admins     Membership
	snapshots  SnapshotProvider
	audit      audit.Sink
	metrics    metrics.GatewayMetrics

	handler http.Handler
}

// New builds a gateway.
func New(opts Options) (*Gateway, error) {
	if opts.Connector == nil {
		return nil, errors.New("gateway: backend connector is required")
	}
	if opts.Authenticator == nil {
		return nil, errors.New("gateway: authenticator is required")
	}

	cfg := opts.Config
	if cfg.AdminGroup == "" {
		cfg.AdminGroup = DefaultAdminGroup
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if opts.Audit == nil {
		opts.Audit = audit.Discard{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoopGatewayMetrics()
	}

	g := &Gateway{
		cfg:        cfg,
		authn:      opts.Authenticator,
		identities: NewIdentityResolver(opts.Policy, opts.Audit, opts.Metrics),
		lifecycle:  NewLifecycle(opts.Connector, opts.Metrics),
		copier:     NewCopier(cfg.BufferSize),
		serializer: NewSerializer(cfg.BaseURL),
		admins:     opts.Admins,
		snapshots:  opts.Snapshots,
		audit:      opts.Audit,
		metrics:    opts.Metrics,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /favicon.ico", g.favicon)
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, r *http.Request) {
		g.serve(w, r, "/", true)
	})
	mux.HandleFunc("/{path...}", func(w http.ResponseWriter, r *http.Request) {
		g.serve(w, r, r.PathValue("path"), false)
	})

	g.handler = mux
	if cfg.Compression {
		wrap, err := gzhttp.NewWrapper(gzhttp.ContentTypes([]string{contentTypeJSON}))
		if err != nil {
			return nil, fmt.Errorf("gateway: compression: %w", err)
		}
		g.handler = wrap(mux)
	}

	return g, nil
}

// ServeHTTP implements http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.handler.ServeHTTP(w, r)
}

// favicon answers browsers without touching the backend.
func (g *Gateway) favicon(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", contentTypeText)
	w.WriteHeader(http.StatusOK)
}

// serve runs one request through the pipeline.
func (g *Gateway) serve(w http.ResponseWriter, r *http.Request, target string, root bool) {
	start := time.Now()
	rw := newResponseWriter(w)
	requestID := uuid.NewString()
	ctx := logger.WithFields(r.Context(), "request_id", requestID)

	opName := "-"
	g.metrics.RecordRequestStart(opName)
	defer func() {
		g.metrics.RecordRequestEnd(opName)
		g.metrics.RecordRequest(opName, rw.status, time.Since(start))
	}()

	// Step 1: Authenticate
	caller, err := g.authn.Authenticate(r)
	if err != nil {
		logger.WarnCtx(ctx, "Authentication failed from %s: %v", r.RemoteAddr, err)
		g.fail(ctx, rw, err)
		return
	}

	// Step 2: Parse method, op and parameters
	req, err := parseRequest(r, target, root)
	if err != nil {
		ctx = logger.WithFields(ctx, "user", caller)
		logger.DebugCtx(ctx, "Rejected %s %s: %v", r.Method, r.URL.RequestURI(), err)
		g.fail(ctx, rw, err)
		return
	}
	cmd := req.Command

	// The in-flight gauge was raised under "-"; move it to the real op.
	g.metrics.RecordRequestEnd(opName)
	opName = string(cmd.Op())
	g.metrics.RecordRequestStart(opName)

	doAs := req.DoAs
	if doAs == "" {
		doAs = "-"
	}
	ctx = logger.WithFields(ctx, "op", opName, "doAs", doAs, "user", caller)

	// Step 3: Resolve the effective identity
	id, err := g.identities.Resolve(ctx, requestID, caller, remoteHost(r), req.DoAs)
	if err != nil {
		g.fail(ctx, rw, err)
		g.auditOperation(ctx, requestID, Identity{Caller: caller, Effective: caller}, cmd, rw.status, start)
		return
	}

	// Step 4: Open the scope. Release runs before the audit record is
	// written, on every path out of this function.
	scope := g.lifecycle.Begin(id)
	defer func() {
		g.auditOperation(ctx, requestID, id, cmd, rw.status, start)
	}()
	defer func() {
		if err := scope.Release(); err != nil {
			logger.WarnCtx(ctx, "Failed to release backend session: %v", err)
		}
	}()

	// Step 5: Execute
	env := &Env{
		Scope:      scope,
		Identity:   id,
		Copier:     g.copier,
		Metrics:    g.metrics,
		Admins:     g.admins,
		AdminGroup: g.cfg.AdminGroup,
		Snapshots:  g.snapshots,
	}
	result, err := cmd.Execute(ctx, env)
	if err != nil {
		g.fail(ctx, rw, err)
		return
	}

	// Step 6: Render
	if err := g.render(rw, result); err != nil {
		if rw.wroteHeader {
			logger.WarnCtx(ctx, "Transfer of %s aborted after %d bytes: %v", cmd.Path(), rw.written, err)
			return
		}
		g.fail(ctx, rw, err)
		return
	}

	logger.DebugCtx(ctx, "%s %s completed with %d", opName, cmd.Path(), rw.status)
}

// render writes a successful result.
func (g *Gateway) render(w *responseWriter, result Result) error {
	switch r := result.(type) {
	case ByteStream:
		w.Header().Set("Content-Type", r.ContentType)
		n, err := g.copier.CopyRange(w, r.Reader, r.Offset, r.Length)
		g.metrics.RecordBytesTransferred("read", n)
		return err

	case CreatedResource:
		w.Header().Set("Location", g.serializer.URL(r.Path))
		return writeJSON(w, http.StatusCreated, nil)

	case Empty:
		return writeJSON(w, http.StatusOK, nil)

	default:
		body := g.serializer.Body(result)
		if body == nil {
			return fmt.Errorf("unsupported result type %T", result)
		}
		return writeJSON(w, http.StatusOK, body)
	}
}

// fail translates err and writes the error envelope.
func (g *Gateway) fail(ctx context.Context, w *responseWriter, err error) {
	e := Translate(err)
	if e.Kind == KindBackendFailure {
		logger.ErrorCtx(ctx, "Request failed: %v", err)
	}
	if werr := writeError(w, e); werr != nil {
		logger.DebugCtx(ctx, "Failed to write error response: %v", werr)
	}
}

func (g *Gateway) auditOperation(ctx context.Context, requestID string, id Identity, cmd Command, status int, start time.Time) {
	g.audit.Operation(ctx, audit.Record{
		RequestID: requestID,
		Caller:    id.Caller,
		Effective: id.Effective,
		Op:        string(cmd.Op()),
		Path:      cmd.Path(),
		Status:    status,
		Duration:  time.Since(start),
		Extra:     cmd.AuditFields(),
	})
}

// remoteHost strips the port from the request origin.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.Trim(r.RemoteAddr, "[]")
	}
	return host
}
