// Package audit writes one structured record per completed gateway request,
// plus a distinct record whenever impersonation is granted.
//
// Records are JSON lines:
//
//	{"time":"...","level":"INFO","msg":"operation","request_id":"...","caller":"alice","effective":"bob","op":"RENAME","path":"/a/b","status":200,"duration_ms":3,"destination":"/a/c"}
//	{"time":"...","level":"INFO","msg":"impersonation","request_id":"...","caller":"alice","effective":"bob","host":"10.0.0.7"}
package audit

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/marmos91/fsgate/internal/logger"
)

// Record describes one completed operation.
type Record struct {
	RequestID string
	Caller    string
	Effective string
	Op        string
	Path      string
	Status    int
	Duration  time.Duration

	// Extra carries operation-specific parameters (offset, destination, ...).
	Extra map[string]string
}

// Sink accepts audit records.
type Sink interface {
	Operation(ctx context.Context, rec Record)
	Impersonation(ctx context.Context, requestID, caller, host, target string)
}

// Logger is a Sink backed by a JSON slog handler.
type Logger struct {
	log    *slog.Logger
	closer io.Closer
}

// New writes records to w.
func New(w io.Writer) *Logger {
	return &Logger{
		log:    slog.New(slog.NewJSONHandler(w, nil)),
		closer: io.NopCloser(nil),
	}
}

// Open writes records to dest ("stdout", "stderr" or a file path).
func Open(dest string) (*Logger, error) {
	w, closer, err := logger.OpenOutput(dest)
	if err != nil {
		return nil, err
	}
	l := New(w)
	l.closer = closer
	return l, nil
}

func (l *Logger) Operation(ctx context.Context, rec Record) {
	attrs := []slog.Attr{
		slog.String("request_id", rec.RequestID),
		slog.String("caller", rec.Caller),
		slog.String("effective", rec.Effective),
		slog.String("op", rec.Op),
		slog.String("path", rec.Path),
		slog.Int("status", rec.Status),
		slog.Int64("duration_ms", rec.Duration.Milliseconds()),
	}

	keys := make([]string, 0, len(rec.Extra))
	for k := range rec.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.String(k, rec.Extra[k]))
	}

	l.log.LogAttrs(ctx, slog.LevelInfo, "operation", attrs...)
}

func (l *Logger) Impersonation(ctx context.Context, requestID, caller, host, target string) {
	l.log.LogAttrs(ctx, slog.LevelInfo, "impersonation",
		slog.String("request_id", requestID),
		slog.String("caller", caller),
		slog.String("effective", target),
		slog.String("host", host),
	)
}

// Close releases the output file, if any.
func (l *Logger) Close() error {
	return l.closer.Close()
}

// Discard drops every record.
type Discard struct{}

func (Discard) Operation(context.Context, Record)                             {}
func (Discard) Impersonation(context.Context, string, string, string, string) {}
