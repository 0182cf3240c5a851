package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	level  = new(slog.LevelVar)
	output atomic.Pointer[slog.Logger]
)

func init() {
	level.Set(slog.LevelInfo)
	output.Store(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel converts a case-insensitive level name. Unknown names map to INFO.
func ParseLevel(name string) Level {
	switch strings.ToUpper(name) {
	case "DEBUG":
		return LevelDebug
	case "WARN":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func SetLevel(name string) {
	level.Set(ParseLevel(name).slogLevel())
}

// Configure replaces the process logger.
//
// format is "text" or "json"; dest is "stdout", "stderr" or a file path which
// is opened in append mode. The returned closer releases the file, if any.
func Configure(levelName, format, dest string) (io.Closer, error) {
	w, closer, err := OpenOutput(dest)
	if err != nil {
		return nil, err
	}

	SetLevel(levelName)
	output.Store(slog.New(NewHandler(w, format, level)))
	return closer, nil
}

// SetOutput is used by tests to capture log lines.
func SetOutput(w io.Writer, format string) {
	output.Store(slog.New(NewHandler(w, format, level)))
}

// NewHandler builds the slog handler for the given format.
func NewHandler(w io.Writer, format string, lvl slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// OpenOutput resolves a logging destination.
func OpenOutput(dest string) (io.Writer, io.Closer, error) {
	switch strings.ToLower(dest) {
	case "", "stdout":
		return os.Stdout, io.NopCloser(nil), nil
	case "stderr":
		return os.Stderr, io.NopCloser(nil), nil
	}

	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log output %q: %w", dest, err)
	}
	return f, f, nil
}

type fieldsKey struct{}

// WithFields returns a context carrying additional key/value pairs that the
// *Ctx functions attach to every record.
func WithFields(ctx context.Context, kv ...any) context.Context {
	existing, _ := ctx.Value(fieldsKey{}).([]any)
	merged := make([]any, 0, len(existing)+len(kv))
	merged = append(merged, existing...)
	merged = append(merged, kv...)
	return context.WithValue(ctx, fieldsKey{}, merged)
}

// Fields returns the key/value pairs attached to ctx.
func Fields(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(fieldsKey{}).([]any)
	return fields
}

func log(ctx context.Context, lvl Level, format string, v ...any) {
	l := output.Load()
	sl := lvl.slogLevel()
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.Enabled(ctx, sl) {
		return
	}

	message := format
	if len(v) > 0 {
		message = fmt.Sprintf(format, v...)
	}
	l.Log(ctx, sl, message, Fields(ctx)...)
}

func Debug(format string, v ...any) {
	log(context.Background(), LevelDebug, format, v...)
}

func Info(format string, v ...any) {
	log(context.Background(), LevelInfo, format, v...)
}

func Warn(format string, v ...any) {
	log(context.Background(), LevelWarn, format, v...)
}

func Error(format string, v ...any) {
	log(context.Background(), LevelError, format, v...)
}

func DebugCtx(ctx context.Context, format string, v ...any) {
	log(ctx, LevelDebug, format, v...)
}

func InfoCtx(ctx context.Context, format string, v ...any) {
	log(ctx, LevelInfo, format, v...)
}

func WarnCtx(ctx context.Context, format string, v ...any) {
	log(ctx, LevelWarn, format, v...)
}

func ErrorCtx(ctx context.Context, format string, v ...any) {
	log(ctx, LevelError, format, v...)
}
