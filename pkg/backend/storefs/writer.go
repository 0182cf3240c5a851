package storefs

import (
	"context"
	"fmt"
	"io"

	"github.com/marmos91/fsgate/pkg/backend"
)

// fileWriter streams into a content writer and commits the inode change once
// the content is durable. Without an abort hook, Abort commits whatever
// reached the content store.
type fileWriter struct {
	ctx    context.Context
	w      io.WriteCloser
	n      int64
	closed bool
	commit func(ctx context.Context, n int64) error
	abort  func(ctx context.Context) error
}

func (f *fileWriter) Write(p []byte) (int, error) {
	if f.closed {
		return 0, fmt.Errorf("write after close: %w", backend.ErrClosed)
	}
	n, err := f.w.Write(p)
	f.n += int64(n)
	return n, err
}

// Close flushes the content and updates size and modification time.
func (f *fileWriter) Close() error {
	if f.closed {
		return fmt.Errorf("double close: %w", backend.ErrClosed)
	}
	f.closed = true

	if err := f.w.Close(); err != nil {
		return fmt.Errorf("failed to store content: %w", err)
	}
	return f.commit(f.ctx, f.n)
}

// Abort discards the write. The inode keeps its previous content.
func (f *fileWriter) Abort() error {
	if f.abort == nil {
		return f.Close()
	}
	if f.closed {
		return fmt.Errorf("abort after close: %w", backend.ErrClosed)
	}
	f.closed = true

	// The request context is usually gone by now.
	ctx := context.WithoutCancel(f.ctx)
	_ = f.w.Close()
	return f.abort(ctx)
}
