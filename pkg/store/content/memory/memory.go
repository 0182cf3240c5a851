// Package memory implements in-memory content storage.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/marmos91/fsgate/pkg/store/content"
)

// MemoryContentStore implements ContentStore using in-memory storage.
//
// Characteristics:
//   - Fast: All operations are memory-speed
//   - Volatile: Data lost on restart
//   - Thread-safe: Protected by RWMutex
//
// Readers get a snapshot of the content at open time; writers buffer locally
// and publish on Close, so a reader never observes a half-written blob.
type MemoryContentStore struct {
	// data stores the actual file content keyed by ContentID
	data map[content.ContentID][]byte

	// mu protects concurrent access to data map
	mu sync.RWMutex

	closed bool
}

var _ content.ContentStore = (*MemoryContentStore)(nil)

// NewMemoryContentStore creates a new in-memory content store.
//
// Parameters:
//   - ctx: Context for cancellation (checked before initialization)
//
// Returns:
//   - *MemoryContentStore: Initialized store
//   - error: Only returns error if context is cancelled
func NewMemoryContentStore(ctx context.Context) (*MemoryContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &MemoryContentStore{
		data: make(map[content.ContentID][]byte),
	}, nil
}

// readSeekNopCloser keeps the io.Seeker of bytes.Reader visible to callers.
type readSeekNopCloser struct {
	*bytes.Reader
}

func (readSeekNopCloser) Close() error { return nil }

// OpenReader returns a seekable reader over a copy of the content.
func (s *MemoryContentStore) OpenReader(ctx context.Context, id content.ContentID) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, content.ErrStoreClosed
	}

	data, exists := s.data[id]
	if !exists {
		return nil, fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
	}

	// Copy so later writes to the same id don't race with this reader
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	return readSeekNopCloser{bytes.NewReader(dataCopy)}, nil
}

// OpenWriter returns a writer that publishes its buffer on Close.
func (s *MemoryContentStore) OpenWriter(ctx context.Context, id content.ContentID, appendMode bool) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, content.ErrStoreClosed
	}

	return &memoryWriter{store: s, id: id, appendMode: appendMode}, nil
}

type memoryWriter struct {
	store      *MemoryContentStore
	id         content.ContentID
	appendMode bool
	buf        bytes.Buffer
	closed     bool
}

func (w *memoryWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, content.ErrWriterClosed
	}
	return w.buf.Write(p)
}

func (w *memoryWriter) Close() error {
	if w.closed {
		return content.ErrWriterClosed
	}
	w.closed = true

	w.store.mu.Lock()
	defer w.store.mu.Unlock()

	if w.store.closed {
		return content.ErrStoreClosed
	}

	if w.appendMode {
		existing := w.store.data[w.id]
		merged := make([]byte, 0, len(existing)+w.buf.Len())
		merged = append(merged, existing...)
		merged = append(merged, w.buf.Bytes()...)
		w.store.data[w.id] = merged
		return nil
	}

	w.store.data[w.id] = bytes.Clone(w.buf.Bytes())
	if w.store.data[w.id] == nil {
		w.store.data[w.id] = []byte{}
	}
	return nil
}

// GetContentSize returns the length of the stored byte slice.
func (s *MemoryContentStore) GetContentSize(ctx context.Context, id content.ContentID) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.data[id]
	if !exists {
		return 0, fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
	}
	return uint64(len(data)), nil
}

func (s *MemoryContentStore) ContentExists(ctx context.Context, id content.ContentID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.data[id]
	return exists, nil
}

func (s *MemoryContentStore) Delete(ctx context.Context, id content.ContentID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, id)
	return nil
}

// Close drops all content.
func (s *MemoryContentStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.data = make(map[content.ContentID][]byte)
	return nil
}
