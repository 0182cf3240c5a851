// Package fs implements filesystem-backed content storage.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/marmos91/fsgate/pkg/store/content"
)

// FSContentStore stores each content blob as a regular file.
//
// Layout:
//
//	<basePath>/<first two chars of id>/<id>
//
// Replacing writes go to a temporary file in the same directory and are
// renamed over the target on Close. Appending writes use O_APPEND directly.
// Readers are *os.File and therefore seekable.
type FSContentStore struct {
	basePath string
}

var _ content.ContentStore = (*FSContentStore)(nil)

// NewFSContentStore creates the base directory if needed.
//
// Parameters:
//   - ctx: Context for cancellation
//   - basePath: Root directory for blobs
//
// Returns:
//   - *FSContentStore: Initialized store
//   - error: If the directory cannot be created
func NewFSContentStore(ctx context.Context, basePath string) (*FSContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if basePath == "" {
		return nil, fmt.Errorf("base path is required")
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FSContentStore{basePath: basePath}, nil
}

func (s *FSContentStore) filePath(id content.ContentID) (string, error) {
	if err := id.Validate(); err != nil {
		return "", err
	}
	name := string(id)
	return filepath.Join(s.basePath, name[:2], name), nil
}

func (s *FSContentStore) OpenReader(ctx context.Context, id content.ContentID) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.filePath(id)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
		}
		return nil, fmt.Errorf("failed to open content: %w", err)
	}

	return file, nil
}

func (s *FSContentStore) OpenWriter(ctx context.Context, id content.ContentID, appendMode bool) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.filePath(id)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create shard directory: %w", err)
	}

	if appendMode {
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open content for append: %w", err)
		}
		return &appendWriter{file: file}, nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+string(id)+".*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary content file: %w", err)
	}

	return &replaceWriter{file: tmp, target: path}, nil
}

// appendWriter rejects writes after Close with ErrWriterClosed.
type appendWriter struct {
	file   *os.File
	closed bool
}

func (w *appendWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, content.ErrWriterClosed
	}
	return w.file.Write(p)
}

func (w *appendWriter) Close() error {
	if w.closed {
		return content.ErrWriterClosed
	}
	w.closed = true

	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("failed to sync content: %w", err)
	}
	return w.file.Close()
}

type replaceWriter struct {
	file   *os.File
	target string
	closed bool
	err    error
}

func (w *replaceWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, content.ErrWriterClosed
	}
	n, err := w.file.Write(p)
	if err != nil {
		w.err = err
	}
	return n, err
}

func (w *replaceWriter) Close() error {
	if w.closed {
		return content.ErrWriterClosed
	}
	w.closed = true

	tmpName := w.file.Name()
	if w.err == nil {
		w.err = w.file.Sync()
	}
	if err := w.file.Close(); err != nil && w.err == nil {
		w.err = err
	}
	if w.err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write content: %w", w.err)
	}

	if err := os.Rename(tmpName, w.target); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to commit content: %w", err)
	}
	return nil
}

func (s *FSContentStore) GetContentSize(ctx context.Context, id content.ContentID) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	path, err := s.filePath(id)
	if err != nil {
		return 0, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
		}
		return 0, fmt.Errorf("failed to stat content: %w", err)
	}

	return uint64(info.Size()), nil
}

func (s *FSContentStore) ContentExists(ctx context.Context, id content.ContentID) (bool, error) {
	if _, err := s.GetContentSize(ctx, id); err != nil {
		if errors.Is(err, content.ErrContentNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *FSContentStore) Delete(ctx context.Context, id content.ContentID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.filePath(id)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete content: %w", err)
	}
	return nil
}

// Close is a no-op; files are opened per operation.
func (s *FSContentStore) Close() error {
	return nil
}
