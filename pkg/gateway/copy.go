package gateway

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// DefaultBufferSize is the copy buffer size when none is configured.
const DefaultBufferSize = 4096

// ErrTruncated is returned when the source ends before the requested offset.
var ErrTruncated = errors.New("offset beyond end of stream")

// Copier performs byte-range copies with pooled buffers.
//
// A single Copier is shared by all requests.
type Copier struct {
	size int
	pool sync.Pool
}

// NewCopier creates a copier with bufSize-byte buffers.
func NewCopier(bufSize int) *Copier {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	c := &Copier{size: bufSize}
	c.pool.New = func() any {
		buf := make([]byte, c.size)
		return &buf
	}
	return c
}

// CopyRange copies length bytes of src, starting at offset, to dst.
//
// Behavior:
//   - The first offset bytes are skipped. If src holds fewer, ErrTruncated is
//     returned and nothing is written.
//   - length == -1 copies until EOF, then closes src.
//   - Otherwise at most length bytes are read and written; src is left open
//     for its owner to close. A source that ends early yields a short copy,
//     not an error.
//
// dst is flushed after a successful copy when it supports flushing.
//
// Returns the number of bytes written to dst.
func (c *Copier) CopyRange(dst io.Writer, src io.ReadCloser, offset, length int64) (int64, error) {
	if offset < 0 {
		return 0, fmt.Errorf("negative offset %d", offset)
	}
	if length < -1 {
		return 0, fmt.Errorf("invalid length %d", length)
	}

	if err := skip(src, offset); err != nil {
		return 0, err
	}

	bufp := c.pool.Get().(*[]byte)
	defer c.pool.Put(bufp)
	buf := *bufp

	if length == -1 {
		written, err := io.CopyBuffer(dst, onlyReader{src}, buf)
		if err != nil {
			return written, err
		}
		if err := src.Close(); err != nil {
			return written, err
		}
		return written, flush(dst)
	}

	var written int64
	for remaining := length; remaining > 0; {
		chunk := buf
		if int64(len(chunk)) > remaining {
			chunk = chunk[:remaining]
		}

		n, rerr := src.Read(chunk)
		if n > 0 {
			w, werr := dst.Write(chunk[:n])
			written += int64(w)
			remaining -= int64(w)
			if werr != nil {
				return written, werr
			}
			if w != n {
				return written, io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return written, rerr
		}
	}

	return written, flush(dst)
}

// skip advances src by offset bytes, seeking when possible.
func skip(src io.Reader, offset int64) error {
	if offset == 0 {
		return nil
	}

	if s, ok := src.(io.Seeker); ok {
		cur, err := s.Seek(0, io.SeekCurrent)
		if err != nil {
			return err
		}
		end, err := s.Seek(0, io.SeekEnd)
		if err != nil {
			return err
		}
		if end-cur < offset {
			return fmt.Errorf("skip %d bytes of %d: %w", offset, end-cur, ErrTruncated)
		}
		_, err = s.Seek(cur+offset, io.SeekStart)
		return err
	}

	n, err := io.CopyN(io.Discard, src, offset)
	if n < offset {
		if err == nil || err == io.EOF {
			return fmt.Errorf("skip %d bytes of %d: %w", offset, n, ErrTruncated)
		}
		return err
	}
	return nil
}

func flush(w io.Writer) error {
	switch f := w.(type) {
	case http.Flusher:
		f.Flush()
	case interface{ Flush() error }:
		return f.Flush()
	}
	return nil
}

// onlyReader hides WriterTo on the source so io.CopyBuffer uses buf.
type onlyReader struct {
	io.Reader
}
