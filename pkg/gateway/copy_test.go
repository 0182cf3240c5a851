package gateway

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// streamSource is a non-seekable source that counts bytes handed out.
type streamSource struct {
	r      io.Reader
	read   int64
	closed bool
}

func newStreamSource(data []byte) *streamSource {
	return &streamSource{r: bytes.NewReader(data)}
}

func (s *streamSource) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	s.read += int64(n)
	return n, err
}

func (s *streamSource) Close() error {
	s.closed = true
	return nil
}

// seekSource is a seekable source that counts bytes handed out.
type seekSource struct {
	*bytes.Reader
	read   int64
	closed bool
}

func (s *seekSource) Read(p []byte) (int, error) {
	n, err := s.Reader.Read(p)
	s.read += int64(n)
	return n, err
}

func (s *seekSource) Close() error {
	s.closed = true
	return nil
}

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + i%26)
	}
	return b
}

func TestCopyRangeBounded(t *testing.T) {
	data := payload(100)

	tests := []struct {
		name   string
		offset int64
		length int64
		want   []byte
	}{
		{"FromStart", 0, 10, data[:10]},
		{"Middle", 40, 25, data[40:65]},
		{"PastEnd", 90, 50, data[90:]},
		{"ExactEnd", 100, 10, nil},
		{"Zero", 10, 0, nil},
		{"ManyBuffers", 3, 70, data[3:73]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCopier(8)

			t.Run("Stream", func(t *testing.T) {
				src := newStreamSource(data)
				var dst bytes.Buffer

				n, err := c.CopyRange(&dst, src, tt.offset, tt.length)
				require.NoError(t, err)
				assert.Equal(t, int64(len(tt.want)), n)
				assert.Equal(t, string(tt.want), dst.String())
				assert.False(t, src.closed, "bounded copies leave the source open")
				assert.LessOrEqual(t, src.read, tt.offset+tt.length, "never reads past the range")
			})

			t.Run("Seekable", func(t *testing.T) {
				src := &seekSource{Reader: bytes.NewReader(data)}
				var dst bytes.Buffer

				n, err := c.CopyRange(&dst, src, tt.offset, tt.length)
				require.NoError(t, err)
				assert.Equal(t, int64(len(tt.want)), n)
				assert.Equal(t, string(tt.want), dst.String())
				assert.False(t, src.closed)
				assert.LessOrEqual(t, src.read, tt.length, "skipped bytes are seeked over")
			})
		})
	}
}

func TestCopyRangeToEOF(t *testing.T) {
	data := payload(50)
	c := NewCopier(16)

	src := newStreamSource(data)
	var dst bytes.Buffer
	n, err := c.CopyRange(&dst, src, 20, -1)

	require.NoError(t, err)
	assert.Equal(t, int64(30), n)
	assert.Equal(t, data[20:], dst.Bytes())
	assert.True(t, src.closed, "unbounded copies close the source")
}

func TestCopyRangeTruncated(t *testing.T) {
	data := payload(10)
	c := NewCopier(0)

	for name, src := range map[string]io.ReadCloser{
		"Stream":   newStreamSource(data),
		"Seekable": &seekSource{Reader: bytes.NewReader(data)},
	} {
		t.Run(name, func(t *testing.T) {
			var dst bytes.Buffer
			n, err := c.CopyRange(&dst, src, 11, 5)

			require.ErrorIs(t, err, ErrTruncated)
			assert.Zero(t, n)
			assert.Zero(t, dst.Len(), "nothing is written when the offset is past the end")
		})
	}
}

func TestCopyRangeInvalidArguments(t *testing.T) {
	c := NewCopier(0)

	_, err := c.CopyRange(io.Discard, newStreamSource(nil), -1, 5)
	assert.Error(t, err)

	_, err = c.CopyRange(io.Discard, newStreamSource(nil), 0, -2)
	assert.Error(t, err)
}

type brokenWriter struct {
	accept int
}

func (w *brokenWriter) Write(p []byte) (int, error) {
	if w.accept <= 0 {
		return 0, errors.New("broken pipe")
	}
	n := min(len(p), w.accept)
	w.accept -= n
	return n, nil
}

func TestCopyRangeWriteFailure(t *testing.T) {
	c := NewCopier(4)
	src := newStreamSource(payload(64))

	n, err := c.CopyRange(&brokenWriter{accept: 6}, src, 0, 32)

	require.Error(t, err)
	assert.Equal(t, int64(6), n)
	assert.Less(t, src.read, int64(32), "copy stops at the first failed write")
}

type flushRecorder struct {
	bytes.Buffer
	flushes int
}

func (f *flushRecorder) Flush() { f.flushes++ }

func TestCopyRangeFlushes(t *testing.T) {
	c := NewCopier(0)
	dst := &flushRecorder{}

	_, err := c.CopyRange(dst, io.NopCloser(strings.NewReader("hello")), 0, -1)
	require.NoError(t, err)
	assert.Equal(t, 1, dst.flushes)

	_, err = c.CopyRange(dst, io.NopCloser(strings.NewReader("hello")), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, dst.flushes)
	assert.Equal(t, "helloel", dst.String())
}
