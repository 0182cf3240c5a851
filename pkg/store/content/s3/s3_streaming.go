package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/fsgate/pkg/store/content"
)

const abortTimeout = 30 * time.Second

// OpenWriter returns a writer for streaming content writes.
//
// Write Behavior:
//   - Small writes are buffered until partSize is reached
//   - Once a part is full, it's uploaded as part of a multipart upload
//   - Close() completes the multipart upload, or does a single PutObject
//     for content smaller than one part
//
// S3 objects are immutable, so append mode seeds the buffer with the current
// object body before accepting new data.
func (s *S3ContentStore) OpenWriter(ctx context.Context, id content.ContentID, appendMode bool) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key, err := s.objectKey(id)
	if err != nil {
		return nil, err
	}

	w := &s3Writer{
		store:    s,
		ctx:      ctx,
		key:      key,
		buffer:   &bytes.Buffer{},
		partSize: s.partSize,
	}

	if appendMode {
		if err := w.seed(id); err != nil {
			return nil, err
		}
	}

	return w, nil
}

// s3Writer implements io.WriteCloser for streaming writes to S3.
type s3Writer struct {
	store    *S3ContentStore
	ctx      context.Context
	key      string
	buffer   *bytes.Buffer
	partSize int64
	uploadID string
	parts    []types.CompletedPart
	closed   bool
	err      error
}

func (w *s3Writer) seed(id content.ContentID) error {
	r, err := w.store.OpenReader(w.ctx, id)
	if err != nil {
		if errors.Is(err, content.ErrContentNotFound) {
			return nil
		}
		return err
	}
	defer func() { _ = r.Close() }()

	if _, err := w.buffer.ReadFrom(r); err != nil {
		return fmt.Errorf("failed to read existing object for append: %w", err)
	}
	return w.drain()
}

// drain uploads full parts while the buffer holds at least one.
func (w *s3Writer) drain() error {
	for int64(w.buffer.Len()) >= w.partSize {
		if err := w.uploadPart(w.buffer.Next(int(w.partSize))); err != nil {
			return err
		}
	}
	return nil
}

func (w *s3Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, content.ErrWriterClosed
	}
	if w.err != nil {
		return 0, w.err
	}

	n, _ := w.buffer.Write(p)
	if err := w.drain(); err != nil {
		w.err = err
		return n, err
	}
	return n, nil
}

func (w *s3Writer) uploadPart(chunk []byte) error {
	if w.uploadID == "" {
		uploadID, err := w.store.beginMultipartUpload(w.ctx, w.key)
		if err != nil {
			return fmt.Errorf("failed to begin multipart upload: %w", err)
		}
		w.uploadID = uploadID
	}

	partNumber := int32(len(w.parts) + 1)
	data := append([]byte(nil), chunk...)

	etag, err := w.store.uploadPart(w.ctx, w.key, w.uploadID, partNumber, data)
	if err != nil {
		w.abort()
		return fmt.Errorf("failed to upload part %d: %w", partNumber, err)
	}

	w.parts = append(w.parts, types.CompletedPart{
		ETag:       etag,
		PartNumber: aws.Int32(partNumber),
	})
	return nil
}

func (w *s3Writer) abort() {
	if w.uploadID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), abortTimeout)
	defer cancel()
	_ = w.store.abortMultipartUpload(ctx, w.key, w.uploadID)
	w.uploadID = ""
}

func (w *s3Writer) Close() error {
	if w.closed {
		return content.ErrWriterClosed
	}
	w.closed = true

	if w.err != nil {
		w.abort()
		return w.err
	}

	if w.uploadID == "" {
		return w.store.putObject(w.ctx, w.key, w.buffer.Bytes())
	}

	if w.buffer.Len() > 0 {
		if err := w.uploadPart(w.buffer.Bytes()); err != nil {
			return err
		}
	}

	if err := w.store.completeMultipartUpload(w.ctx, w.key, w.uploadID, w.parts); err != nil {
		w.abort()
		return fmt.Errorf("failed to complete multipart upload: %w", err)
	}
	return nil
}

func (s *S3ContentStore) beginMultipartUpload(ctx context.Context, key string) (id string, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation("CreateMultipartUpload", time.Since(start), err)
	}()

	result, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", err
	}
	s.metrics.RecordMultipart("initiated")
	return aws.ToString(result.UploadId), nil
}

func (s *S3ContentStore) uploadPart(ctx context.Context, key, uploadID string, partNumber int32, data []byte) (etag *string, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation("UploadPart", time.Since(start), err)
	}()

	result, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(key),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(partNumber),
		Body:       bytes.NewReader(data),
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordBytes("write", int64(len(data)))
	return result.ETag, nil
}

func (s *S3ContentStore) completeMultipartUpload(ctx context.Context, key, uploadID string, parts []types.CompletedPart) (err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation("CompleteMultipartUpload", time.Since(start), err)
	}()

	_, err = s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		return err
	}
	s.metrics.RecordMultipart("completed")
	return nil
}

func (s *S3ContentStore) abortMultipartUpload(ctx context.Context, key, uploadID string) error {
	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err == nil {
		s.metrics.RecordMultipart("aborted")
	}
	return err
}
