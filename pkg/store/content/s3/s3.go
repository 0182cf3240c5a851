// Package s3 implements S3-based content storage.
//
// Each ContentID maps to one object under an optional key prefix. Writes are
// streamed through multipart uploads once they exceed the part size; smaller
// writes are sent with a single PutObject on Close.
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

const (
	defaultPartSize = 10 * 1024 * 1024
	minPartSize     = 5 * 1024 * 1024
	maxPartSize     = 5 * 1024 * 1024 * 1024
)

// S3Metrics records S3 store operations. A nil value disables collection.
type S3Metrics interface {
	// ObserveOperation records one S3 API round trip.
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes records payload bytes moved by operation ("read" or "write").
	RecordBytes(operation string, bytes int64)

	// RecordMultipart records a multipart upload state transition
	// ("initiated", "completed", "aborted").
	RecordMultipart(status string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, time.Duration, error) {}
func (noopMetrics) RecordBytes(string, int64)                     {}
func (noopMetrics) RecordMultipart(string)                        {}

// S3ContentStore implements ContentStore on an S3-compatible bucket.
type S3ContentStore struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	partSize  int64
	metrics   S3Metrics
}

var _ content.ContentStore = (*S3ContentStore)(nil)

// S3ContentStoreConfig contains configuration for the S3 content store.
type S3ContentStoreConfig struct {
	// Client is a configured S3 client.
	Client *s3.Client

	// Bucket is the bucket holding content objects. It must exist.
	Bucket string

	// KeyPrefix is prepended to every object key (e.g. "fsgate/").
	KeyPrefix string

	// PartSize is the multipart part size in bytes.
	// Default: 10MB. Valid range: 5MB to 5GB.
	PartSize int64

	// Metrics is optional.
	Metrics S3Metrics
}

// NewS3ContentStore validates the configuration and checks bucket access.
//
// Parameters:
//   - ctx: Context for the HeadBucket probe
//   - cfg: Store configuration
//
// Returns:
//   - *S3ContentStore: Initialized store
//   - error: If configuration is invalid or the bucket is not accessible
func NewS3ContentStore(ctx context.Context, cfg S3ContentStoreConfig) (*S3ContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	partSize := cfg.PartSize
	if partSize == 0 {
		partSize = defaultPartSize
	}
	if partSize < minPartSize {
		return nil, fmt.Errorf("part size must be at least 5MB, got %d bytes", partSize)
	}
	if partSize > maxPartSize {
		return nil, fmt.Errorf("part size must be at most 5GB, got %d bytes", partSize)
	}

	if _, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	}); err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	var m S3Metrics = noopMetrics{}
	if cfg.Metrics != nil {
		m = cfg.Metrics
	}

	return &S3ContentStore{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		partSize:  partSize,
		metrics:   m,
	}, nil
}

func (s *S3ContentStore) objectKey(id content.ContentID) (string, error) {
	if err := id.Validate(); err != nil {
		return "", err
	}
	return s.keyPrefix + string(id), nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

// OpenReader streams the object body.
func (s *S3ContentStore) OpenReader(ctx context.Context, id content.ContentID) (rc io.ReadCloser, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation("GetObject", time.Since(start), err)
	}()

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	key, err := s.objectKey(id)
	if err != nil {
		return nil, err
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
		}
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}

	return &metricsReadCloser{ReadCloser: result.Body, metrics: s.metrics}, nil
}

// metricsReadCloser counts bytes read from an object body.
type metricsReadCloser struct {
	io.ReadCloser
	metrics S3Metrics
	n       int64
}

func (m *metricsReadCloser) Read(p []byte) (int, error) {
	n, err := m.ReadCloser.Read(p)
	m.n += int64(n)
	return n, err
}

func (m *metricsReadCloser) Close() error {
	m.metrics.RecordBytes("read", m.n)
	return m.ReadCloser.Close()
}

// GetContentSize issues a HeadObject.
func (s *S3ContentStore) GetContentSize(ctx context.Context, id content.ContentID) (size uint64, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation("HeadObject", time.Since(start), err)
	}()

	if err = ctx.Err(); err != nil {
		return 0, err
	}

	key, err := s.objectKey(id)
	if err != nil {
		return 0, err
	}

	result, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
		}
		return 0, fmt.Errorf("failed to head object: %w", err)
	}

	return uint64(aws.ToInt64(result.ContentLength)), nil
}

func (s *S3ContentStore) ContentExists(ctx context.Context, id content.ContentID) (bool, error) {
	if _, err := s.GetContentSize(ctx, id); err != nil {
		if errors.Is(err, content.ErrContentNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes the object. S3 treats deleting a missing key as success.
func (s *S3ContentStore) Delete(ctx context.Context, id content.ContentID) (err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation("DeleteObject", time.Since(start), err)
	}()

	if err = ctx.Err(); err != nil {
		return err
	}

	key, err := s.objectKey(id)
	if err != nil {
		return err
	}

	if _, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// putObject uploads data in a single request.
func (s *S3ContentStore) putObject(ctx context.Context, key string, data []byte) (err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation("PutObject", time.Since(start), err)
	}()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	s.metrics.RecordBytes("write", int64(len(data)))
	return nil
}

// Close is a no-op; the client is owned by the caller.
func (s *S3ContentStore) Close() error {
	return nil
}
