package s3

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/fsgate/pkg/store/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewS3ContentStore_Validation(t *testing.T) {
	ctx := context.Background()
	client := s3.New(s3.Options{Region: "us-east-1"})

	_, err := NewS3ContentStore(ctx, S3ContentStoreConfig{Bucket: "b"})
	assert.ErrorContains(t, err, "client is required")

	_, err = NewS3ContentStore(ctx, S3ContentStoreConfig{Client: client})
	assert.ErrorContains(t, err, "bucket name is required")

	_, err = NewS3ContentStore(ctx, S3ContentStoreConfig{Client: client, Bucket: "b", PartSize: 1024})
	assert.ErrorContains(t, err, "at least 5MB")
}

func TestObjectKey(t *testing.T) {
	store := &S3ContentStore{keyPrefix: "data/"}

	id := content.NewContentID()
	key, err := store.objectKey(id)
	require.NoError(t, err)
	assert.Equal(t, "data/"+string(id), key)

	_, err = store.objectKey("not-a-uuid")
	assert.ErrorIs(t, err, content.ErrInvalidContentID)
}
