package badger

import (
	"context"
	"testing"

	"github.com/marmos91/fsgate/pkg/store/metadata"
	metadatatesting "github.com/marmos91/fsgate/pkg/store/metadata/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgerMetadataStore(t *testing.T) {
	suite := &metadatatesting.StoreTestSuite{
		NewStore: func(t *testing.T) metadata.MetadataStore {
			store, err := NewBadgerMetadataStore(context.Background(), BadgerMetadataStoreConfig{
				DBPath: t.TempDir(),
			})
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close() })
			return store
		},
	}
	suite.Run(t)
}

func TestBadgerMetadataStore_Persistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewBadgerMetadataStore(ctx, BadgerMetadataStoreConfig{DBPath: dir})
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, &metadata.Inode{Path: "/", Type: metadata.FileTypeDirectory, Mode: 0o755}))
	require.NoError(t, store.Create(ctx, &metadata.Inode{Path: "/kept", Type: metadata.FileTypeRegular, Size: 7}))
	require.NoError(t, store.Close())

	reopened, err := NewBadgerMetadataStore(ctx, BadgerMetadataStoreConfig{DBPath: dir})
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	got, err := reopened.Get(ctx, "/kept")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got.Size)
}

func TestNewBadgerMetadataStore_RequiresPath(t *testing.T) {
	_, err := NewBadgerMetadataStore(context.Background(), BadgerMetadataStoreConfig{})
	assert.ErrorContains(t, err, "db_path is required")
}
