package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/marmos91/fsgate/pkg/store/content"
	contenttesting "github.com/marmos91/fsgate/pkg/store/content/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSContentStore(t *testing.T) {
	suite := &contenttesting.StoreTestSuite{
		NewStore: func(t *testing.T) content.ContentStore {
			store, err := NewFSContentStore(context.Background(), t.TempDir())
			require.NoError(t, err)
			return store
		},
	}
	suite.Run(t)
}

func TestFSContentStore_RejectsInvalidID(t *testing.T) {
	store, err := NewFSContentStore(context.Background(), t.TempDir())
	require.NoError(t, err)

	_, err = store.OpenReader(context.Background(), content.ContentID("../../etc/passwd"))
	assert.ErrorIs(t, err, content.ErrInvalidContentID)
}

func TestFSContentStore_FailedWriteLeavesTargetUntouched(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFSContentStore(ctx, dir)
	require.NoError(t, err)

	id := content.NewContentID()
	w, err := store.OpenWriter(ctx, id, false)
	require.NoError(t, err)
	_, err = w.Write([]byte("original"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	w, err = store.OpenWriter(ctx, id, false)
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)

	// Simulate a crash before Close: the temp file exists but the target is intact
	entries, err := os.ReadDir(filepath.Join(dir, string(id)[:2]))
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	data, err := os.ReadFile(filepath.Join(dir, string(id)[:2], string(id)))
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}
