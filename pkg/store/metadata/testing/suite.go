// Package testing provides a conformance suite for metadata store
// implementations.
package testing

import (
	"context"
	"testing"
	"time"

	"github.com/marmos91/fsgate/pkg/store/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite runs the MetadataStore contract against an implementation.
//
// Usage:
//
//	func TestMyStore(t *testing.T) {
//	    suite := &testing.StoreTestSuite{
//	        NewStore: func(t *testing.T) metadata.MetadataStore { return mystore.New() },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	NewStore func(t *testing.T) metadata.MetadataStore
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("Create", suite.testCreate)
	t.Run("Create_MissingParent", suite.testCreateMissingParent)
	t.Run("Create_Duplicate", suite.testCreateDuplicate)
	t.Run("Update", suite.testUpdate)
	t.Run("Delete", suite.testDelete)
	t.Run("Delete_NotEmpty", suite.testDeleteNotEmpty)
	t.Run("List_Ordered", suite.testListOrdered)
	t.Run("List_OnlyDirectChildren", suite.testListDirectChildren)
	t.Run("Move_File", suite.testMoveFile)
	t.Run("Move_Subtree", suite.testMoveSubtree)
	t.Run("Move_IntoSelf", suite.testMoveIntoSelf)
	t.Run("Move_TargetExists", suite.testMoveTargetExists)
}

func ctx() context.Context {
	return context.Background()
}

// newStoreWithRoot returns a store containing only the root directory.
func (suite *StoreTestSuite) newStoreWithRoot(t *testing.T) metadata.MetadataStore {
	t.Helper()

	store := suite.NewStore(t)
	require.NoError(t, store.Create(ctx(), dir("/")))
	return store
}

func dir(p string) *metadata.Inode {
	now := time.UnixMilli(1700000000000)
	return &metadata.Inode{
		Path:  p,
		Type:  metadata.FileTypeDirectory,
		Owner: "alice",
		Group: "staff",
		Mode:  0o755,
		Atime: now,
		Mtime: now,
	}
}

func file(p string, size uint64) *metadata.Inode {
	inode := dir(p)
	inode.Type = metadata.FileTypeRegular
	inode.Mode = 0o644
	inode.Size = size
	inode.Replication = 3
	inode.BlockSize = 64 << 20
	inode.ContentID = "content-" + p
	return inode
}

func (suite *StoreTestSuite) testCreate(t *testing.T) {
	store := suite.newStoreWithRoot(t)

	require.NoError(t, store.Create(ctx(), file("/a.txt", 12)))

	got, err := store.Get(ctx(), "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, metadata.FileTypeRegular, got.Type)
	assert.Equal(t, uint64(12), got.Size)
	assert.Equal(t, "alice", got.Owner)
	assert.Equal(t, int16(3), got.Replication)
	assert.Equal(t, int64(1700000000000), got.Mtime.UnixMilli())
	assert.Equal(t, "content-/a.txt", got.ContentID)
}

func (suite *StoreTestSuite) testCreateMissingParent(t *testing.T) {
	store := suite.newStoreWithRoot(t)

	err := store.Create(ctx(), file("/missing/a.txt", 0))
	assert.ErrorIs(t, err, metadata.ErrNotFound)
}

func (suite *StoreTestSuite) testCreateDuplicate(t *testing.T) {
	store := suite.newStoreWithRoot(t)

	require.NoError(t, store.Create(ctx(), dir("/d")))
	assert.ErrorIs(t, store.Create(ctx(), dir("/d")), metadata.ErrAlreadyExists)
}

func (suite *StoreTestSuite) testUpdate(t *testing.T) {
	store := suite.newStoreWithRoot(t)
	require.NoError(t, store.Create(ctx(), file("/f", 1)))

	inode, err := store.Get(ctx(), "/f")
	require.NoError(t, err)
	inode.Owner = "bob"
	inode.Size = 99
	require.NoError(t, store.Update(ctx(), inode))

	got, err := store.Get(ctx(), "/f")
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Owner)
	assert.Equal(t, uint64(99), got.Size)

	assert.ErrorIs(t, store.Update(ctx(), file("/nope", 0)), metadata.ErrNotFound)
}

func (suite *StoreTestSuite) testDelete(t *testing.T) {
	store := suite.newStoreWithRoot(t)
	require.NoError(t, store.Create(ctx(), file("/f", 1)))

	require.NoError(t, store.Delete(ctx(), "/f"))

	_, err := store.Get(ctx(), "/f")
	assert.ErrorIs(t, err, metadata.ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx(), "/f"), metadata.ErrNotFound)

	children, err := store.List(ctx(), "/")
	require.NoError(t, err)
	assert.Empty(t, children)
}

func (suite *StoreTestSuite) testDeleteNotEmpty(t *testing.T) {
	store := suite.newStoreWithRoot(t)
	require.NoError(t, store.Create(ctx(), dir("/d")))
	require.NoError(t, store.Create(ctx(), file("/d/f", 1)))

	assert.ErrorIs(t, store.Delete(ctx(), "/d"), metadata.ErrNotEmpty)
}

func (suite *StoreTestSuite) testListOrdered(t *testing.T) {
	store := suite.newStoreWithRoot(t)
	for _, name := range []string{"/c", "/a", "/b"} {
		require.NoError(t, store.Create(ctx(), file(name, 0)))
	}

	children, err := store.List(ctx(), "/")
	require.NoError(t, err)
	require.Len(t, children, 3)
	assert.Equal(t, "/a", children[0].Path)
	assert.Equal(t, "/b", children[1].Path)
	assert.Equal(t, "/c", children[2].Path)
}

func (suite *StoreTestSuite) testListDirectChildren(t *testing.T) {
	store := suite.newStoreWithRoot(t)
	require.NoError(t, store.Create(ctx(), dir("/d")))
	require.NoError(t, store.Create(ctx(), dir("/d/e")))
	require.NoError(t, store.Create(ctx(), file("/d/e/f", 0)))
	require.NoError(t, store.Create(ctx(), file("/d/g", 0)))
	require.NoError(t, store.Create(ctx(), file("/dx", 0)))

	children, err := store.List(ctx(), "/d")
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "/d/e", children[0].Path)
	assert.Equal(t, "/d/g", children[1].Path)

	_, err = store.List(ctx(), "/missing")
	assert.ErrorIs(t, err, metadata.ErrNotFound)
}

func (suite *StoreTestSuite) testMoveFile(t *testing.T) {
	store := suite.newStoreWithRoot(t)
	require.NoError(t, store.Create(ctx(), file("/a", 5)))

	require.NoError(t, store.Move(ctx(), "/a", "/b"))

	_, err := store.Get(ctx(), "/a")
	assert.ErrorIs(t, err, metadata.ErrNotFound)

	got, err := store.Get(ctx(), "/b")
	require.NoError(t, err)
	assert.Equal(t, "/b", got.Path)
	assert.Equal(t, uint64(5), got.Size)
}

func (suite *StoreTestSuite) testMoveSubtree(t *testing.T) {
	store := suite.newStoreWithRoot(t)
	require.NoError(t, store.Create(ctx(), dir("/src")))
	require.NoError(t, store.Create(ctx(), dir("/src/sub")))
	require.NoError(t, store.Create(ctx(), file("/src/sub/f", 1)))
	require.NoError(t, store.Create(ctx(), file("/srcfile", 1)))
	require.NoError(t, store.Create(ctx(), dir("/dst")))

	require.NoError(t, store.Move(ctx(), "/src", "/dst/moved"))

	got, err := store.Get(ctx(), "/dst/moved/sub/f")
	require.NoError(t, err)
	assert.Equal(t, "/dst/moved/sub/f", got.Path)

	children, err := store.List(ctx(), "/dst/moved")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "/dst/moved/sub", children[0].Path)

	_, err = store.Get(ctx(), "/srcfile")
	assert.NoError(t, err, "sibling sharing a name prefix must not move")

	root, err := store.List(ctx(), "/")
	require.NoError(t, err)
	require.Len(t, root, 2)
	assert.Equal(t, "/dst", root[0].Path)
	assert.Equal(t, "/srcfile", root[1].Path)
}

func (suite *StoreTestSuite) testMoveIntoSelf(t *testing.T) {
	store := suite.newStoreWithRoot(t)
	require.NoError(t, store.Create(ctx(), dir("/d")))

	assert.ErrorIs(t, store.Move(ctx(), "/d", "/d/inner"), metadata.ErrInvalidPath)
}

func (suite *StoreTestSuite) testMoveTargetExists(t *testing.T) {
	store := suite.newStoreWithRoot(t)
	require.NoError(t, store.Create(ctx(), file("/a", 0)))
	require.NoError(t, store.Create(ctx(), file("/b", 0)))

	assert.ErrorIs(t, store.Move(ctx(), "/a", "/b"), metadata.ErrAlreadyExists)
	assert.ErrorIs(t, store.Move(ctx(), "/a", "/no/such"), metadata.ErrNotFound)
}
