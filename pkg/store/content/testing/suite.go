// Package testing provides a conformance suite for content store
// implementations.
package testing

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/marmos91/fsgate/pkg/store/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite is a comprehensive test suite for ContentStore implementations.
// It tests the interface contract, not implementation details, making it reusable
// across different implementations (memory, filesystem, S3, etc.).
//
// Usage:
//
//	func TestMyContentStore(t *testing.T) {
//	    suite := &testing.StoreTestSuite{
//	        NewStore: func(t *testing.T) content.ContentStore {
//	            return mystore.New()
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore is a factory function that creates a fresh ContentStore instance
	// for each test. This ensures test isolation.
	NewStore func(t *testing.T) content.ContentStore
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("BasicOperations", suite.RunBasicTests)
	t.Run("WriteOperations", suite.RunWriteTests)
}

// RunBasicTests covers reads, sizes and existence checks.
func (suite *StoreTestSuite) RunBasicTests(t *testing.T) {
	t.Run("OpenReader_NotFound", suite.testOpenReaderNotFound)
	t.Run("OpenReader_Success", suite.testOpenReaderSuccess)
	t.Run("GetContentSize_NotFound", suite.testGetContentSizeNotFound)
	t.Run("ContentExists", suite.testContentExists)
	t.Run("EmptyContent", suite.testEmptyContent)
	t.Run("LargeContent", suite.testLargeContent)
}

// RunWriteTests covers overwrite, append and delete.
func (suite *StoreTestSuite) RunWriteTests(t *testing.T) {
	t.Run("Overwrite", suite.testOverwrite)
	t.Run("Append", suite.testAppend)
	t.Run("Append_Missing", suite.testAppendMissing)
	t.Run("Delete", suite.testDelete)
	t.Run("Delete_Missing", suite.testDeleteMissing)
	t.Run("Write_AfterClose", suite.testWriteAfterClose)
}

func testContext() context.Context {
	return context.Background()
}

func (suite *StoreTestSuite) testOpenReaderNotFound(t *testing.T) {
	store := suite.NewStore(t)

	_, err := store.OpenReader(testContext(), content.NewContentID())
	assert.ErrorIs(t, err, content.ErrContentNotFound)
}

func (suite *StoreTestSuite) testOpenReaderSuccess(t *testing.T) {
	store := suite.NewStore(t)
	id := content.NewContentID()

	mustWrite(t, store, id, []byte("Hello, World!"), false)
	assert.Equal(t, []byte("Hello, World!"), mustRead(t, store, id))
}

func (suite *StoreTestSuite) testGetContentSizeNotFound(t *testing.T) {
	store := suite.NewStore(t)

	_, err := store.GetContentSize(testContext(), content.NewContentID())
	assert.ErrorIs(t, err, content.ErrContentNotFound)
}

func (suite *StoreTestSuite) testContentExists(t *testing.T) {
	store := suite.NewStore(t)
	id := content.NewContentID()

	exists, err := store.ContentExists(testContext(), id)
	require.NoError(t, err)
	assert.False(t, exists)

	mustWrite(t, store, id, []byte("x"), false)

	exists, err = store.ContentExists(testContext(), id)
	require.NoError(t, err)
	assert.True(t, exists)
}

func (suite *StoreTestSuite) testEmptyContent(t *testing.T) {
	store := suite.NewStore(t)
	id := content.NewContentID()

	mustWrite(t, store, id, nil, false)

	size, err := store.GetContentSize(testContext(), id)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), size)
	assert.Empty(t, mustRead(t, store, id))
}

func (suite *StoreTestSuite) testLargeContent(t *testing.T) {
	store := suite.NewStore(t)
	id := content.NewContentID()

	data := bytes.Repeat([]byte("0123456789abcdef"), 64*1024)
	mustWrite(t, store, id, data, false)

	size, err := store.GetContentSize(testContext(), id)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(data)), size)
	assert.Equal(t, data, mustRead(t, store, id))
}

func (suite *StoreTestSuite) testOverwrite(t *testing.T) {
	store := suite.NewStore(t)
	id := content.NewContentID()

	mustWrite(t, store, id, []byte("first version"), false)
	mustWrite(t, store, id, []byte("second"), false)

	assert.Equal(t, []byte("second"), mustRead(t, store, id))
}

func (suite *StoreTestSuite) testAppend(t *testing.T) {
	store := suite.NewStore(t)
	id := content.NewContentID()

	mustWrite(t, store, id, []byte("hello"), false)
	mustWrite(t, store, id, []byte(", world"), true)

	assert.Equal(t, []byte("hello, world"), mustRead(t, store, id))
}

func (suite *StoreTestSuite) testAppendMissing(t *testing.T) {
	store := suite.NewStore(t)
	id := content.NewContentID()

	mustWrite(t, store, id, []byte("tail"), true)
	assert.Equal(t, []byte("tail"), mustRead(t, store, id))
}

func (suite *StoreTestSuite) testDelete(t *testing.T) {
	store := suite.NewStore(t)
	id := content.NewContentID()

	mustWrite(t, store, id, []byte("doomed"), false)
	require.NoError(t, store.Delete(testContext(), id))

	exists, err := store.ContentExists(testContext(), id)
	require.NoError(t, err)
	assert.False(t, exists)
}

func (suite *StoreTestSuite) testDeleteMissing(t *testing.T) {
	store := suite.NewStore(t)
	assert.NoError(t, store.Delete(testContext(), content.NewContentID()))
}

func (suite *StoreTestSuite) testWriteAfterClose(t *testing.T) {
	store := suite.NewStore(t)

	w, err := store.OpenWriter(testContext(), content.NewContentID(), false)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	assert.Error(t, err)
}

func mustWrite(t *testing.T, store content.ContentStore, id content.ContentID, data []byte, appendMode bool) {
	t.Helper()

	w, err := store.OpenWriter(testContext(), id, appendMode)
	require.NoError(t, err)

	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func mustRead(t *testing.T, store content.ContentStore, id content.ContentID) []byte {
	t.Helper()

	r, err := store.OpenReader(testContext(), id)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return data
}
