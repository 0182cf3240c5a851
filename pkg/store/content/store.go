// Package content defines the blob storage used for file data.
//
// A content store holds opaque byte sequences addressed by ContentID. It knows
// nothing about paths, owners or permissions; those live in the metadata
// store. The filesystem layer allocates one ContentID per file and streams
// data through OpenReader/OpenWriter.
//
// Implementations:
//   - memory: in-process maps, for tests and ephemeral deployments
//   - fs: one file per ContentID under a base directory
//   - s3: one object per ContentID in a bucket
package content

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// ContentID identifies a blob. IDs are random UUIDs generated by NewContentID.
type ContentID string

// NewContentID allocates a fresh identifier.
func NewContentID() ContentID {
	return ContentID(uuid.NewString())
}

// Validate checks that id has the shape produced by NewContentID.
//
// Stores that map IDs onto filesystem paths or object keys call this before
// touching storage so a malformed ID cannot escape the store namespace.
func (id ContentID) Validate() error {
	if _, err := uuid.Parse(string(id)); err != nil {
		return fmt.Errorf("content id %q: %w", string(id), ErrInvalidContentID)
	}
	return nil
}

func (id ContentID) String() string {
	return string(id)
}

// ContentStore is the storage interface for file data.
//
// Thread Safety:
// Implementations must be safe for concurrent use. Concurrent writers to the
// same ContentID are not coordinated; the filesystem layer serializes them.
type ContentStore interface {
	// OpenReader returns a reader over the full content.
	//
	// Readers returned by seekable backends also implement io.Seeker, which
	// lets range reads skip directly to an offset.
	//
	// Returns ErrContentNotFound if the content does not exist.
	OpenReader(ctx context.Context, id ContentID) (io.ReadCloser, error)

	// OpenWriter returns a writer for the content.
	//
	// With appendMode false the content is replaced (created if missing).
	// With appendMode true data is added after existing bytes; a missing
	// content is treated as empty. Data is durable once Close returns nil.
	OpenWriter(ctx context.Context, id ContentID, appendMode bool) (io.WriteCloser, error)

	// GetContentSize returns the size in bytes.
	//
	// Returns ErrContentNotFound if the content does not exist.
	GetContentSize(ctx context.Context, id ContentID) (uint64, error)

	// ContentExists reports whether the content exists.
	ContentExists(ctx context.Context, id ContentID) (bool, error)

	// Delete removes the content. Deleting missing content is not an error.
	Delete(ctx context.Context, id ContentID) error

	// Close releases store resources.
	Close() error
}
