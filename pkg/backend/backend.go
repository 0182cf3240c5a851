// Package backend defines the filesystem contract the gateway executes
// operations against.
//
// A Connector opens one Session per request on behalf of an effective user.
// The Session is the unit of resource ownership: it is acquired lazily by the
// gateway, used by exactly one request, and closed exactly once.
//
// Implementations:
//   - storefs: filesystem built on a metadata store and a content store
package backend

import (
	"context"
	"io"
)

// FileType identifies the kind of a filesystem entry.
type FileType string

const (
	TypeFile      FileType = "FILE"
	TypeDirectory FileType = "DIRECTORY"
	TypeSymlink   FileType = "SYMLINK"
)

// FileStatus is the metadata record returned by status and listing calls.
//
// Path is backend-addressable (it carries the backend URI scheme and host)
// and, being a URI, has its path component escaped. The gateway rewrites it
// before returning it to clients.
type FileStatus struct {
	Path             string
	Type             FileType
	Length           int64
	Owner            string
	Group            string
	Permission       *Permission
	AccessTime       int64 // milliseconds since epoch
	ModificationTime int64 // milliseconds since epoch
	BlockSize        int64
	Replication      int16
}

// CreateOptions carries the resolved arguments of a create call.
//
// A nil Permission asks the backend to apply its default ACL.
type CreateOptions struct {
	Permission  *Permission
	Overwrite   bool
	Replication int16
	BlockSize   int64
}

// Defaults reports the values the backend uses when a client leaves
// replication, block size or permission unspecified.
type Defaults struct {
	Replication int16
	BlockSize   int64
	Permission  Permission
}

// FileSystem is the operation table the gateway dispatches onto.
//
// All paths are absolute, slash-separated and already normalized by the
// caller. Errors are wrapped sentinel errors from this package.
type FileSystem interface {
	// Open returns a reader positioned at the start of the file.
	// The returned reader may implement io.Seeker.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Create creates (or truncates when opts.Overwrite is set) a file and
	// returns a writer for its content. Metadata is committed on Close.
	Create(ctx context.Context, path string, opts CreateOptions) (io.WriteCloser, error)

	// Append returns a writer that appends to an existing file.
	Append(ctx context.Context, path string) (io.WriteCloser, error)

	Delete(ctx context.Context, path string, recursive bool) (bool, error)
	Rename(ctx context.Context, src, dst string) (bool, error)
	Mkdirs(ctx context.Context, path string, perm *Permission) (bool, error)

	// SetOwner changes owner and/or group. An empty value leaves the
	// attribute unchanged.
	SetOwner(ctx context.Context, path, owner, group string) error

	// SetPermission replaces the mode bits. A nil permission restores the
	// backend default.
	SetPermission(ctx context.Context, path string, perm *Permission) error

	SetReplication(ctx context.Context, path string, replication int16) (bool, error)

	// SetTimes updates modification and access time in milliseconds.
	// A value of -1 leaves the corresponding time unchanged.
	SetTimes(ctx context.Context, path string, mtime, atime int64) error

	GetFileStatus(ctx context.Context, path string) (*FileStatus, error)
	ListStatus(ctx context.Context, path string) ([]FileStatus, error)
	HomeDirectory(ctx context.Context) (string, error)
	Defaults() Defaults
}

// Aborter is implemented by writers returned from Create and Append that can
// discard an unfinished write. Abort replaces Close; a writer is either
// closed or aborted, never both.
type Aborter interface {
	Abort() error
}

// Session is a FileSystem bound to one user for the duration of a request.
type Session interface {
	FileSystem
	io.Closer

	// User returns the identity the session acts as.
	User() string
}

// Connector opens sessions. Implementations must be safe for concurrent use.
type Connector interface {
	Connect(ctx context.Context, user string) (Session, error)
}
