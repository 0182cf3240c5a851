// Package metadata defines the path-keyed inode store behind the filesystem.
//
// The store is deliberately thin: it persists inode records, maintains the
// parent/child index and moves subtrees atomically. Permission checks,
// defaults and content handling belong to the filesystem layer.
//
// Implementations:
//   - memory: maps guarded by a RWMutex
//   - badger: BadgerDB with prefixed keys and JSON values
package metadata

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
)

// FileType is the kind of an inode.
type FileType uint8

const (
	FileTypeRegular FileType = iota + 1
	FileTypeDirectory
	FileTypeSymlink
)

func (t FileType) String() string {
	switch t {
	case FileTypeRegular:
		return "file"
	case FileTypeDirectory:
		return "directory"
	case FileTypeSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// Inode is the persisted record for one path.
type Inode struct {
	Path        string    `json:"path"`
	Type        FileType  `json:"type"`
	Owner       string    `json:"owner"`
	Group       string    `json:"group"`
	Mode        uint32    `json:"mode"`
	Size        uint64    `json:"size"`
	Replication int16     `json:"replication"`
	BlockSize   int64     `json:"block_size"`
	Atime       time.Time `json:"atime"`
	Mtime       time.Time `json:"mtime"`

	// ContentID references the blob holding file data. Empty for
	// directories and symlinks.
	ContentID string `json:"content_id,omitempty"`

	// Target is the symlink target.
	Target string `json:"target,omitempty"`
}

// IsDir reports whether the inode is a directory.
func (i *Inode) IsDir() bool {
	return i.Type == FileTypeDirectory
}

// Clone returns a deep copy.
func (i *Inode) Clone() *Inode {
	c := *i
	return &c
}

// MetadataStore persists inodes keyed by absolute path.
//
// Thread Safety:
// Implementations must be safe for concurrent use. Each method is atomic
// with respect to the others.
type MetadataStore interface {
	// Get returns the inode at p. Returns ErrNotFound if missing.
	Get(ctx context.Context, p string) (*Inode, error)

	// Create inserts a new inode. The parent must exist.
	// Returns ErrAlreadyExists or ErrNotFound (missing parent).
	Create(ctx context.Context, inode *Inode) error

	// Update replaces an existing inode. Returns ErrNotFound if missing.
	Update(ctx context.Context, inode *Inode) error

	// Delete removes a single inode. Returns ErrNotFound if missing and
	// ErrNotEmpty if it still has children.
	Delete(ctx context.Context, p string) error

	// List returns the direct children of dir ordered by name.
	List(ctx context.Context, dir string) ([]*Inode, error)

	// Move renames src and everything below it to dst. dst must not exist
	// and its parent must exist.
	Move(ctx context.Context, src, dst string) error

	// Close releases resources.
	Close() error
}

// Root is the path of the filesystem root.
const Root = "/"

// CleanPath validates and normalizes an absolute path.
func CleanPath(p string) (string, error) {
	if !strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("path %q: %w", p, ErrInvalidPath)
	}
	return path.Clean(p), nil
}

// Parent returns the parent directory of p. The parent of the root is the root.
func Parent(p string) string {
	return path.Dir(p)
}

// IsWithin reports whether p equals dir or is below it.
func IsWithin(p, dir string) bool {
	if dir == Root {
		return true
	}
	return p == dir || strings.HasPrefix(p, dir+"/")
}

// Rebase maps p (which must be within src) onto dst.
func Rebase(p, src, dst string) string {
	if p == src {
		return dst
	}
	return path.Join(dst, strings.TrimPrefix(p, src+"/"))
}
