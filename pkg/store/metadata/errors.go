package metadata

import "errors"

var (
	// ErrNotFound indicates the path (or, for Create/Move, its parent) does
	// not exist.
	ErrNotFound = errors.New("metadata not found")

	// ErrAlreadyExists indicates the target path is taken.
	ErrAlreadyExists = errors.New("metadata already exists")

	// ErrNotEmpty indicates a delete of an inode that still has children.
	ErrNotEmpty = errors.New("directory not empty")

	// ErrInvalidPath indicates a relative or otherwise malformed path, or a
	// move of a directory into itself.
	ErrInvalidPath = errors.New("invalid path")
)
