package backend

import "errors"

// Standard backend errors.
//
// Implementations wrap these with context:
//
//	return fmt.Errorf("open %s: %w", path, backend.ErrNotFound)
//
// The gateway classifies errors with errors.Is, so the wrapping chain must
// be preserved.
var (
	// ErrNotFound indicates the path does not exist.
	ErrNotFound = errors.New("no such file or directory")

	// ErrPermissionDenied indicates the session user lacks access.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrAlreadyExists indicates the target of a create already exists.
	ErrAlreadyExists = errors.New("file already exists")

	// ErrNotEmpty indicates a non-recursive delete of a populated directory.
	ErrNotEmpty = errors.New("directory is not empty")

	// ErrNotDirectory indicates a path component is not a directory.
	ErrNotDirectory = errors.New("not a directory")

	// ErrIsDirectory indicates a file operation targeted a directory.
	ErrIsDirectory = errors.New("is a directory")

	// ErrInvalidArgument indicates a malformed argument.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrClosed indicates the session was already closed.
	ErrClosed = errors.New("session closed")
)
