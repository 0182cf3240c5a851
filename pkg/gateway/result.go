package gateway

import (
	"io"

	"github.com/marmos91/fsgate/pkg/backend"
)

// Result is the outcome of a command. The concrete types below are the only
// implementations; the wire layer switches on them.
type Result interface {
	isResult()
}

// Empty is a 200 response without body.
type Empty struct{}

// Flag is a single boolean under Label, e.g. {"mkdirs": true}.
type Flag struct {
	Label string
	Value bool
}

// Status is one file status record.
type Status struct {
	Status backend.FileStatus
}

// StatusList is a directory listing.
type StatusList struct {
	Statuses []backend.FileStatus
}

// ByteStream is file content to stream to the client. Reader is owned by the
// request scope; the copy may close it early.
type ByteStream struct {
	Reader      io.ReadCloser
	Offset      int64
	Length      int64
	ContentType string
}

// CreatedResource points at a newly created file by its absolute path.
type CreatedResource struct {
	Path string
}

// Snapshot is instrumentation data.
type Snapshot struct {
	Data map[string]any
}

// HomeDir carries the home directory of the effective user.
type HomeDir struct {
	Path string
}

func (Empty) isResult()           {}
func (Flag) isResult()            {}
func (Status) isResult()          {}
func (StatusList) isResult()      {}
func (ByteStream) isResult()      {}
func (CreatedResource) isResult() {}
func (Snapshot) isResult()        {}
func (HomeDir) isResult()         {}
