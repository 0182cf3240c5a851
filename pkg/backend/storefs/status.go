package storefs

import (
	"net/url"
	"time"

	"github.com/marmos91/fsgate/pkg/backend"
	"github.com/marmos91/fsgate/pkg/store/metadata"
)

func fileType(t metadata.FileType) backend.FileType {
	switch t {
	case metadata.FileTypeDirectory:
		return backend.TypeDirectory
	case metadata.FileTypeSymlink:
		return backend.TypeSymlink
	default:
		return backend.TypeFile
	}
}

// status converts an inode into the wire-neutral status record. Path is a
// URI, so the inode path is escaped before it is appended to the backend
// address. Directories report zero length, block size and replication.
func (c *Connector) status(inode *metadata.Inode) backend.FileStatus {
	perm := backend.NewPermission(inode.Mode)

	st := backend.FileStatus{
		Path:             c.uri + escapePath(inode.Path),
		Type:             fileType(inode.Type),
		Owner:            inode.Owner,
		Group:            inode.Group,
		Permission:       &perm,
		AccessTime:       inode.Atime.UnixMilli(),
		ModificationTime: inode.Mtime.UnixMilli(),
	}
	if inode.Type == metadata.FileTypeRegular {
		st.Length = int64(inode.Size)
		st.BlockSize = inode.BlockSize
		st.Replication = inode.Replication
	}
	return st
}

func escapePath(p string) string {
	return (&url.URL{Path: p}).EscapedPath()
}

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}
