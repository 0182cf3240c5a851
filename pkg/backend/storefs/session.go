package storefs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync/atomic"

	"github.com/marmos91/fsgate/pkg/backend"
	"github.com/marmos91/fsgate/pkg/store/content"
	"github.com/marmos91/fsgate/pkg/store/metadata"
)

// Session is a filesystem view bound to one user.
//
// A Session is used by a single request and is not safe for concurrent use,
// except for Close which may race with in-flight calls.
type Session struct {
	conn   *Connector
	user   string
	groups []string
	super  bool
	closed atomic.Bool
}

var _ backend.Session = (*Session)(nil)

func (s *Session) User() string {
	return s.user
}

// Close ends the session. A second Close returns ErrClosed.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return backend.ErrClosed
	}
	s.conn.active.Add(-1)
	return nil
}

func (s *Session) ensureOpen() error {
	if s.closed.Load() {
		return backend.ErrClosed
	}
	return nil
}

func (s *Session) Defaults() backend.Defaults {
	return s.conn.cfg.Defaults
}

func (s *Session) HomeDirectory(ctx context.Context) (string, error) {
	if err := s.ensureOpen(); err != nil {
		return "", err
	}
	return "/user/" + s.user, nil
}

func (s *Session) defaultMode(dir bool) uint32 {
	if dir {
		return uint32(s.conn.cfg.DirPermission)
	}
	return uint32(s.conn.cfg.Defaults.Permission)
}

func modeOr(perm *backend.Permission, fallback uint32) uint32 {
	if perm == nil {
		return fallback
	}
	return uint32(*perm)
}

// ============================================================================
// Reads
// ============================================================================

// emptyReader stands in for a file whose content blob was never written.
type emptyReader struct {
	*strings.Reader
}

func (emptyReader) Close() error { return nil }

func (s *Session) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	p, err := cleanPath(p)
	if err != nil {
		return nil, err
	}

	inode, err := s.lookup(ctx, p)
	if err != nil {
		return nil, err
	}
	if inode.IsDir() {
		return nil, fmt.Errorf("%s: %w", p, backend.ErrIsDirectory)
	}
	if err := s.check(inode, accessRead); err != nil {
		return nil, err
	}

	if inode.ContentID == "" {
		return emptyReader{strings.NewReader("")}, nil
	}

	r, err := s.conn.content.OpenReader(ctx, content.ContentID(inode.ContentID))
	if err != nil {
		if errors.Is(err, content.ErrContentNotFound) && inode.Size == 0 {
			return emptyReader{strings.NewReader("")}, nil
		}
		return nil, storeError(p, err)
	}
	return r, nil
}

func (s *Session) GetFileStatus(ctx context.Context, p string) (*backend.FileStatus, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	p, err := cleanPath(p)
	if err != nil {
		return nil, err
	}

	inode, err := s.lookup(ctx, p)
	if err != nil {
		return nil, err
	}
	status := s.conn.status(inode)
	return &status, nil
}

func (s *Session) ListStatus(ctx context.Context, p string) ([]backend.FileStatus, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	p, err := cleanPath(p)
	if err != nil {
		return nil, err
	}

	inode, err := s.lookup(ctx, p)
	if err != nil {
		return nil, err
	}
	if !inode.IsDir() {
		return []backend.FileStatus{s.conn.status(inode)}, nil
	}
	if err := s.check(inode, accessRead|accessExecute); err != nil {
		return nil, err
	}

	children, err := s.conn.meta.List(ctx, p)
	if err != nil {
		return nil, storeError(p, err)
	}

	result := make([]backend.FileStatus, 0, len(children))
	for _, child := range children {
		result = append(result, s.conn.status(child))
	}
	return result, nil
}

// ============================================================================
// Writes
// ============================================================================

// mkdirs creates p and any missing ancestors. Existing directories along the
// way need search permission; the directory receiving a new entry needs
// write and search permission.
func (s *Session) mkdirs(ctx context.Context, p string, mode uint32) error {
	chain := append(ancestors(p), p)

	var parent *metadata.Inode
	for i, dir := range chain {
		inode, err := s.conn.meta.Get(ctx, dir)
		if err == nil {
			if !inode.IsDir() {
				return fmt.Errorf("%s: %w", dir, backend.ErrNotDirectory)
			}
			if i < len(chain)-1 {
				if err := s.check(inode, accessExecute); err != nil {
					return err
				}
			}
			parent = inode
			continue
		}
		if !errors.Is(err, metadata.ErrNotFound) {
			return storeError(dir, err)
		}

		if err := s.check(parent, accessWrite|accessExecute); err != nil {
			return err
		}

		ts := s.conn.now()
		created := &metadata.Inode{
			Path:  dir,
			Type:  metadata.FileTypeDirectory,
			Owner: s.user,
			Group: parent.Group,
			Mode:  mode,
			Atime: ts,
			Mtime: ts,
		}
		if err := s.conn.meta.Create(ctx, created); err != nil {
			if !errors.Is(err, metadata.ErrAlreadyExists) {
				return storeError(dir, err)
			}
			// Lost a race with a concurrent mkdirs; re-read to validate the type
			if created, err = s.conn.meta.Get(ctx, dir); err != nil {
				return storeError(dir, err)
			}
			if !created.IsDir() {
				return fmt.Errorf("%s: %w", dir, backend.ErrNotDirectory)
			}
		}
		parent = created
	}
	return nil
}

func (s *Session) Mkdirs(ctx context.Context, p string, perm *backend.Permission) (bool, error) {
	if err := s.ensureOpen(); err != nil {
		return false, err
	}
	p, err := cleanPath(p)
	if err != nil {
		return false, err
	}

	if err := s.mkdirs(ctx, p, modeOr(perm, s.defaultMode(true))); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Session) Create(ctx context.Context, p string, opts backend.CreateOptions) (io.WriteCloser, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	p, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	if p == metadata.Root {
		return nil, fmt.Errorf("%s: %w", p, backend.ErrIsDirectory)
	}

	defaults := s.conn.cfg.Defaults
	if opts.Replication <= 0 {
		opts.Replication = defaults.Replication
	}
	if opts.BlockSize <= 0 {
		opts.BlockSize = defaults.BlockSize
	}
	mode := modeOr(opts.Permission, s.defaultMode(false))

	dir := metadata.Parent(p)
	if err := s.mkdirs(ctx, dir, s.defaultMode(true)); err != nil {
		return nil, err
	}
	parent, err := s.conn.meta.Get(ctx, dir)
	if err != nil {
		return nil, storeError(dir, err)
	}

	id := content.NewContentID()

	existing, err := s.conn.meta.Get(ctx, p)
	switch {
	case err == nil:
		if existing.IsDir() {
			return nil, fmt.Errorf("%s: %w", p, backend.ErrIsDirectory)
		}
		if !opts.Overwrite {
			return nil, fmt.Errorf("%s: %w", p, backend.ErrAlreadyExists)
		}
		if err := s.check(existing, accessWrite); err != nil {
			return nil, err
		}
	case errors.Is(err, metadata.ErrNotFound):
		if err := s.check(parent, accessWrite|accessExecute); err != nil {
			return nil, err
		}
		ts := s.conn.now()
		inode := &metadata.Inode{
			Path:        p,
			Type:        metadata.FileTypeRegular,
			Owner:       s.user,
			Group:       parent.Group,
			Mode:        mode,
			Replication: opts.Replication,
			BlockSize:   opts.BlockSize,
			Atime:       ts,
			Mtime:       ts,
			ContentID:   string(id),
		}
		if err := s.conn.meta.Create(ctx, inode); err != nil {
			return nil, storeError(p, err)
		}
	default:
		return nil, storeError(p, err)
	}

	w, err := s.conn.content.OpenWriter(ctx, id, false)
	if err != nil {
		return nil, storeError(p, err)
	}

	return &fileWriter{
		ctx: ctx,
		w:   w,
		commit: func(ctx context.Context, n int64) error {
			inode, err := s.conn.meta.Get(ctx, p)
			if err != nil {
				return storeError(p, err)
			}
			previous := inode.ContentID

			inode.ContentID = string(id)
			inode.Size = uint64(n)
			inode.Mtime = s.conn.now()
			if existing != nil {
				inode.Mode = mode
				inode.Replication = opts.Replication
				inode.BlockSize = opts.BlockSize
			}
			if err := s.conn.meta.Update(ctx, inode); err != nil {
				return storeError(p, err)
			}

			if previous != "" && previous != string(id) {
				_ = s.conn.content.Delete(ctx, content.ContentID(previous))
			}
			return nil
		},
		abort: func(ctx context.Context) error {
			if err := s.conn.content.Delete(ctx, id); err != nil {
				return storeError(p, err)
			}
			if existing != nil {
				return nil
			}
			// The placeholder inode created above points at id.
			if err := s.conn.meta.Delete(ctx, p); err != nil && !errors.Is(err, metadata.ErrNotFound) {
				return storeError(p, err)
			}
			return nil
		},
	}, nil
}

func (s *Session) Append(ctx context.Context, p string) (io.WriteCloser, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	p, err := cleanPath(p)
	if err != nil {
		return nil, err
	}

	inode, err := s.lookup(ctx, p)
	if err != nil {
		return nil, err
	}
	if inode.IsDir() {
		return nil, fmt.Errorf("%s: %w", p, backend.ErrIsDirectory)
	}
	if err := s.check(inode, accessWrite); err != nil {
		return nil, err
	}

	id := content.ContentID(inode.ContentID)
	if id == "" {
		id = content.NewContentID()
	}

	w, err := s.conn.content.OpenWriter(ctx, id, true)
	if err != nil {
		return nil, storeError(p, err)
	}

	return &fileWriter{
		ctx: ctx,
		w:   w,
		commit: func(ctx context.Context, n int64) error {
			current, err := s.conn.meta.Get(ctx, p)
			if err != nil {
				return storeError(p, err)
			}
			current.ContentID = string(id)
			current.Size += uint64(n)
			current.Mtime = s.conn.now()
			if err := s.conn.meta.Update(ctx, current); err != nil {
				return storeError(p, err)
			}
			return nil
		},
	}, nil
}

func (s *Session) Delete(ctx context.Context, p string, recursive bool) (bool, error) {
	if err := s.ensureOpen(); err != nil {
		return false, err
	}
	p, err := cleanPath(p)
	if err != nil {
		return false, err
	}
	if p == metadata.Root {
		return false, nil
	}

	parent, err := s.lookupParent(ctx, p)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	inode, err := s.conn.meta.Get(ctx, p)
	if err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			return false, nil
		}
		return false, storeError(p, err)
	}

	if err := s.check(parent, accessWrite|accessExecute); err != nil {
		return false, err
	}

	if inode.IsDir() && !recursive {
		children, err := s.conn.meta.List(ctx, p)
		if err != nil {
			return false, storeError(p, err)
		}
		if len(children) > 0 {
			return false, fmt.Errorf("%s: %w", p, backend.ErrNotEmpty)
		}
	}

	if err := s.removeTree(ctx, inode); err != nil {
		return false, err
	}
	return true, nil
}

// removeTree deletes inode and everything below it, children first.
func (s *Session) removeTree(ctx context.Context, inode *metadata.Inode) error {
	if inode.IsDir() {
		children, err := s.conn.meta.List(ctx, inode.Path)
		if err != nil {
			return storeError(inode.Path, err)
		}
		if len(children) > 0 {
			if err := s.check(inode, accessWrite|accessExecute); err != nil {
				return err
			}
		}
		for _, child := range children {
			if err := s.removeTree(ctx, child); err != nil {
				return err
			}
		}
	}

	if err := s.conn.meta.Delete(ctx, inode.Path); err != nil {
		return storeError(inode.Path, err)
	}
	if inode.ContentID != "" {
		if err := s.conn.content.Delete(ctx, content.ContentID(inode.ContentID)); err != nil {
			return storeError(inode.Path, err)
		}
	}
	return nil
}

// Rename moves src to dst. When dst is an existing directory, src is moved
// into it. Returns false without error when src is missing, the destination
// is taken, its parent is missing, or dst lies inside src.
func (s *Session) Rename(ctx context.Context, src, dst string) (bool, error) {
	if err := s.ensureOpen(); err != nil {
		return false, err
	}
	src, err := cleanPath(src)
	if err != nil {
		return false, err
	}
	dst, err = cleanPath(dst)
	if err != nil {
		return false, err
	}
	if src == metadata.Root {
		return false, nil
	}

	srcParent, err := s.lookupParent(ctx, src)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if _, err := s.conn.meta.Get(ctx, src); err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			return false, nil
		}
		return false, storeError(src, err)
	}

	if target, err := s.conn.meta.Get(ctx, dst); err == nil {
		if !target.IsDir() {
			return src == dst, nil
		}
		dst = path.Join(dst, path.Base(src))
	}
	if src == dst {
		return true, nil
	}
	if metadata.IsWithin(dst, src) {
		return false, nil
	}

	dstParent, err := s.lookupParent(ctx, dst)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) || errors.Is(err, backend.ErrNotDirectory) {
			return false, nil
		}
		return false, err
	}

	if err := s.check(srcParent, accessWrite|accessExecute); err != nil {
		return false, err
	}
	if err := s.check(dstParent, accessWrite|accessExecute); err != nil {
		return false, err
	}

	if err := s.conn.meta.Move(ctx, src, dst); err != nil {
		if errors.Is(err, metadata.ErrAlreadyExists) || errors.Is(err, metadata.ErrNotFound) {
			return false, nil
		}
		return false, storeError(src, err)
	}
	return true, nil
}

// ============================================================================
// Attribute changes
// ============================================================================

func (s *Session) SetOwner(ctx context.Context, p, owner, group string) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if owner == "" && group == "" {
		return fmt.Errorf("owner and group both empty: %w", backend.ErrInvalidArgument)
	}
	p, err := cleanPath(p)
	if err != nil {
		return err
	}

	inode, err := s.lookup(ctx, p)
	if err != nil {
		return err
	}

	if !s.super {
		if owner != "" && owner != inode.Owner {
			return fmt.Errorf("user=%s cannot change owner of %s: %w", s.user, p, backend.ErrPermissionDenied)
		}
		if group != "" && (inode.Owner != s.user || !s.inGroup(group)) {
			return fmt.Errorf("user=%s cannot set group %s on %s: %w", s.user, group, p, backend.ErrPermissionDenied)
		}
	}

	if owner != "" {
		inode.Owner = owner
	}
	if group != "" {
		inode.Group = group
	}
	return s.update(ctx, inode)
}

func (s *Session) SetPermission(ctx context.Context, p string, perm *backend.Permission) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	p, err := cleanPath(p)
	if err != nil {
		return err
	}

	inode, err := s.lookup(ctx, p)
	if err != nil {
		return err
	}
	if !s.isOwner(inode) {
		return fmt.Errorf("user=%s is not the owner of %s: %w", s.user, p, backend.ErrPermissionDenied)
	}

	inode.Mode = modeOr(perm, s.defaultMode(inode.IsDir()))
	return s.update(ctx, inode)
}

func (s *Session) SetReplication(ctx context.Context, p string, replication int16) (bool, error) {
	if err := s.ensureOpen(); err != nil {
		return false, err
	}
	p, err := cleanPath(p)
	if err != nil {
		return false, err
	}

	inode, err := s.lookup(ctx, p)
	if err != nil {
		return false, err
	}
	if inode.IsDir() {
		return false, nil
	}
	if err := s.check(inode, accessWrite); err != nil {
		return false, err
	}

	if replication <= 0 {
		replication = s.conn.cfg.Defaults.Replication
	}
	inode.Replication = replication
	if err := s.update(ctx, inode); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Session) SetTimes(ctx context.Context, p string, mtime, atime int64) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	p, err := cleanPath(p)
	if err != nil {
		return err
	}

	inode, err := s.lookup(ctx, p)
	if err != nil {
		return err
	}
	if err := s.check(inode, accessWrite); err != nil {
		return err
	}

	if mtime != -1 {
		inode.Mtime = msToTime(mtime)
	}
	if atime != -1 {
		inode.Atime = msToTime(atime)
	}
	return s.update(ctx, inode)
}

func (s *Session) update(ctx context.Context, inode *metadata.Inode) error {
	if err := s.conn.meta.Update(ctx, inode); err != nil {
		return storeError(inode.Path, err)
	}
	return nil
}
