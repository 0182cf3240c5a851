package storefs

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/marmos91/fsgate/pkg/backend"
	"github.com/marmos91/fsgate/pkg/store/content"
	"github.com/marmos91/fsgate/pkg/store/metadata"
)

const (
	accessRead    backend.Permission = 0o4
	accessWrite   backend.Permission = 0o2
	accessExecute backend.Permission = 0o1
)

func (s *Session) inGroup(group string) bool {
	return slices.Contains(s.groups, group)
}

func (s *Session) isOwner(inode *metadata.Inode) bool {
	return s.super || inode.Owner == s.user
}

// check verifies that the session user holds every bit in want on inode.
func (s *Session) check(inode *metadata.Inode, want backend.Permission) error {
	if s.super {
		return nil
	}

	mode := backend.NewPermission(inode.Mode)
	owner := inode.Owner == s.user
	member := s.inGroup(inode.Group)

	for _, bit := range []backend.Permission{accessRead, accessWrite, accessExecute} {
		if want&bit != 0 && !mode.Allows(bit, owner, member) {
			return fmt.Errorf("user=%s, access=%s, inode=%s: %w",
				s.user, accessName(want), inode.Path, backend.ErrPermissionDenied)
		}
	}
	return nil
}

func accessName(p backend.Permission) string {
	var b strings.Builder
	for _, c := range []struct {
		bit backend.Permission
		ch  byte
	}{{accessRead, 'R'}, {accessWrite, 'W'}, {accessExecute, 'X'}} {
		if p&c.bit != 0 {
			b.WriteByte(c.ch)
		}
	}
	return b.String()
}

// ancestors returns "/", "/a", "/a/b" for "/a/b/c".
func ancestors(p string) []string {
	if p == metadata.Root {
		return nil
	}
	result := []string{metadata.Root}
	parts := strings.Split(strings.TrimPrefix(p, "/"), "/")
	for i := 1; i < len(parts); i++ {
		result = append(result, "/"+strings.Join(parts[:i], "/"))
	}
	return result
}

// traverse checks search permission on every ancestor of p. A missing
// ancestor yields ErrNotFound; a non-directory ancestor yields ErrNotDirectory.
func (s *Session) traverse(ctx context.Context, p string) error {
	for _, dir := range ancestors(p) {
		inode, err := s.conn.meta.Get(ctx, dir)
		if err != nil {
			return storeError(p, err)
		}
		if !inode.IsDir() {
			return fmt.Errorf("%s: %w", dir, backend.ErrNotDirectory)
		}
		if err := s.check(inode, accessExecute); err != nil {
			return err
		}
	}
	return nil
}

// lookup resolves p after checking traversal permission on its ancestors.
func (s *Session) lookup(ctx context.Context, p string) (*metadata.Inode, error) {
	if err := s.traverse(ctx, p); err != nil {
		return nil, err
	}
	inode, err := s.conn.meta.Get(ctx, p)
	if err != nil {
		return nil, storeError(p, err)
	}
	return inode, nil
}

// lookupParent resolves the parent directory of p.
func (s *Session) lookupParent(ctx context.Context, p string) (*metadata.Inode, error) {
	parent, err := s.lookup(ctx, metadata.Parent(p))
	if err != nil {
		return nil, err
	}
	if !parent.IsDir() {
		return nil, fmt.Errorf("%s: %w", parent.Path, backend.ErrNotDirectory)
	}
	return parent, nil
}

// storeError maps store sentinels onto backend sentinels, keeping the path.
func storeError(p string, err error) error {
	switch {
	case errors.Is(err, metadata.ErrNotFound), errors.Is(err, content.ErrContentNotFound):
		return fmt.Errorf("%s: %w", p, backend.ErrNotFound)
	case errors.Is(err, metadata.ErrAlreadyExists):
		return fmt.Errorf("%s: %w", p, backend.ErrAlreadyExists)
	case errors.Is(err, metadata.ErrNotEmpty):
		return fmt.Errorf("%s: %w", p, backend.ErrNotEmpty)
	case errors.Is(err, metadata.ErrInvalidPath), errors.Is(err, content.ErrInvalidContentID):
		return fmt.Errorf("%s: %w", p, backend.ErrInvalidArgument)
	default:
		return fmt.Errorf("%s: %w", p, err)
	}
}

func cleanPath(p string) (string, error) {
	clean, err := metadata.CleanPath(p)
	if err != nil {
		return "", fmt.Errorf("%s: %w", p, backend.ErrInvalidArgument)
	}
	return clean, nil
}
