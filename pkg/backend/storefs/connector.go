// Package storefs implements backend.FileSystem on top of a metadata store
// and a content store.
//
// Directory structure, ownership and mode bits live in the metadata store;
// file bytes live in the content store under a random ContentID per file.
// Access checks follow POSIX owner/group/other semantics with a superuser
// and a supergroup that bypass them.
package storefs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/marmos91/fsgate/internal/logger"
	"github.com/marmos91/fsgate/pkg/backend"
	"github.com/marmos91/fsgate/pkg/groups"
	"github.com/marmos91/fsgate/pkg/store/content"
	"github.com/marmos91/fsgate/pkg/store/metadata"
)

// Config controls filesystem-wide behavior.
type Config struct {
	// URI is the backend address prefixed to status paths,
	// e.g. "storefs://localhost:8020".
	URI string

	// Superuser bypasses all permission checks and owns the root directory.
	Superuser string

	// Supergroup members bypass all permission checks.
	Supergroup string

	// Defaults are applied when a client leaves values unspecified.
	Defaults backend.Defaults

	// DirPermission is the mode of directories created without an
	// explicit permission.
	DirPermission backend.Permission

	// Clock overrides time.Now (tests).
	Clock func() time.Time
}

// Connector opens sessions on a shared pair of stores.
type Connector struct {
	meta    metadata.MetadataStore
	content content.ContentStore
	groups  groups.Resolver
	cfg     Config
	uri     string
	now     func() time.Time

	active atomic.Int64
}

var _ backend.Connector = (*Connector)(nil)

// NewConnector validates cfg and creates the root directory if the metadata
// store is empty.
func NewConnector(ctx context.Context, meta metadata.MetadataStore, blobs content.ContentStore, resolver groups.Resolver, cfg Config) (*Connector, error) {
	if meta == nil || blobs == nil {
		return nil, fmt.Errorf("metadata and content stores are required")
	}
	if cfg.Superuser == "" {
		return nil, fmt.Errorf("superuser is required")
	}
	if resolver == nil {
		resolver = groups.NewStatic(nil)
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	c := &Connector{
		meta:    meta,
		content: blobs,
		groups:  resolver,
		cfg:     cfg,
		uri:     strings.TrimSuffix(cfg.URI, "/"),
		now:     now,
	}

	if err := c.bootstrap(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Connector) bootstrap(ctx context.Context) error {
	_, err := c.meta.Get(ctx, metadata.Root)
	if err == nil {
		return nil
	}
	if !errors.Is(err, metadata.ErrNotFound) {
		return fmt.Errorf("failed to read root inode: %w", err)
	}

	ts := c.now()
	root := &metadata.Inode{
		Path:  metadata.Root,
		Type:  metadata.FileTypeDirectory,
		Owner: c.cfg.Superuser,
		Group: c.cfg.Supergroup,
		Mode:  0o755,
		Atime: ts,
		Mtime: ts,
	}
	if err := c.meta.Create(ctx, root); err != nil && !errors.Is(err, metadata.ErrAlreadyExists) {
		return fmt.Errorf("failed to create root inode: %w", err)
	}

	logger.Info("Initialized filesystem root owned by %s:%s", c.cfg.Superuser, c.cfg.Supergroup)
	return nil
}

// Connect opens a session for user. Group memberships are resolved once per
// session.
func (c *Connector) Connect(ctx context.Context, user string) (backend.Session, error) {
	if user == "" {
		return nil, fmt.Errorf("empty user: %w", backend.ErrInvalidArgument)
	}

	memberOf, err := c.groups.Groups(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("resolve groups of %s: %w", user, err)
	}

	s := &Session{
		conn:   c,
		user:   user,
		groups: memberOf,
	}
	s.super = user == c.cfg.Superuser || (c.cfg.Supergroup != "" && s.inGroup(c.cfg.Supergroup))

	c.active.Add(1)
	return s, nil
}

// ActiveSessions returns the number of sessions not yet closed.
func (c *Connector) ActiveSessions() int64 {
	return c.active.Load()
}
