package config

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/marmos91/fsgate/pkg/audit"
	"github.com/marmos91/fsgate/pkg/auth"
	"github.com/marmos91/fsgate/pkg/backend"
	"github.com/marmos91/fsgate/pkg/backend/storefs"
	"github.com/marmos91/fsgate/pkg/groups"
	"github.com/marmos91/fsgate/pkg/proxyuser"
	"github.com/marmos91/fsgate/pkg/store/content"
	"github.com/marmos91/fsgate/pkg/store/metadata"
)

// CreateGroupResolver creates the group membership source.
//
// Supported types:
//   - "static": membership from groups.static
//   - "unix": the host account database
func CreateGroupResolver(cfg *GroupsConfig) (groups.Resolver, error) {
	switch cfg.Type {
	case "static":
		return groups.NewStatic(cfg.Static), nil
	case "unix":
		return groups.NewUnix(), nil
	default:
		return nil, fmt.Errorf("unknown groups type: %q (supported: static, unix)", cfg.Type)
	}
}

// CreateAuthenticator creates the caller authenticator.
//
// Supported types:
//   - "pseudo": trusts the user.name query parameter
//   - "token": bearer tokens checked against bcrypt hashes
func CreateAuthenticator(cfg *AuthConfig) (auth.Authenticator, error) {
	switch cfg.Type {
	case "pseudo":
		return auth.NewPseudo(cfg.AnonymousUser)
	case "token":
		return auth.NewToken(cfg.Tokens)
	default:
		return nil, fmt.Errorf("unknown auth type: %q (supported: pseudo, token)", cfg.Type)
	}
}

// CreateProxyPolicy compiles the impersonation rules.
func CreateProxyPolicy(rules map[string]proxyuser.Rule, resolver groups.Resolver) (*proxyuser.Policy, error) {
	policy, err := proxyuser.New(rules, resolver)
	if err != nil {
		return nil, fmt.Errorf("invalid proxyusers configuration: %w", err)
	}
	return policy, nil
}

// CreateAuditSink opens the audit destination.
//
// "none" disables auditing. The returned closer is never nil.
func CreateAuditSink(cfg *AuditConfig) (audit.Sink, io.Closer, error) {
	if strings.EqualFold(cfg.Output, "none") {
		return audit.Discard{}, io.NopCloser(nil), nil
	}

	sink, err := audit.Open(cfg.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open audit output %q: %w", cfg.Output, err)
	}
	return sink, sink, nil
}

// CreateConnector builds the store-backed filesystem on top of the given
// stores.
//
// Parameters:
//   - ctx: Context for root directory creation
//   - cfg: Backend configuration
//   - meta: Metadata store
//   - blobs: Content store
//   - resolver: Group membership for permission checks
//
// Returns:
//   - *storefs.Connector: Ready connector
//   - error: If a mode is invalid or the root cannot be created
func CreateConnector(ctx context.Context, cfg *BackendConfig, meta metadata.MetadataStore, blobs content.ContentStore, resolver groups.Resolver) (*storefs.Connector, error) {
	perm, err := ParseMode(cfg.Permission)
	if err != nil {
		return nil, fmt.Errorf("backend.permission: %w", err)
	}
	dirPerm, err := ParseMode(cfg.DirPermission)
	if err != nil {
		return nil, fmt.Errorf("backend.dir_permission: %w", err)
	}

	conn, err := storefs.NewConnector(ctx, meta, blobs, resolver, storefs.Config{
		URI:        cfg.URI,
		Superuser:  cfg.Superuser,
		Supergroup: cfg.Supergroup,
		Defaults: backend.Defaults{
			Replication: cfg.Replication,
			BlockSize:   cfg.BlockSize,
			Permission:  perm,
		},
		DirPermission: dirPerm,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create backend connector: %w", err)
	}
	return conn, nil
}
