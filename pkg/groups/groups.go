// Package groups resolves the group memberships of user names.
//
// Group membership drives two decisions: the group permission class in the
// filesystem and the admin check for the instrumentation operation.
package groups

import (
	"context"
	"errors"
	"fmt"
	"os/user"
	"slices"
	"sync"
)

// Resolver returns the groups a user belongs to. Unknown users have no
// groups; that is not an error.
type Resolver interface {
	Groups(ctx context.Context, name string) ([]string, error)
}

// Membership adapts a Resolver to single-group checks.
type Membership struct {
	resolver Resolver
}

// NewMembership wraps resolver.
func NewMembership(resolver Resolver) *Membership {
	return &Membership{resolver: resolver}
}

// IsMember reports whether name belongs to group. Lookup failures count as
// "not a member".
func (m *Membership) IsMember(ctx context.Context, name, group string) bool {
	if m == nil || m.resolver == nil {
		return false
	}
	groups, err := m.resolver.Groups(ctx, name)
	if err != nil {
		return false
	}
	return slices.Contains(groups, group)
}

// Static serves memberships from configuration.
type Static struct {
	members map[string][]string
}

// NewStatic builds a resolver from a group -> users map.
func NewStatic(groupMembers map[string][]string) *Static {
	byUser := make(map[string][]string)
	for group, users := range groupMembers {
		for _, u := range users {
			byUser[u] = append(byUser[u], group)
		}
	}
	for u := range byUser {
		slices.Sort(byUser[u])
	}
	return &Static{members: byUser}
}

func (s *Static) Groups(_ context.Context, name string) ([]string, error) {
	return slices.Clone(s.members[name]), nil
}

// Unix resolves groups through the host account database.
//
// Results are cached for the life of the process; restart to pick up
// changes to /etc/group.
type Unix struct {
	mu    sync.RWMutex
	cache map[string][]string
}

// NewUnix creates a resolver backed by os/user.
func NewUnix() *Unix {
	return &Unix{cache: make(map[string][]string)}
}

func (u *Unix) Groups(ctx context.Context, name string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	u.mu.RLock()
	cached, ok := u.cache[name]
	u.mu.RUnlock()
	if ok {
		return slices.Clone(cached), nil
	}

	account, err := user.Lookup(name)
	if err != nil {
		var unknown user.UnknownUserError
		if errors.As(err, &unknown) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup user %s: %w", name, err)
	}

	ids, err := account.GroupIds()
	if err != nil {
		return nil, fmt.Errorf("lookup groups of %s: %w", name, err)
	}

	names := make([]string, 0, len(ids))
	for _, id := range ids {
		g, err := user.LookupGroupId(id)
		if err != nil {
			continue
		}
		names = append(names, g.Name)
	}
	slices.Sort(names)

	u.mu.Lock()
	u.cache[name] = names
	u.mu.Unlock()

	return slices.Clone(names), nil
}
