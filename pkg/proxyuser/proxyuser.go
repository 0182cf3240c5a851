// Package proxyuser decides whether one user may act as another (doAs).
//
// Rules are keyed by the calling (proxy) user. A rule grants impersonation
// of a target when the request originates from one of its hosts and the
// target is listed in its users or belongs to one of its groups. "*" matches
// anything in the list where it appears.
//
// Example configuration:
//
//	proxyusers:
//	  hue:
//	    hosts: ["10.0.0.0/8", "gateway.internal"]
//	    groups: ["analysts"]
//	  oozie:
//	    hosts: ["*"]
//	    users: ["alice", "bob"]
package proxyuser

import (
	"context"
	"fmt"
	"net/netip"
	"slices"
	"strings"

	"github.com/marmos91/fsgate/pkg/groups"
)

// Wildcard matches every host, group or user.
const Wildcard = "*"

// Rule is the impersonation grant for one proxy user.
type Rule struct {
	Hosts  []string `mapstructure:"hosts" yaml:"hosts" json:"hosts"`
	Groups []string `mapstructure:"groups" yaml:"groups,omitempty" json:"groups,omitempty"`
	Users  []string `mapstructure:"users" yaml:"users,omitempty" json:"users,omitempty"`
}

type compiledRule struct {
	anyHost  bool
	prefixes []netip.Prefix
	names    []string

	anyGroup bool
	groups   []string

	anyUser bool
	users   []string
}

// Policy is an immutable set of compiled rules, safe for concurrent use.
type Policy struct {
	rules    map[string]compiledRule
	resolver groups.Resolver
}

// New compiles rules. Host entries are "*", an IP, a CIDR prefix, or a host
// name compared case-insensitively with the request origin.
func New(rules map[string]Rule, resolver groups.Resolver) (*Policy, error) {
	p := &Policy{
		rules:    make(map[string]compiledRule, len(rules)),
		resolver: resolver,
	}

	for caller, rule := range rules {
		cr := compiledRule{}

		for _, h := range rule.Hosts {
			h = strings.TrimSpace(h)
			switch {
			case h == Wildcard:
				cr.anyHost = true
			case strings.Contains(h, "/"):
				prefix, err := netip.ParsePrefix(h)
				if err != nil {
					return nil, fmt.Errorf("proxy user %q: invalid host prefix %q: %w", caller, h, err)
				}
				cr.prefixes = append(cr.prefixes, prefix.Masked())
			default:
				if addr, err := netip.ParseAddr(h); err == nil {
					cr.prefixes = append(cr.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
				} else if h != "" {
					cr.names = append(cr.names, strings.ToLower(h))
				}
			}
		}

		for _, g := range rule.Groups {
			if g == Wildcard {
				cr.anyGroup = true
				continue
			}
			cr.groups = append(cr.groups, g)
		}

		for _, u := range rule.Users {
			if u == Wildcard {
				cr.anyUser = true
				continue
			}
			cr.users = append(cr.users, u)
		}

		p.rules[caller] = cr
	}

	return p, nil
}

// IsAllowed reports whether caller, connecting from host, may act as target.
//
// host is the request origin without port. Group lookups that fail count as
// a denial.
func (p *Policy) IsAllowed(ctx context.Context, caller, host, target string) bool {
	if p == nil {
		return false
	}

	rule, ok := p.rules[caller]
	if !ok {
		return false
	}

	if !rule.matchHost(host) {
		return false
	}

	if rule.anyUser || rule.anyGroup || slices.Contains(rule.users, target) {
		return true
	}

	if len(rule.groups) == 0 || p.resolver == nil {
		return false
	}

	memberOf, err := p.resolver.Groups(ctx, target)
	if err != nil {
		return false
	}
	for _, g := range memberOf {
		if slices.Contains(rule.groups, g) {
			return true
		}
	}
	return false
}

func (r compiledRule) matchHost(host string) bool {
	if r.anyHost {
		return true
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		for _, prefix := range r.prefixes {
			if prefix.Contains(addr) {
				return true
			}
		}
		return false
	}

	return slices.Contains(r.names, strings.ToLower(host))
}
