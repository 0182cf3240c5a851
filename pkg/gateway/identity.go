package gateway

import (
	"context"

	"github.com/marmos91/fsgate/internal/logger"
	"github.com/marmos91/fsgate/pkg/audit"
	"github.com/marmos91/fsgate/pkg/metrics"
)

// Identity is the pair of names a request runs under.
type Identity struct {
	// Caller is the authenticated user.
	Caller string

	// Effective is the user backend calls run as: the caller, or the doAs
	// target when impersonation was granted.
	Effective string

	Impersonating bool
}

// Authorizer decides impersonation requests.
type Authorizer interface {
	IsAllowed(ctx context.Context, caller, host, target string) bool
}

// IdentityResolver computes the effective identity of a request.
type IdentityResolver struct {
	policy  Authorizer
	audit   audit.Sink
	metrics metrics.GatewayMetrics
}

// NewIdentityResolver creates a resolver. A nil policy denies every doAs.
func NewIdentityResolver(policy Authorizer, sink audit.Sink, m metrics.GatewayMetrics) *IdentityResolver {
	if sink == nil {
		sink = audit.Discard{}
	}
	if m == nil {
		m = metrics.NewNoopGatewayMetrics()
	}
	return &IdentityResolver{policy: policy, audit: sink, metrics: m}
}

// Resolve returns the identity for caller acting as doAs.
//
// An empty doAs, or one equal to caller, needs no authorization. Otherwise
// the policy is consulted exactly once; a denial yields a Forbidden error
// and a grant emits an impersonation audit record.
func (r *IdentityResolver) Resolve(ctx context.Context, requestID, caller, host, doAs string) (Identity, error) {
	if doAs == "" || doAs == caller {
		return Identity{Caller: caller, Effective: caller}, nil
	}

	allowed := r.policy != nil && r.policy.IsAllowed(ctx, caller, host, doAs)
	r.metrics.RecordImpersonation(allowed)

	if !allowed {
		logger.WarnCtx(ctx, "Impersonation denied: %s cannot act as %s from %s", caller, doAs, host)
		return Identity{}, forbidden("user %s is not allowed to impersonate %s", caller, doAs)
	}

	r.audit.Impersonation(ctx, requestID, caller, host, doAs)
	return Identity{Caller: caller, Effective: doAs, Impersonating: true}, nil
}
