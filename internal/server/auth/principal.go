package auth

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/server/roles"
)

// Principal is the identity established for one request from a validated
// access token. It is never persisted.
type Principal struct {
	UserID string
	Email  string
	Role   roles.Role
}

func (p Principal) Can(perm roles.Permission) bool {
	return p.Role.Can(perm)
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal attached by WithPrincipal.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
