package auth

import (
	"context"

	"github.com/voicescript/collector/internal/model"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const principalContextKey contextKey = "principal"

// ContextWithPrincipal adds the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, p *model.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext retrieves the principal, or nil when unauthenticated.
func PrincipalFromContext(ctx context.Context) *model.Principal {
	p, ok := ctx.Value(principalContextKey).(*model.Principal)
	if !ok {
		return nil
	}
	return p
}

// MustPrincipalFromContext retrieves the principal.
// Panics if not present (use only behind the session middleware).
func MustPrincipalFromContext(ctx context.Context) *model.Principal {
	p := PrincipalFromContext(ctx)
	if p == nil {
		panic("principal not found - ensure session middleware is applied")
	}
	return p
}

// UserIDFromContext returns the authenticated user ID, or 0.
func UserIDFromContext(ctx context.Context) int64 {
	p := PrincipalFromContext(ctx)
	if p == nil {
		return 0
	}
	return p.UserID
}
