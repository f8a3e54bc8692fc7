package mutation

import (
	"context"
	"strings"
)

// AnonymousName is reported for callers without an authenticated identity.
const AnonymousName = "Anonymous"

// Principal is the caller identity used for audit stamping and access checks.
type Principal struct {
	Name          string
	Authenticated bool
	Claims        map[string]any
}

// DisplayName returns the principal name or fallback when unauthenticated.
func (p Principal) DisplayName(fallback string) string {
	if !p.Authenticated || strings.TrimSpace(p.Name) == "" {
		if fallback == "" {
			return AnonymousName
		}
		return fallback
	}
	return p.Name
}

type principalKey struct{}

// ContextWithPrincipal attaches the caller identity to a request context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext reads the caller identity from a request context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// PrincipalProvider resolves the current caller for a request.
type PrincipalProvider interface {
	Principal(ctx context.Context) (Principal, bool)
}

// PrincipalProviderFunc adapts a function to PrincipalProvider.
type PrincipalProviderFunc func(ctx context.Context) (Principal, bool)

func (f PrincipalProviderFunc) Principal(ctx context.Context) (Principal, bool) {
	return f(ctx)
}

// ContextPrincipalProvider reads the principal attached with ContextWithPrincipal.
type ContextPrincipalProvider struct{}

func (ContextPrincipalProvider) Principal(ctx context.Context) (Principal, bool) {
	return PrincipalFromContext(ctx)
}
