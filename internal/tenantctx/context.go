// Package tenantctx carries the authenticated tenant/user scope through the
// request call path. The scope is immutable once attached; every component
// that touches tenant-scoped data (RLS callbacks, audit recorder, permission
// loader) reads it from the context rather than from ambient session state.
// The database-level session variable set from this scope is a second,
// defense-in-depth enforcement layer, not the source of truth.
package tenantctx

import "context"

// Scope identifies the tenant and user bound to the current request.
type Scope struct {
	TenantID   uint
	TenantSlug string
	UserID     uint
	Email      string
	Roles      []string // role names from the credential; rules are loaded per request
}

type contextKey struct{}

// WithScope attaches the scope to the context.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext retrieves the scope from the context. The second return is
// false when no tenant has been bound, which callers must treat as the
// setup-required state rather than querying unscoped.
func FromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(contextKey{}).(Scope)
	if !ok || s.TenantID == 0 {
		return Scope{}, false
	}
	return s, true
}
