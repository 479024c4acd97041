package domain

import "context"

// Identity is a verified caller. It is request-scoped and never taken from tool arguments.
type Identity struct {
	ID     string   `json:"id"`
	Role   Role     `json:"role"`
	Scopes []string `json:"scopes,omitempty"`
}

// HasScope reports whether the identity carries the given scope.
func (i Identity) HasScope(scope string) bool {
	for _, s := range i.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying the identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity stored by WithIdentity.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
