package realmgate

import (
	"context"

	"github.com/realmgate/realmgate/identity"
)

type contextKey struct{}

// identityKey keys the authenticated identity in a request context.
var identityKey = contextKey{}

// SetIdentity returns a child context carrying id.
func SetIdentity(ctx context.Context, id *identity.Context) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the authenticated identity stored in ctx, or nil when
// the request was not authenticated through the gateway.
func IdentityFrom(ctx context.Context) *identity.Context {
	id, _ := ctx.Value(identityKey).(*identity.Context)
	return id
}

// HasIdentity reports whether ctx carries an authenticated identity.
func HasIdentity(ctx context.Context) bool {
	return IdentityFrom(ctx) != nil
}
