package auth

import "context"

type identityKey struct{}

// WithIdentity attaches the caller to ctx.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFrom returns the caller attached by the middleware. Requests that
// skipped authentication have none.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok
}

// CanReadCard reports whether the caller on ctx may see cardID. Requests
// without an identity are not card scoped.
func CanReadCard(ctx context.Context, cardID string) bool {
	identity, ok := IdentityFrom(ctx)
	return !ok || identity.CanRead(cardID)
}
