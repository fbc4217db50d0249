package auth

import "context"

type identityContextKey struct{}
type credentialValidContextKey struct{}

// ContextWithIdentity attaches the resolved identity to the context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, &id)
}

// IdentityFromContext extracts the resolved identity. The zero Identity
// (None) is returned when resolution never ran.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	v, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || v == nil {
		return Identity{}, false
	}
	return *v, true
}

// ContextWithCredentialValid records whether the inbound credential passed
// signature and expiry checks. Consumed by the validity-check endpoint,
// which must answer without consulting live account state.
func ContextWithCredentialValid(ctx context.Context, valid bool) context.Context {
	return context.WithValue(ctx, credentialValidContextKey{}, valid)
}

// CredentialValidFromContext reports the recorded verification verdict.
func CredentialValidFromContext(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(credentialValidContextKey{}).(bool)
	return v
}
