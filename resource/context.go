package resource

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-resource-auth/token"
)

// DecodedAuth is what a successful validation attaches to the request context.
type DecodedAuth struct {
	// Token is the raw bearer token.
	Token   string
	Decoded *token.AccessTokenClaims
	UserID  string
	Scopes  Scopes
}

// String keeps the raw token out of logs.
func (a *DecodedAuth) String() string {
	if a == nil {
		return "<nil>"
	}
	return fmt.Sprintf("DecodedAuth{UserID: %q, Scopes: %q, Token: REDACTED}", a.UserID, a.Scopes.String())
}

type decodedAuthContextKey struct{}

// WithDecodedAuth returns a copy of ctx carrying auth.
func WithDecodedAuth(ctx context.Context, auth *DecodedAuth) context.Context {
	if auth == nil {
		return ctx
	}
	return context.WithValue(ctx, decodedAuthContextKey{}, auth)
}

// DecodedAuthFromContext returns the auth attached by the validator.
func DecodedAuthFromContext(ctx context.Context) (*DecodedAuth, bool) {
	auth, ok := ctx.Value(decodedAuthContextKey{}).(*DecodedAuth)
	return auth, ok
}
