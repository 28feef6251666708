package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultIssuer is the iss claim written and required when none is configured.
const DefaultIssuer = "folio"

// Claims is the token payload.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

type ctxKey struct{}

func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// ClaimsFromContext returns the claims attached by Middleware.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(*Claims)
	return c, ok && c != nil
}
