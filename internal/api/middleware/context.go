package middleware

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/analyzr/internal/auth"
)

type contextKey string

const claimsKey contextKey = "claims"

func SetClaims(ctx context.Context, c auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

// GetClaims returns the claims stored by Authenticate.
func GetClaims(r *http.Request) (auth.Claims, bool) {
	c, ok := r.Context().Value(claimsKey).(auth.Claims)
	return c, ok
}
