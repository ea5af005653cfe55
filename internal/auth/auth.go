// Package auth turns bearer credentials into caller claims.
package auth

import (
	"context"
	"errors"
	"slices"
	"time"
)

const RoleAdmin = "admin"

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims identify the caller of a request.
type Claims struct {
	SubjectID string
	OrgID     string
	Roles     []string
	ExpiresAt *time.Time
}

func (c Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// Validator verifies a bearer token and returns the caller's claims.
// Credential failures wrap ErrMissingToken, ErrInvalidToken or ErrExpiredToken;
// any other error is an infrastructure failure.
type Validator interface {
	Validate(ctx context.Context, token string) (Claims, error)
}

// IsCredentialError reports whether err means the caller presented bad credentials.
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrMissingToken) || errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrExpiredToken)
}
