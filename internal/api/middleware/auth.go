package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/analyzr/internal/api/response"
	"github.com/kiranshivaraju/analyzr/internal/apperror"
	"github.com/kiranshivaraju/analyzr/internal/auth"
)

// Auth provides authentication and role-checking middleware.
type Auth struct {
	validator auth.Validator
	logger    *slog.Logger
}

// NewAuth creates a new Auth middleware.
func NewAuth(v auth.Validator, logger *slog.Logger) *Auth {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auth{validator: v, logger: logger}
}

// Authenticate validates the Bearer token and stores the caller's claims in the
// request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			response.FromError(w, apperror.Authorization("Missing or invalid Authorization header", nil))
			return
		}

		claims, err := a.validator.Validate(r.Context(), token)
		switch {
		case errors.Is(err, auth.ErrExpiredToken):
			response.FromError(w, apperror.Authorization("API key expired", err))
			return
		case auth.IsCredentialError(err):
			response.FromError(w, apperror.Authorization("Invalid API key", err))
			return
		case err != nil:
			a.logger.Error("api key validation failed", "error", err)
			response.FromError(w, apperror.Internal("Failed to validate API key", err))
			return
		}

		next.ServeHTTP(w, r.WithContext(SetClaims(r.Context(), claims)))
	})
}

// RequireRole returns middleware that checks whether the authenticated caller
// holds role.
func (a *Auth) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetClaims(r)
			if ok && claims.HasRole(role) {
				next.ServeHTTP(w, r)
				return
			}
			response.Error(w, http.StatusForbidden,
				"FORBIDDEN", "Insufficient permissions", nil)
		})
	}
}

func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
