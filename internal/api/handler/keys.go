package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/analyzr/internal/api/middleware"
	"github.com/kiranshivaraju/analyzr/internal/api/response"
	"github.com/kiranshivaraju/analyzr/internal/apperror"
	"github.com/kiranshivaraju/analyzr/internal/auth"
	"github.com/kiranshivaraju/analyzr/internal/store"
	"github.com/kiranshivaraju/analyzr/pkg/models"
)

// KeyStore is the slice of the store the key administration handlers need.
type KeyStore interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, orgID string) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id, orgID string) error
}

type createKeyRequest struct {
	Name      string     `json:"name"`
	Scopes    []string   `json:"scopes"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type createdKey struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Key       string     `json:"key"`
	KeyPrefix string     `json:"key_prefix"`
	Scopes    []string   `json:"scopes"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// NewCreateKeyHandler returns an http.HandlerFunc for POST /api/v1/admin/keys.
// The raw key is only ever present in this response.
func NewCreateKeyHandler(ks KeyStore, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := mw.GetClaims(r)
		if !ok {
			response.FromError(w, apperror.Authorization("Missing caller identity", nil))
			return
		}

		var req createKeyRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			response.FromError(w, apperror.Validation("Invalid JSON body", nil))
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			response.FromError(w, apperror.Validation("name is required", nil))
			return
		}
		for _, s := range req.Scopes {
			if strings.TrimSpace(s) == "" {
				response.FromError(w, apperror.Validation("scopes must not contain empty values", nil))
				return
			}
		}
		if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now()) {
			response.FromError(w, apperror.Validation("expires_at must be in the future", nil))
			return
		}
		if req.Scopes == nil {
			req.Scopes = []string{}
		}

		gen, err := auth.GenerateKey()
		if err != nil {
			logger.Error("failed to generate api key", "error", err)
			response.FromError(w, apperror.Internal("Failed to create API key", err))
			return
		}

		now := time.Now().UTC()
		key := &models.APIKey{
			ID:        uuid.NewString(),
			OrgID:     claims.OrgID,
			Name:      req.Name,
			KeyHash:   gen.Hash,
			KeyPrefix: gen.Prefix,
			Scopes:    req.Scopes,
			ExpiresAt: req.ExpiresAt,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := ks.CreateAPIKey(r.Context(), key); err != nil {
			logger.Error("failed to store api key", "org_id", claims.OrgID, "error", err)
			response.FromError(w, apperror.Internal("Failed to create API key", err))
			return
		}
		logger.Info("api key created", "key_id", key.ID, "org_id", key.OrgID, "created_by", claims.SubjectID)

		response.Created(w, createdKey{
			ID:        key.ID,
			Name:      key.Name,
			Key:       gen.Raw,
			KeyPrefix: key.KeyPrefix,
			Scopes:    key.Scopes,
			ExpiresAt: key.ExpiresAt,
			CreatedAt: key.CreatedAt,
		})
	}
}

// NewListKeysHandler returns an http.HandlerFunc for GET /api/v1/admin/keys.
func NewListKeysHandler(ks KeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := mw.GetClaims(r)
		if !ok {
			response.FromError(w, apperror.Authorization("Missing caller identity", nil))
			return
		}

		keys, err := ks.ListAPIKeys(r.Context(), claims.OrgID)
		if err != nil {
			response.FromError(w, apperror.Internal("Failed to list API keys", err))
			return
		}
		if keys == nil {
			keys = []*models.APIKey{}
		}

		response.JSON(w, keys)
	}
}

// NewRevokeKeyHandler returns an http.HandlerFunc for DELETE /api/v1/admin/keys/{keyID}.
func NewRevokeKeyHandler(ks KeyStore, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := mw.GetClaims(r)
		if !ok {
			response.FromError(w, apperror.Authorization("Missing caller identity", nil))
			return
		}

		id := chi.URLParam(r, "keyID")
		err := ks.RevokeAPIKey(r.Context(), id, claims.OrgID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			response.FromError(w, apperror.NotFound("API key", id))
			return
		case err != nil:
			response.FromError(w, apperror.Internal("Failed to revoke API key", err))
			return
		}
		logger.Info("api key revoked", "key_id", id, "org_id", claims.OrgID, "revoked_by", claims.SubjectID)

		response.NoContent(w)
	}
}
