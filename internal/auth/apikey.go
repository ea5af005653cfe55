package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/analyzr/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	// KeyPrefixLen is how many leading characters of a raw key are stored in clear for lookup.
	KeyPrefixLen = 8
	keyScheme    = "az_"
	keyEntropy   = 24
)

// KeyStore is the slice of the API key store the validator needs.
type KeyStore interface {
	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id string) error
}

// APIKeyValidator validates bcrypt-hashed API keys.
type APIKeyValidator struct {
	store  KeyStore
	logger *slog.Logger
	now    func() time.Time
}

func NewAPIKeyValidator(store KeyStore, logger *slog.Logger) *APIKeyValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIKeyValidator{store: store, logger: logger, now: time.Now}
}

func (v *APIKeyValidator) Validate(ctx context.Context, token string) (Claims, error) {
	if token == "" {
		return Claims{}, ErrMissingToken
	}
	if len(token) < KeyPrefixLen {
		return Claims{}, fmt.Errorf("%w: malformed api key", ErrInvalidToken)
	}

	keys, err := v.store.GetAPIKeyByPrefix(ctx, token[:KeyPrefixLen])
	if err != nil {
		return Claims{}, fmt.Errorf("lookup api key: %w", err)
	}

	for _, key := range keys {
		if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(token)) != nil {
			continue
		}
		if key.ExpiresAt != nil && !v.now().Before(*key.ExpiresAt) {
			return Claims{}, ErrExpiredToken
		}

		go v.touch(key.ID)

		return Claims{
			SubjectID: key.ID,
			OrgID:     key.OrgID,
			Roles:     key.Scopes,
			ExpiresAt: key.ExpiresAt,
		}, nil
	}

	return Claims{}, ErrInvalidToken
}

func (v *APIKeyValidator) touch(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := v.store.UpdateAPIKeyLastUsed(ctx, id); err != nil {
		v.logger.Warn("failed to update api key last used", "key_id", id, "error", err)
	}
}

// GeneratedKey is a freshly minted API key. Raw is shown to the caller once.
type GeneratedKey struct {
	Raw    string
	Prefix string
	Hash   string
}

// GenerateKey mints a random API key and its bcrypt hash.
func GenerateKey() (GeneratedKey, error) {
	buf := make([]byte, keyEntropy)
	if _, err := rand.Read(buf); err != nil {
		return GeneratedKey{}, fmt.Errorf("read random bytes: %w", err)
	}
	raw := keyScheme + hex.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return GeneratedKey{}, fmt.Errorf("hash api key: %w", err)
	}

	return GeneratedKey{Raw: raw, Prefix: raw[:KeyPrefixLen], Hash: string(hash)}, nil
}

var _ Validator = (*APIKeyValidator)(nil)
