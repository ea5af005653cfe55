package models

import (
	"time"
)

// APIKey represents an authentication key for API and realtime access.
// Raw keys are shown once at creation; only the bcrypt hash is stored.
type APIKey struct {
	ID         string     `db:"id"           json:"id"`
	OrgID      string     `db:"org_id"       json:"org_id"`
	Name       string     `db:"name"         json:"name"`
	KeyHash    string     `db:"key_hash"     json:"-"`
	KeyPrefix  string     `db:"key_prefix"   json:"key_prefix"`
	Scopes     []string   `db:"scopes"       json:"scopes"`
	ExpiresAt  *time.Time `db:"expires_at"   json:"expires_at,omitempty"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	DeletedAt  *time.Time `db:"deleted_at"   json:"-"`
	CreatedAt  time.Time  `db:"created_at"   json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"   json:"updated_at"`
}
