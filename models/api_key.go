package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// APIKeyLimits holds the per-tenant rate limit attached to a key.
type APIKeyLimits struct {
	MaxRequests  int   `json:"max_requests"`
	WindowMillis int64 `json:"window_ms"`
}

// Window returns the limit window as a duration.
func (l APIKeyLimits) Window() time.Duration {
	return time.Duration(l.WindowMillis) * time.Millisecond
}

// TenantAPIKey represents an opaque key granting a tenant scoped access.
// Only the SHA-256 hash of the key material is stored.
type TenantAPIKey struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	TenantID    uuid.UUID       `json:"tenant_id" db:"tenant_id"`
	KeyHash     string          `json:"-" db:"key_hash"`
	Permissions []string        `json:"permissions" db:"permissions"`
	Limits      APIKeyLimits    `json:"limits" db:"limits"`
	Settings    json.RawMessage `json:"settings,omitempty" db:"settings"`
	IsActive    bool            `json:"is_active" db:"is_active"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the TenantAPIKey model
func (TenantAPIKey) TableName() string {
	return "tenant_api_keys"
}

// IsExpired reports whether the key has an expiry in the past.
func (k *TenantAPIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}
