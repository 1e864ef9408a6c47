package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/upb/identity-gateway/models"
	"github.com/upb/identity-gateway/repositories"
	"github.com/upb/identity-gateway/services"
	"go.uber.org/zap"
)

// Validation is the outcome of a successful key check: the tenant the key
// belongs to and the limits and grants attached to it.
type Validation struct {
	KeyID       uuid.UUID
	TenantID    uuid.UUID
	Permissions []string
	Limits      models.APIKeyLimits
	Settings    json.RawMessage
}

// Service validates tenant API keys. Raw keys are never stored; the store
// holds the SHA-256 hex digest and lookups go through the digest.
type Service struct {
	keys   repositories.APIKeyRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new API key validator.
func NewService(keys repositories.APIKeyRepository, logger *zap.Logger) *Service {
	return &Service{
		keys:   keys,
		logger: logger,
		now:    time.Now,
	}
}

// HashKey returns the hex SHA-256 digest of a raw key. Exposed so key
// provisioning stores the same shape the validator looks up.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Validate checks a raw API key. An empty key, an unknown key, an inactive
// key and an expired key all fail; unknown and known-but-unusable are
// indistinguishable to the caller so a probe learns nothing about which
// keys exist.
func (s *Service) Validate(ctx context.Context, rawKey string) (*Validation, error) {
	if rawKey == "" {
		return nil, services.ErrAPIKeyRequired
	}

	digest := HashKey(rawKey)
	key, err := s.keys.GetByHash(ctx, digest)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrInvalidAPIKey
		}
		return nil, services.WrapOperational("api key lookup failed", err)
	}

	// The lookup already matched on the digest; the explicit constant-time
	// recheck keeps the final accept independent of string-compare timing.
	if subtle.ConstantTimeCompare([]byte(digest), []byte(key.KeyHash)) != 1 {
		return nil, services.ErrInvalidAPIKey
	}

	if !key.IsActive {
		s.logger.Warn("inactive api key presented", zap.String("tenant_id", key.TenantID.String()))
		return nil, services.ErrInvalidAPIKey
	}
	if key.IsExpired(s.now()) {
		s.logger.Warn("expired api key presented", zap.String("tenant_id", key.TenantID.String()))
		return nil, services.ErrInvalidAPIKey
	}

	return &Validation{
		KeyID:       key.ID,
		TenantID:    key.TenantID,
		Permissions: key.Permissions,
		Limits:      key.Limits,
		Settings:    key.Settings,
	}, nil
}
