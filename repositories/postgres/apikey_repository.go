package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/upb/identity-gateway/models"
	"github.com/upb/identity-gateway/repositories"
	"go.uber.org/zap"
)

// APIKeyRepository implements the repositories.APIKeyRepository interface
type APIKeyRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAPIKeyRepository creates a new API key repository
func NewAPIKeyRepository(db *DB, logger *zap.Logger) repositories.APIKeyRepository {
	return &APIKeyRepository{
		db:     db,
		logger: logger,
	}
}

// GetByHash retrieves a key row by the SHA-256 hash of the raw key
func (r *APIKeyRepository) GetByHash(ctx context.Context, keyHash string) (*models.TenantAPIKey, error) {
	query := `
		SELECT id, tenant_id, key_hash, permissions, max_requests, window_ms,
		       settings, is_active, expires_at, created_at
		FROM tenant_api_keys
		WHERE key_hash = $1
	`

	executor := GetExecutor(ctx, r.db)
	key := &models.TenantAPIKey{}
	var settings sql.NullString

	err := executor.QueryRowContext(ctx, query, keyHash).Scan(
		&key.ID,
		&key.TenantID,
		&key.KeyHash,
		pq.Array(&key.Permissions),
		&key.Limits.MaxRequests,
		&key.Limits.WindowMillis,
		&settings,
		&key.IsActive,
		&key.ExpiresAt,
		&key.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}

	if settings.Valid {
		key.Settings = []byte(settings.String)
	}

	return key, nil
}
