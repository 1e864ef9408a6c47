package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/identity-gateway/models"
	"github.com/upb/identity-gateway/repositories"
	"go.uber.org/zap"
)

const securityEventColumns = `id, event_type, user_id, tenant_id, ip_address, user_agent, details, created_at`

// SecurityEventRepository implements the repositories.SecurityEventRepository
// interface. The table is append-only; there are no update methods.
type SecurityEventRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewSecurityEventRepository creates a new security event repository
func NewSecurityEventRepository(db *DB, logger *zap.Logger) repositories.SecurityEventRepository {
	return &SecurityEventRepository{
		db:     db,
		logger: logger,
	}
}

// Insert appends a new security event
func (r *SecurityEventRepository) Insert(ctx context.Context, event *models.SecurityEvent) error {
	query := `
		INSERT INTO security_events (` + securityEventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	executor := GetExecutor(ctx, r.db)
	var details interface{}
	if len(event.Details) > 0 {
		details = []byte(event.Details)
	}

	_, err := executor.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.UserID,
		event.TenantID,
		event.IPAddress,
		event.UserAgent,
		details,
		event.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to insert security event: %w", err)
	}

	return nil
}

// GetByUserID retrieves events for a user with pagination
func (r *SecurityEventRepository) GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.SecurityEvent, error) {
	query := `
		SELECT ` + securityEventColumns + `
		FROM security_events
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	return r.query(ctx, query, userID, limit, offset)
}

// GetByType retrieves events of a given type within a time range
func (r *SecurityEventRepository) GetByType(ctx context.Context, eventType models.SecurityEventType, since time.Time, limit, offset int) ([]*models.SecurityEvent, error) {
	query := `
		SELECT ` + securityEventColumns + `
		FROM security_events
		WHERE event_type = $1 AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	return r.query(ctx, query, eventType, since, limit, offset)
}

func (r *SecurityEventRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.SecurityEvent, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}
	defer rows.Close()

	var events []*models.SecurityEvent
	for rows.Next() {
		event := &models.SecurityEvent{}
		var details []byte
		err := rows.Scan(
			&event.ID,
			&event.EventType,
			&event.UserID,
			&event.TenantID,
			&event.IPAddress,
			&event.UserAgent,
			&details,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		if len(details) > 0 {
			event.Details = details
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating security event rows: %w", err)
	}

	return events, nil
}
