package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/upb/identity-gateway/models"
)

// TransactionManager runs multi-statement work atomically
type TransactionManager interface {
	// InTransaction executes fn within a transaction. The context passed to
	// fn carries the transaction; repository calls made with it execute on
	// the transaction. Commits when fn returns nil, rolls back otherwise.
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// UserRepository handles local identity rows
type UserRepository interface {
	// Create inserts a new identity row. Returns ErrDuplicateIdentity when
	// the subject or email unique constraint is violated.
	Create(ctx context.Context, user *models.User) error

	// GetByID retrieves a user by local ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetBySubject retrieves a user by provider subject ID
	GetBySubject(ctx context.Context, subjectID string) (*models.User, error)

	// GetByEmail retrieves a user by email, matched case-insensitively
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// LinkSubject backfills the subject ID onto a row that predates the
	// current provider. Fails when the row already carries a different
	// subject.
	LinkSubject(ctx context.Context, id uuid.UUID, subjectID string) error

	// TouchActivity updates last_activity to now
	TouchActivity(ctx context.Context, id uuid.UUID, at time.Time) error

	// SetVerified marks the identity's email as verified
	SetVerified(ctx context.Context, id uuid.UUID) error

	// Delete removes the identity row
	Delete(ctx context.Context, id uuid.UUID) error

	// List retrieves users ordered by creation time, newest first
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
}

// RoleRepository handles role and assignment data
type RoleRepository interface {
	// GetActiveRolesForUser retrieves the roles effectively granted to a
	// user: assignment and role must both be active.
	GetActiveRolesForUser(ctx context.Context, userID uuid.UUID) ([]*models.Role, error)

	// GetByName retrieves a role by name
	GetByName(ctx context.Context, name string) (*models.Role, error)
}

// APIKeyRepository handles tenant API keys
type APIKeyRepository interface {
	// GetByHash retrieves a key row by the SHA-256 hash of the raw key
	GetByHash(ctx context.Context, keyHash string) (*models.TenantAPIKey, error)
}

// SecurityEventRepository handles the append-only security audit trail
type SecurityEventRepository interface {
	// Insert appends a new security event. Events are never updated.
	Insert(ctx context.Context, event *models.SecurityEvent) error

	// GetByUserID retrieves events for a user with pagination
	GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.SecurityEvent, error)

	// GetByType retrieves events of a given type within a time range
	GetByType(ctx context.Context, eventType models.SecurityEventType, since time.Time, limit, offset int) ([]*models.SecurityEvent, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Users          UserRepository
	Roles          RoleRepository
	APIKeys        APIKeyRepository
	SecurityEvents SecurityEventRepository
}
