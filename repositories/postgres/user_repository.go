package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/identity-gateway/models"
	"github.com/upb/identity-gateway/repositories"
	"go.uber.org/zap"
)

const userColumns = `id, subject_id, email, name, is_verified, is_active, is_suspended,
		subscription_tier, credits, last_activity, created_at, updated_at`

// UserRepository implements the repositories.UserRepository interface
type UserRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB, logger *zap.Logger) repositories.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new identity row
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		user.ID,
		user.SubjectID,
		user.Email,
		user.Name,
		user.IsVerified,
		user.IsActive,
		user.IsSuspended,
		user.Tier,
		user.Credits,
		user.LastActivity,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %v", repositories.ErrDuplicateIdentity, err)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	r.logger.Debug("user created", zap.String("id", user.ID.String()), zap.String("email", user.Email))
	return nil
}

// GetByID retrieves a user by local ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetBySubject retrieves a user by provider subject ID
func (r *UserRepository) GetBySubject(ctx context.Context, subjectID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE subject_id = $1`
	return r.getOne(ctx, query, subjectID)
}

// GetByEmail retrieves a user by email, matched case-insensitively
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return r.getOne(ctx, query, email)
}

// LinkSubject backfills the subject ID onto a row without one. The WHERE
// clause guards immutability: a row already linked to a different subject is
// left untouched.
func (r *UserRepository) LinkSubject(ctx context.Context, id uuid.UUID, subjectID string) error {
	query := `
		UPDATE users
		SET subject_id = $2,
		    updated_at = $3
		WHERE id = $1 AND (subject_id IS NULL OR subject_id = $2)
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id, subjectID, time.Now())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %v", repositories.ErrDuplicateIdentity, err)
		}
		return fmt.Errorf("failed to link subject: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return repositories.ErrSubjectConflict
	}

	r.logger.Debug("subject linked", zap.String("id", id.String()))
	return nil
}

// TouchActivity updates last_activity
func (r *UserRepository) TouchActivity(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE users SET last_activity = $2 WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("failed to touch activity: %w", err)
	}
	return nil
}

// SetVerified marks the identity's email as verified
func (r *UserRepository) SetVerified(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE users SET is_verified = true, updated_at = $2 WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set verified: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

// Delete removes the identity row
func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM users WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return repositories.ErrNotFound
	}

	r.logger.Debug("user deleted", zap.String("id", id.String()))
	return nil
}

// List retrieves users ordered by creation time, newest first
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}

	return users, nil
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	executor := GetExecutor(ctx, r.db)
	user := &models.User{}

	err := executor.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.SubjectID,
		&user.Email,
		&user.Name,
		&user.IsVerified,
		&user.IsActive,
		&user.IsSuspended,
		&user.Tier,
		&user.Credits,
		&user.LastActivity,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

func scanUser(rows *sql.Rows) (*models.User, error) {
	user := &models.User{}
	err := rows.Scan(
		&user.ID,
		&user.SubjectID,
		&user.Email,
		&user.Name,
		&user.IsVerified,
		&user.IsActive,
		&user.IsSuspended,
		&user.Tier,
		&user.Credits,
		&user.LastActivity,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}
