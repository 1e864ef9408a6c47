package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/upb/identity-gateway/models"
	"github.com/upb/identity-gateway/repositories"
	"go.uber.org/zap"
)

// RoleRepository implements the repositories.RoleRepository interface
type RoleRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *DB, logger *zap.Logger) repositories.RoleRepository {
	return &RoleRepository{
		db:     db,
		logger: logger,
	}
}

// GetActiveRolesForUser retrieves roles effectively granted to a user.
// Both the assignment row and the role row must be active.
func (r *RoleRepository) GetActiveRolesForUser(ctx context.Context, userID uuid.UUID) ([]*models.Role, error) {
	query := `
		SELECT r.id, r.name, r.permissions, r.is_active, r.created_at
		FROM roles r
		INNER JOIN role_assignments ra ON ra.role_id = r.id
		WHERE ra.user_id = $1
		  AND ra.is_active = true
		  AND r.is_active = true
		ORDER BY r.name
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer rows.Close()

	var roles []*models.Role
	for rows.Next() {
		role := &models.Role{}
		err := rows.Scan(
			&role.ID,
			&role.Name,
			pq.Array(&role.Permissions),
			&role.IsActive,
			&role.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating role rows: %w", err)
	}

	return roles, nil
}

// GetByName retrieves a role by name
func (r *RoleRepository) GetByName(ctx context.Context, name string) (*models.Role, error) {
	query := `
		SELECT id, name, permissions, is_active, created_at
		FROM roles
		WHERE name = $1
	`

	executor := GetExecutor(ctx, r.db)
	role := &models.Role{}

	err := executor.QueryRowContext(ctx, query, name).Scan(
		&role.ID,
		&role.Name,
		pq.Array(&role.Permissions),
		&role.IsActive,
		&role.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	return role, nil
}
