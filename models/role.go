package models

import (
	"time"

	"github.com/google/uuid"
)

// Well-known role names.
const (
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
	RoleMember    = "member"
)

// Role represents a named permission set.
type Role struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Permissions []string  `json:"permissions" db:"permissions"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the Role model
func (Role) TableName() string {
	return "roles"
}

// RoleAssignment joins a user to a role. A role only contributes to
// effective permissions when both the assignment and the role are active.
type RoleAssignment struct {
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	RoleID    uuid.UUID `json:"role_id" db:"role_id"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the RoleAssignment model
func (RoleAssignment) TableName() string {
	return "role_assignments"
}
