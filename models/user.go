package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents the local identity record for an externally authenticated
// subject. A row is created lazily the first time a verified token for an
// unknown subject is seen.
type User struct {
	ID           uuid.UUID        `json:"id" db:"id"`
	SubjectID    *string          `json:"subject_id,omitempty" db:"subject_id"` // provider subject; immutable once set
	Email        string           `json:"email" db:"email"`
	Name         string           `json:"name" db:"name"`
	IsVerified   bool             `json:"is_verified" db:"is_verified"`
	IsActive     bool             `json:"is_active" db:"is_active"`
	IsSuspended  bool             `json:"is_suspended" db:"is_suspended"`
	Tier         SubscriptionTier `json:"subscription_tier" db:"subscription_tier"`
	Credits      int64            `json:"credits" db:"credits"`
	LastActivity time.Time        `json:"last_activity" db:"last_activity"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// NewUser creates a new User instance for a first-sight subject.
// New identities always start on the free tier.
func NewUser(email, name, subjectID string, verified bool) *User {
	now := time.Now()
	u := &User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		IsVerified:   verified,
		IsActive:     true,
		Tier:         TierFree,
		LastActivity: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if subjectID != "" {
		u.SubjectID = &subjectID
	}
	return u
}

// HasSubject reports whether the row has been linked to a provider subject.
func (u *User) HasSubject() bool {
	return u.SubjectID != nil && *u.SubjectID != ""
}

// CanAuthenticate reports whether the account is in a state that allows
// authenticated access at all.
func (u *User) CanAuthenticate() bool {
	return u.IsActive && !u.IsSuspended
}
