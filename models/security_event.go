package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SecurityEventType identifies the kind of security-relevant occurrence.
type SecurityEventType string

const (
	EventInvalidToken              SecurityEventType = "INVALID_TOKEN"
	EventAccountSuspended          SecurityEventType = "SUSPENDED_ACCOUNT_ACCESS_ATTEMPT"
	EventEmailNotVerified          SecurityEventType = "UNVERIFIED_EMAIL_ACCESS_ATTEMPT"
	EventUnauthorizedAdminAccess   SecurityEventType = "UNAUTHORIZED_ADMIN_ACCESS_ATTEMPT"
	EventInsufficientPermissions   SecurityEventType = "INSUFFICIENT_PERMISSIONS"
	EventRateLimitExceeded         SecurityEventType = "RATE_LIMIT_EXCEEDED"
	EventInvalidAPIKey             SecurityEventType = "INVALID_API_KEY"
	EventAccountDeleted            SecurityEventType = "ACCOUNT_DELETED"
	EventAccountDeletionIncomplete SecurityEventType = "ACCOUNT_DELETION_INCOMPLETE"
)

// SecurityEvent is an append-only audit record. Rows are never mutated.
type SecurityEvent struct {
	ID        uuid.UUID         `json:"id" db:"id"`
	EventType SecurityEventType `json:"event_type" db:"event_type"`
	UserID    *uuid.UUID        `json:"user_id,omitempty" db:"user_id"`
	TenantID  *uuid.UUID        `json:"tenant_id,omitempty" db:"tenant_id"`
	IPAddress string            `json:"ip_address" db:"ip_address"`
	UserAgent string            `json:"user_agent" db:"user_agent"`
	Details   json.RawMessage   `json:"details,omitempty" db:"details"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the SecurityEvent model
func (SecurityEvent) TableName() string {
	return "security_events"
}

// NewSecurityEvent creates a new SecurityEvent instance
func NewSecurityEvent(eventType SecurityEventType) *SecurityEvent {
	return &SecurityEvent{
		ID:        uuid.New(),
		EventType: eventType,
		CreatedAt: time.Now(),
	}
}

// WithUser sets the user ID
func (e *SecurityEvent) WithUser(userID uuid.UUID) *SecurityEvent {
	e.UserID = &userID
	return e
}

// WithTenant sets the tenant ID
func (e *SecurityEvent) WithTenant(tenantID uuid.UUID) *SecurityEvent {
	e.TenantID = &tenantID
	return e
}

// WithRequest sets request metadata
func (e *SecurityEvent) WithRequest(ipAddress, userAgent string) *SecurityEvent {
	e.IPAddress = ipAddress
	e.UserAgent = userAgent
	return e
}

// WithDetails sets the details payload
func (e *SecurityEvent) WithDetails(details interface{}) *SecurityEvent {
	if data, err := json.Marshal(details); err == nil {
		e.Details = data
	}
	return e
}
