package gateway

import (
	"time"

	"github.com/google/uuid"
	"github.com/upb/identity-gateway/models"
)

// State identifies where a pipeline execution currently is, or where it
// terminated. Rejected results carry the state at which the failure
// occurred.
type State string

const (
	StateUnauthenticated      State = "UNAUTHENTICATED"
	StateTokenPresent         State = "TOKEN_PRESENT"
	StateTokenVerified        State = "TOKEN_VERIFIED"
	StateIdentityResolved     State = "IDENTITY_RESOLVED"
	StateEntitlementsResolved State = "ENTITLEMENTS_RESOLVED"
	StateKeyValidated         State = "KEY_VALIDATED"
	StateRateLimitChecked     State = "RATE_LIMIT_CHECKED"
	StateAuthorized           State = "AUTHORIZED"
	StateRejected             State = "REJECTED"
)

// AuthMethod records how the request authenticated.
type AuthMethod string

const (
	MethodToken     AuthMethod = "token"
	MethodAPIKey    AuthMethod = "api_key"
	MethodAnonymous AuthMethod = "anonymous"
)

// AuthContext is attached to a request on AUTHORIZED. Tenant fields are
// set only on the API-key path; identity fields only on the token path.
type AuthContext struct {
	UserID            uuid.UUID
	Email             string
	Name              string
	Roles             []string
	Permissions       []string
	Tier              models.SubscriptionTier
	TenantID          *uuid.UUID
	TenantPermissions []string
	Method            AuthMethod
}

// Anonymous reports whether the request carries no identity.
func (a *AuthContext) Anonymous() bool {
	return a.Method == MethodAnonymous
}

// Rejection is the terminal failure of a pipeline execution: a stable code
// and HTTP status from the enumerated set, plus retry guidance for rate
// limits.
type Rejection struct {
	Code       string
	Status     int
	Message    string
	RetryAfter time.Duration
	FailedAt   State
}

// Result is the tagged outcome of one pipeline execution: exactly one of
// Auth or Rejection is set.
type Result struct {
	State     State
	Auth      *AuthContext
	Rejection *Rejection
}

// Authorized reports whether the execution terminated in AUTHORIZED.
func (r Result) Authorized() bool {
	return r.State == StateAuthorized && r.Auth != nil
}

func authorized(auth *AuthContext) Result {
	return Result{State: StateAuthorized, Auth: auth}
}

func rejected(rej Rejection) Result {
	return Result{State: StateRejected, Rejection: &rej}
}

// Requirement parametrizes a pipeline run with the route's policy. The
// zero value requires a verified authenticated identity and nothing more.
type Requirement struct {
	// Optional routes any failure after a token was presented to an
	// anonymous authorization instead of a rejection, and lets requests
	// without credentials through as anonymous.
	Optional bool

	// AdminOnly requires the admin role.
	AdminOnly bool

	// AnyRole passes when the resolved roles intersect the set. Empty
	// means no role requirement.
	AnyRole []string

	// MinTier is the lowest subscription tier admitted. Empty means no
	// tier requirement.
	MinTier models.SubscriptionTier
}
