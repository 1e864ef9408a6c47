package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of a failure. The split matters to
// callers: client errors mean "re-authenticate", authorization errors mean
// "upgrade or request access", operational errors are the gateway's problem,
// and rate-limit errors carry retry guidance.
type ErrorType string

const (
	ErrorTypeClient        ErrorType = "client"
	ErrorTypeAuthorization ErrorType = "authorization"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeRateLimit     ErrorType = "rate_limit"
	ErrorTypeOperational   ErrorType = "operational"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Message == t.Message
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// Domain error variables

var (
	// Client errors: bad or missing credentials. Terminal, never retried.
	ErrMissingAuthHeader = NewDomainError(ErrorTypeClient, "missing authorization header", nil)
	ErrMissingToken      = NewDomainError(ErrorTypeClient, "missing bearer token", nil)
	ErrInvalidToken      = NewDomainError(ErrorTypeClient, "invalid or expired token", nil)
	ErrAPIKeyRequired    = NewDomainError(ErrorTypeClient, "api key required", nil)
	ErrInvalidAPIKey     = NewDomainError(ErrorTypeClient, "invalid api key", nil)

	// Authorization errors: valid identity, insufficient entitlement.
	ErrEmailNotVerified    = NewDomainError(ErrorTypeAuthorization, "email not verified", nil)
	ErrAccountSuspended    = NewDomainError(ErrorTypeAuthorization, "account suspended", nil)
	ErrAccountInactive     = NewDomainError(ErrorTypeAuthorization, "account inactive", nil)
	ErrAdminAccessRequired = NewDomainError(ErrorTypeAuthorization, "admin access required", nil)
	ErrInsufficientRole    = NewDomainError(ErrorTypeAuthorization, "insufficient permissions", nil)
	ErrUpgradeRequired     = NewDomainError(ErrorTypeAuthorization, "subscription upgrade required", nil)

	// Not found
	ErrUserNotFound = NewDomainError(ErrorTypeNotFound, "user not found", nil)

	// Rate limiting
	ErrRateLimitExceeded = NewDomainError(ErrorTypeRateLimit, "rate limit exceeded", nil)

	// Operational errors: a collaborator failed. Surfaced generically,
	// logged with full detail, never retried internally.
	ErrAuthServiceUnavailable = NewDomainError(ErrorTypeOperational, "auth service error", nil)
)

// IsClientError checks if an error is a client credential error
func IsClientError(err error) bool {
	return errorTypeOf(err) == ErrorTypeClient
}

// IsAuthorizationError checks if an error is an authorization error
func IsAuthorizationError(err error) bool {
	return errorTypeOf(err) == ErrorTypeAuthorization
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return errorTypeOf(err) == ErrorTypeNotFound
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	return errorTypeOf(err) == ErrorTypeRateLimit
}

// IsOperationalError checks if an error is an operational error
func IsOperationalError(err error) bool {
	return errorTypeOf(err) == ErrorTypeOperational
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	return errorTypeOf(err)
}

func errorTypeOf(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// WrapOperational wraps an error as an operational error
func WrapOperational(message string, err error) error {
	return NewDomainError(ErrorTypeOperational, message, err)
}
