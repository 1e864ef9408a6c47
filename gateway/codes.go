package gateway

import (
	"errors"
	"net/http"

	"github.com/upb/identity-gateway/services"
)

// Stable error codes of the rejection envelope.
const (
	CodeMissingAuthHeader      = "MISSING_AUTH_HEADER"
	CodeMissingToken           = "MISSING_TOKEN"
	CodeInvalidToken           = "INVALID_TOKEN"
	CodeUserNotFound           = "USER_NOT_FOUND"
	CodeEmailNotVerified       = "EMAIL_NOT_VERIFIED"
	CodeAdminAccessRequired    = "ADMIN_ACCESS_REQUIRED"
	CodeInsufficientPermission = "INSUFFICIENT_PERMISSIONS"
	CodeUpgradeRequired        = "SUBSCRIPTION_UPGRADE_REQUIRED"
	CodeRateLimitExceeded      = "RATE_LIMIT_EXCEEDED"
	CodeAPIKeyRequired         = "API_KEY_REQUIRED"
	CodeInvalidAPIKey          = "INVALID_API_KEY"
	CodeAuthServiceError       = "AUTH_SERVICE_ERROR"
)

type codeMapping struct {
	code   string
	status int
}

// Sentinel-to-envelope mapping. Suspended and inactive accounts share the
// insufficient-permissions envelope: the credential is valid, the account
// state is the problem, and the caller learns no more than "access denied".
var sentinelCodes = []struct {
	err     *services.DomainError
	mapping codeMapping
}{
	{services.ErrMissingAuthHeader, codeMapping{CodeMissingAuthHeader, http.StatusUnauthorized}},
	{services.ErrMissingToken, codeMapping{CodeMissingToken, http.StatusUnauthorized}},
	{services.ErrInvalidToken, codeMapping{CodeInvalidToken, http.StatusUnauthorized}},
	{services.ErrUserNotFound, codeMapping{CodeUserNotFound, http.StatusNotFound}},
	{services.ErrEmailNotVerified, codeMapping{CodeEmailNotVerified, http.StatusForbidden}},
	{services.ErrAccountSuspended, codeMapping{CodeInsufficientPermission, http.StatusForbidden}},
	{services.ErrAccountInactive, codeMapping{CodeInsufficientPermission, http.StatusForbidden}},
	{services.ErrAdminAccessRequired, codeMapping{CodeAdminAccessRequired, http.StatusForbidden}},
	{services.ErrInsufficientRole, codeMapping{CodeInsufficientPermission, http.StatusForbidden}},
	{services.ErrUpgradeRequired, codeMapping{CodeUpgradeRequired, http.StatusPaymentRequired}},
	{services.ErrRateLimitExceeded, codeMapping{CodeRateLimitExceeded, http.StatusTooManyRequests}},
	{services.ErrAPIKeyRequired, codeMapping{CodeAPIKeyRequired, http.StatusUnauthorized}},
	{services.ErrInvalidAPIKey, codeMapping{CodeInvalidAPIKey, http.StatusUnauthorized}},
}

// RejectionFor converts a domain error to its rejection envelope. Anything
// unrecognized — including every operational error — collapses to the
// generic service-error envelope so internal detail never leaks.
func RejectionFor(err error, at State) Rejection {
	for _, entry := range sentinelCodes {
		if errors.Is(err, entry.err) {
			return Rejection{
				Code:     entry.mapping.code,
				Status:   entry.mapping.status,
				Message:  entry.err.Message,
				FailedAt: at,
			}
		}
	}
	return Rejection{
		Code:     CodeAuthServiceError,
		Status:   http.StatusInternalServerError,
		Message:  "auth service error",
		FailedAt: at,
	}
}
