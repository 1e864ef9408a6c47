package middleware

import (
	"context"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/upb/identity-gateway/gateway"
)

// Context key type to avoid collisions
type contextKey string

const (
	// AuthKey is the context key for the authorization context
	AuthKey contextKey = "auth"
)

// GetRequestIDFromContext retrieves the request ID assigned by chi's
// RequestID middleware, or "" when the request never passed through it.
func GetRequestIDFromContext(ctx context.Context) string {
	return chimiddleware.GetReqID(ctx)
}

// GetAuthFromContext retrieves the authorization context, or nil when the
// request never passed the gateway.
func GetAuthFromContext(ctx context.Context) *gateway.AuthContext {
	if val := ctx.Value(AuthKey); val != nil {
		if auth, ok := val.(*gateway.AuthContext); ok {
			return auth
		}
	}
	return nil
}

// WithAuth adds the authorization context to the context
func WithAuth(ctx context.Context, auth *gateway.AuthContext) context.Context {
	return context.WithValue(ctx, AuthKey, auth)
}

// GetUserIDFromContext retrieves the authenticated user ID, or uuid.Nil for
// anonymous and tenant-key requests.
func GetUserIDFromContext(ctx context.Context) uuid.UUID {
	if auth := GetAuthFromContext(ctx); auth != nil {
		return auth.UserID
	}
	return uuid.Nil
}

// GetTenantIDFromContext retrieves the tenant ID, or nil off the key path.
func GetTenantIDFromContext(ctx context.Context) *uuid.UUID {
	if auth := GetAuthFromContext(ctx); auth != nil {
		return auth.TenantID
	}
	return nil
}
