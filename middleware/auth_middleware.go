package middleware

import (
	"net"
	"net/http"

	"github.com/upb/identity-gateway/gateway"
	"github.com/upb/identity-gateway/models"
	"github.com/upb/identity-gateway/utils"
	"go.uber.org/zap"
)

// apiKeyHeader carries the tenant key.
const apiKeyHeader = "x-api-key"

// AuthMiddleware adapts the gateway pipeline to chi middleware. Each
// wrapper runs one pipeline execution and either attaches the resulting
// authorization context or writes the rejection envelope.
type AuthMiddleware struct {
	pipeline *gateway.Pipeline
	logger   *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(pipeline *gateway.Pipeline, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		pipeline: pipeline,
		logger:   logger,
	}
}

// RequireAuth requires a verified authenticated identity.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return m.withRequirement(gateway.Requirement{})(next)
}

// OptionalAuth runs the same pipeline but lets requests without a usable
// identity through as anonymous.
func (m *AuthMiddleware) OptionalAuth(next http.Handler) http.Handler {
	return m.withRequirement(gateway.Requirement{Optional: true})(next)
}

// RequireAdmin requires the admin role.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return m.withRequirement(gateway.Requirement{AdminOnly: true})(next)
}

// RequireAnyRole requires at least one of the given roles.
func (m *AuthMiddleware) RequireAnyRole(roles ...string) func(http.Handler) http.Handler {
	return m.withRequirement(gateway.Requirement{AnyRole: roles})
}

// RequireTier requires the given subscription tier or higher.
func (m *AuthMiddleware) RequireTier(tier models.SubscriptionTier) func(http.Handler) http.Handler {
	return m.withRequirement(gateway.Requirement{MinTier: tier})
}

// RequireAPIKey runs the tenant-key path.
func (m *AuthMiddleware) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := m.pipeline.AuthorizeAPIKey(r.Context(), requestFrom(r))
		m.conclude(w, r, result, next)
	})
}

func (m *AuthMiddleware) withRequirement(req gateway.Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := m.pipeline.Authorize(r.Context(), requestFrom(r), req)
			m.conclude(w, r, result, next)
		})
	}
}

func (m *AuthMiddleware) conclude(w http.ResponseWriter, r *http.Request, result gateway.Result, next http.Handler) {
	if result.Authorized() {
		ctx := WithAuth(r.Context(), result.Auth)
		next.ServeHTTP(w, r.WithContext(ctx))
		return
	}

	rej := result.Rejection
	m.logger.Debug("request rejected",
		zap.String("request_id", GetRequestIDFromContext(r.Context())),
		zap.String("code", rej.Code),
		zap.String("failed_at", string(rej.FailedAt)))

	if rej.Code == gateway.CodeRateLimitExceeded {
		_ = utils.WriteRateLimited(w, rej.Code, rej.Message, int(rej.RetryAfter.Seconds()))
		return
	}
	_ = utils.WriteErrorCode(w, rej.Status, rej.Code, rej.Message)
}

// requestFrom extracts credential material and caller metadata.
func requestFrom(r *http.Request) gateway.Request {
	return gateway.Request{
		AuthorizationHeader: r.Header.Get("Authorization"),
		APIKey:              r.Header.Get(apiKeyHeader),
		IP:                  clientIP(r),
		UserAgent:           r.UserAgent(),
	}
}

// clientIP strips the port from RemoteAddr. chi's RealIP middleware has
// already folded X-Forwarded-For / X-Real-IP into RemoteAddr by the time
// this runs.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
