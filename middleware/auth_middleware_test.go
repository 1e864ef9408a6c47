package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/identity-gateway/config"
	"github.com/upb/identity-gateway/gateway"
	"github.com/upb/identity-gateway/identity"
	"github.com/upb/identity-gateway/models"
	"github.com/upb/identity-gateway/services/apikey"
	"github.com/upb/identity-gateway/services/entitlement"
	"github.com/upb/identity-gateway/services/ratelimit"
	"github.com/upb/identity-gateway/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeVerifier struct {
	claims *identity.ExternalClaims
	err    error
}

func (f *fakeVerifier) Verify(ctx context.Context, token string) (*identity.ExternalClaims, error) {
	return f.claims, f.err
}

type fakeSyncer struct {
	user *models.User
}

func (f *fakeSyncer) SyncAndFetch(ctx context.Context, claims *identity.ExternalClaims) (*models.User, error) {
	return f.user, nil
}

type fakeResolver struct {
	ents *entitlement.Entitlements
}

func (f *fakeResolver) Resolve(ctx context.Context, _ uuid.UUID) (*entitlement.Entitlements, error) {
	return f.ents, nil
}

type fakeKeys struct {
	validation *apikey.Validation
	err        error
}

func (f *fakeKeys) Validate(ctx context.Context, rawKey string) (*apikey.Validation, error) {
	return f.validation, f.err
}

func testMiddleware(t *testing.T, verifier *fakeVerifier, syncer *fakeSyncer, keys *fakeKeys) *AuthMiddleware {
	t.Helper()
	cfg := config.GatewayConfig{
		Enabled:             true,
		AuthRateLimitMax:    100,
		AuthRateLimitWindow: time.Minute,
		AnonRateLimitMax:    100,
		AnonRateLimitWindow: time.Minute,
	}
	runtime := config.NewRuntime(config.StaticSource{}, time.Minute, zap.NewNop())
	resolver := &fakeResolver{ents: &entitlement.Entitlements{Roles: []string{models.RoleMember}}}
	pipeline := gateway.NewPipeline(verifier, syncer, resolver, ratelimit.NewMemoryLimiter(), keys, nil, runtime, cfg, nil, zap.NewNop())
	return NewAuthMiddleware(pipeline, zap.NewNop())
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteOK(w, map[string]string{"status": "ok"})
	})
}

func verifiedFixtures() (*fakeVerifier, *fakeSyncer) {
	verifier := &fakeVerifier{claims: &identity.ExternalClaims{SubjectID: "subject-abc", Email: "jordan@example.com", EmailVerified: true}}
	syncer := &fakeSyncer{user: models.NewUser("jordan@example.com", "Jordan", "subject-abc", true)}
	return verifier, syncer
}

func TestRequireAuth_AttachesAuthContext(t *testing.T) {
	verifier, syncer := verifiedFixtures()
	m := testMiddleware(t, verifier, syncer, &fakeKeys{})

	var got *gateway.AuthContext
	handler := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetAuthFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer sometoken")
	req.RemoteAddr = "203.0.113.9:51000"
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "jordan@example.com", got.Email)
	assert.Equal(t, syncer.user.ID, got.UserID)
	assert.Equal(t, gateway.MethodToken, got.Method)
}

func TestRequireAuth_MissingHeaderEnvelope(t *testing.T) {
	verifier, syncer := verifiedFixtures()
	m := testMiddleware(t, verifier, syncer, &fakeKeys{})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	m.RequireAuth(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body utils.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, gateway.CodeMissingAuthHeader, body.Code)
	assert.NotEmpty(t, body.Message)
}

func TestRequireAuth_InvalidTokenEnvelope(t *testing.T) {
	_, syncer := verifiedFixtures()
	verifier := &fakeVerifier{err: identity.ErrInvalidSignature}
	m := testMiddleware(t, verifier, syncer, &fakeKeys{})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer bad")
	rec := httptest.NewRecorder()
	m.RequireAuth(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body utils.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, gateway.CodeInvalidToken, body.Code)
}

func TestOptionalAuth_NoCredentialsIsAnonymous(t *testing.T) {
	verifier, syncer := verifiedFixtures()
	m := testMiddleware(t, verifier, syncer, &fakeKeys{})

	var got *gateway.AuthContext
	handler := m.OptionalAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetAuthFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/public", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.True(t, got.Anonymous())
}

func TestRequireAdmin_NonAdminForbidden(t *testing.T) {
	verifier, syncer := verifiedFixtures()
	m := testMiddleware(t, verifier, syncer, &fakeKeys{})

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer sometoken")
	rec := httptest.NewRecorder()
	m.RequireAdmin(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)

	var body utils.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, gateway.CodeAdminAccessRequired, body.Code)
}

func TestRequireAPIKey_MissingHeader(t *testing.T) {
	verifier, syncer := verifiedFixtures()
	m := testMiddleware(t, verifier, syncer, &fakeKeys{})

	req := httptest.NewRequest(http.MethodGet, "/tenant/data", nil)
	rec := httptest.NewRecorder()
	m.RequireAPIKey(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body utils.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, gateway.CodeAPIKeyRequired, body.Code)
}

func TestRejectionLogCarriesChiRequestID(t *testing.T) {
	verifier, syncer := verifiedFixtures()

	cfg := config.GatewayConfig{
		Enabled:             true,
		AuthRateLimitMax:    100,
		AuthRateLimitWindow: time.Minute,
		AnonRateLimitMax:    100,
		AnonRateLimitWindow: time.Minute,
	}
	runtime := config.NewRuntime(config.StaticSource{}, time.Minute, zap.NewNop())
	resolver := &fakeResolver{ents: &entitlement.Entitlements{Roles: []string{models.RoleMember}}}
	pipeline := gateway.NewPipeline(verifier, syncer, resolver, ratelimit.NewMemoryLimiter(), &fakeKeys{}, nil, runtime, cfg, nil, zap.NewNop())

	core, logs := observer.New(zap.DebugLevel)
	m := NewAuthMiddleware(pipeline, zap.New(core))

	handler := chimiddleware.RequestID(m.RequireAuth(okHandler()))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)

	entries := logs.FilterMessage("request rejected").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	requestID, _ := fields["request_id"].(string)
	assert.NotEmpty(t, requestID)
}

func TestRateLimitResponseCarriesRetryAfter(t *testing.T) {
	verifier, syncer := verifiedFixtures()

	cfg := config.GatewayConfig{
		Enabled:             true,
		AuthRateLimitMax:    1,
		AuthRateLimitWindow: time.Minute,
		AnonRateLimitMax:    1,
		AnonRateLimitWindow: time.Minute,
	}
	runtime := config.NewRuntime(config.StaticSource{}, time.Minute, zap.NewNop())
	resolver := &fakeResolver{ents: &entitlement.Entitlements{}}
	pipeline := gateway.NewPipeline(verifier, syncer, resolver, ratelimit.NewMemoryLimiter(), &fakeKeys{}, nil, runtime, cfg, nil, zap.NewNop())
	m := NewAuthMiddleware(pipeline, zap.NewNop())

	handler := m.RequireAuth(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer sometoken")
	req.RemoteAddr = "203.0.113.9:51000"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var body utils.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, gateway.CodeRateLimitExceeded, body.Code)
	assert.Greater(t, body.RetryAfter, 0)
}
