package gateway

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/upb/identity-gateway/config"
	"github.com/upb/identity-gateway/identity"
	"github.com/upb/identity-gateway/metrics"
	"github.com/upb/identity-gateway/models"
	"github.com/upb/identity-gateway/services"
	"github.com/upb/identity-gateway/services/apikey"
	"github.com/upb/identity-gateway/services/entitlement"
	"github.com/upb/identity-gateway/services/ratelimit"
	"go.uber.org/zap"
)

// TokenVerifier validates a raw bearer token.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*identity.ExternalClaims, error)
}

// IdentitySyncer reconciles verified claims with the local identity store.
type IdentitySyncer interface {
	SyncAndFetch(ctx context.Context, claims *identity.ExternalClaims) (*models.User, error)
}

// EntitlementResolver resolves a user to their effective grants.
type EntitlementResolver interface {
	Resolve(ctx context.Context, userID uuid.UUID) (*entitlement.Entitlements, error)
}

// KeyValidator validates tenant API keys.
type KeyValidator interface {
	Validate(ctx context.Context, rawKey string) (*apikey.Validation, error)
}

// Auditor records security events without blocking the request path.
type Auditor interface {
	RecordRejection(eventType models.SecurityEventType, userID, tenantID *uuid.UUID, ipAddress, userAgent string, details interface{})
}

// Request is the credential material and caller metadata for one pipeline
// execution.
type Request struct {
	AuthorizationHeader string
	APIKey              string
	IP                  string
	UserAgent           string
}

// Pipeline runs the per-request authorization state machine. All
// collaborators are injected; the pipeline holds no per-request state and
// is safe for concurrent use.
type Pipeline struct {
	verifier     TokenVerifier
	syncer       IdentitySyncer
	entitlements EntitlementResolver
	limiter      ratelimit.Limiter
	keys         KeyValidator
	auditor      Auditor
	runtime      *config.Runtime
	cfg          config.GatewayConfig
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// NewPipeline wires the pipeline from its collaborators.
func NewPipeline(
	verifier TokenVerifier,
	syncer IdentitySyncer,
	entitlements EntitlementResolver,
	limiter ratelimit.Limiter,
	keys KeyValidator,
	auditor Auditor,
	runtime *config.Runtime,
	cfg config.GatewayConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		verifier:     verifier,
		syncer:       syncer,
		entitlements: entitlements,
		limiter:      limiter,
		keys:         keys,
		auditor:      auditor,
		runtime:      runtime,
		cfg:          cfg,
		metrics:      m,
		logger:       logger,
	}
}

// Authorize runs the token path: verify → sync identity → resolve
// entitlements → rate limit. With req.Optional set, a request without
// credentials passes through as anonymous and any failure after a token
// was presented degrades to anonymous instead of rejecting.
func (p *Pipeline) Authorize(ctx context.Context, req Request, requirement Requirement) Result {
	if !p.enabled(ctx) {
		return p.finish(MethodToken, rejected(RejectionFor(services.ErrAuthServiceUnavailable, StateUnauthenticated)))
	}

	token, rej := extractBearer(req.AuthorizationHeader)
	if rej != nil {
		if requirement.Optional {
			return p.finish(MethodAnonymous, p.anonymous(ctx, req))
		}
		return p.finish(MethodToken, rejected(*rej))
	}

	result := p.runTokenPath(ctx, req, requirement, token)
	if result.Authorized() {
		return p.finish(MethodToken, result)
	}

	// Past TOKEN_PRESENT an optional route degrades every failure to an
	// anonymous authorization.
	if requirement.Optional {
		return p.finish(MethodAnonymous, p.anonymous(ctx, req))
	}
	return p.finish(MethodToken, result)
}

// AuthorizeAPIKey runs the tenant-key path: validate key → rate limit,
// bypassing identity and entitlement stages.
func (p *Pipeline) AuthorizeAPIKey(ctx context.Context, req Request) Result {
	if !p.enabled(ctx) {
		return p.finish(MethodAPIKey, rejected(RejectionFor(services.ErrAuthServiceUnavailable, StateUnauthenticated)))
	}

	if req.APIKey == "" {
		return p.finish(MethodAPIKey, rejected(RejectionFor(services.ErrAPIKeyRequired, StateUnauthenticated)))
	}

	validation, err := p.keys.Validate(ctx, req.APIKey)
	if err != nil {
		if errors.Is(err, services.ErrInvalidAPIKey) {
			p.audit(models.EventInvalidAPIKey, nil, nil, req, nil)
		} else {
			p.logger.Error("api key validation failed", zap.Error(err))
		}
		return p.finish(MethodAPIKey, rejected(RejectionFor(err, StateUnauthenticated)))
	}

	// KEY_VALIDATED. Tenant limits from the key row; gateway defaults when
	// the key carries none.
	policy := ratelimit.Policy{Max: validation.Limits.MaxRequests, Window: validation.Limits.Window()}
	if policy.Max <= 0 || policy.Window <= 0 {
		policy = p.authPolicy(ctx)
	}

	key := req.IP + ":tenant:" + validation.TenantID.String()
	res, err := p.limiter.Allow(ctx, key, policy)
	if err != nil {
		p.logger.Error("rate limit check failed", zap.Error(err))
		return p.finish(MethodAPIKey, rejected(RejectionFor(services.WrapOperational("rate limit check failed", err), StateKeyValidated)))
	}
	if !res.Allowed {
		p.metrics.RateLimitReject("tenant")
		p.audit(models.EventRateLimitExceeded, nil, &validation.TenantID, req, nil)
		rej := RejectionFor(services.ErrRateLimitExceeded, StateKeyValidated)
		rej.RetryAfter = res.RetryAfter
		return p.finish(MethodAPIKey, rejected(rej))
	}

	tenantID := validation.TenantID
	return p.finish(MethodAPIKey, authorized(&AuthContext{
		TenantID:          &tenantID,
		TenantPermissions: validation.Permissions,
		Method:            MethodAPIKey,
	}))
}

func (p *Pipeline) runTokenPath(ctx context.Context, req Request, requirement Requirement, token string) Result {
	// TOKEN_PRESENT → TOKEN_VERIFIED
	start := time.Now()
	claims, err := p.verifier.Verify(ctx, token)
	p.metrics.TokenVerifyDuration(time.Since(start))
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrProviderUnavailable):
			p.logger.Error("identity provider unavailable", zap.Error(err))
			return rejected(RejectionFor(services.ErrAuthServiceUnavailable, StateTokenPresent))
		default:
			p.audit(models.EventInvalidToken, nil, nil, req, map[string]string{"reason": err.Error()})
			return rejected(RejectionFor(services.ErrInvalidToken, StateTokenPresent))
		}
	}

	// TOKEN_VERIFIED → IDENTITY_RESOLVED
	user, err := p.syncer.SyncAndFetch(ctx, claims)
	if err != nil {
		p.logger.Error("identity sync failed", zap.Error(err), zap.String("subject_id", claims.SubjectID))
		return rejected(RejectionFor(err, StateTokenVerified))
	}

	userID := user.ID
	if user.IsSuspended {
		p.audit(models.EventAccountSuspended, &userID, nil, req, nil)
		return rejected(RejectionFor(services.ErrAccountSuspended, StateIdentityResolved))
	}
	if !user.IsActive {
		p.audit(models.EventAccountSuspended, &userID, nil, req, map[string]string{"state": "inactive"})
		return rejected(RejectionFor(services.ErrAccountInactive, StateIdentityResolved))
	}
	if !user.IsVerified {
		p.audit(models.EventEmailNotVerified, &userID, nil, req, nil)
		return rejected(RejectionFor(services.ErrEmailNotVerified, StateIdentityResolved))
	}

	// IDENTITY_RESOLVED → ENTITLEMENTS_RESOLVED
	ents, err := p.entitlements.Resolve(ctx, userID)
	if err != nil {
		p.logger.Error("entitlement resolution failed", zap.Error(err), zap.String("user_id", userID.String()))
		return rejected(RejectionFor(err, StateIdentityResolved))
	}

	if requirement.AdminOnly && !ents.IsAdmin() {
		p.audit(models.EventUnauthorizedAdminAccess, &userID, nil, req, map[string]string{"email": user.Email})
		return rejected(RejectionFor(services.ErrAdminAccessRequired, StateEntitlementsResolved))
	}
	if len(requirement.AnyRole) > 0 && !ents.HasAnyRole(requirement.AnyRole...) {
		p.audit(models.EventInsufficientPermissions, &userID, nil, req, map[string]interface{}{"required": requirement.AnyRole})
		return rejected(RejectionFor(services.ErrInsufficientRole, StateEntitlementsResolved))
	}
	if requirement.MinTier != "" && !user.Tier.AtLeast(requirement.MinTier) {
		return rejected(RejectionFor(services.ErrUpgradeRequired, StateEntitlementsResolved))
	}

	// ENTITLEMENTS_RESOLVED → RATE_LIMIT_CHECKED. The key couples caller
	// address with identity so one shared-IP class cannot exhaust another
	// user's budget.
	key := req.IP + ":user:" + userID.String()
	res, err := p.limiter.Allow(ctx, key, p.authPolicy(ctx))
	if err != nil {
		p.logger.Error("rate limit check failed", zap.Error(err))
		return rejected(RejectionFor(services.WrapOperational("rate limit check failed", err), StateEntitlementsResolved))
	}
	if !res.Allowed {
		p.metrics.RateLimitReject("authenticated")
		p.audit(models.EventRateLimitExceeded, &userID, nil, req, nil)
		rej := RejectionFor(services.ErrRateLimitExceeded, StateRateLimitChecked)
		rej.RetryAfter = res.RetryAfter
		return rejected(rej)
	}

	return authorized(&AuthContext{
		UserID:      userID,
		Email:       user.Email,
		Name:        user.Name,
		Roles:       ents.Roles,
		Permissions: ents.Permissions,
		Tier:        user.Tier,
		Method:      MethodToken,
	})
}

// anonymous authorizes a request with no identity: only the anonymous rate
// limit applies, keyed by caller address alone.
func (p *Pipeline) anonymous(ctx context.Context, req Request) Result {
	policy := ratelimit.Policy{
		Max:    p.runtime.Int(ctx, config.KeyAnonLimitMax, p.cfg.AnonRateLimitMax),
		Window: p.runtime.Duration(ctx, config.KeyAnonLimitWindow, p.cfg.AnonRateLimitWindow),
	}

	res, err := p.limiter.Allow(ctx, req.IP+":anon", policy)
	if err != nil {
		p.logger.Error("rate limit check failed", zap.Error(err))
		return rejected(RejectionFor(services.WrapOperational("rate limit check failed", err), StateUnauthenticated))
	}
	if !res.Allowed {
		p.metrics.RateLimitReject("anonymous")
		rej := RejectionFor(services.ErrRateLimitExceeded, StateRateLimitChecked)
		rej.RetryAfter = res.RetryAfter
		return rejected(rej)
	}

	return authorized(&AuthContext{Method: MethodAnonymous})
}

func (p *Pipeline) enabled(ctx context.Context) bool {
	return p.runtime.Bool(ctx, config.KeyGatewayEnabled, p.cfg.Enabled)
}

func (p *Pipeline) authPolicy(ctx context.Context) ratelimit.Policy {
	return ratelimit.Policy{
		Max:    p.runtime.Int(ctx, config.KeyAuthLimitMax, p.cfg.AuthRateLimitMax),
		Window: p.runtime.Duration(ctx, config.KeyAuthLimitWindow, p.cfg.AuthRateLimitWindow),
	}
}

func (p *Pipeline) audit(eventType models.SecurityEventType, userID, tenantID *uuid.UUID, req Request, details interface{}) {
	if p.auditor == nil {
		return
	}
	p.auditor.RecordRejection(eventType, userID, tenantID, req.IP, req.UserAgent, details)
}

func (p *Pipeline) finish(method AuthMethod, result Result) Result {
	outcome := "authorized"
	if !result.Authorized() {
		outcome = "rejected"
		if result.Rejection != nil {
			p.metrics.Rejection(result.Rejection.Code)
		}
	}
	p.metrics.PipelineOutcome(string(method), outcome)
	return result
}

// extractBearer splits the Authorization header. Absence and a present but
// tokenless header are distinct failures.
func extractBearer(header string) (string, *Rejection) {
	if header == "" {
		rej := RejectionFor(services.ErrMissingAuthHeader, StateUnauthenticated)
		return "", &rej
	}
	token := header
	if len(header) >= 7 && strings.EqualFold(header[:7], "Bearer ") {
		token = strings.TrimSpace(header[7:])
	} else {
		token = ""
	}
	if token == "" {
		rej := RejectionFor(services.ErrMissingToken, StateUnauthenticated)
		return "", &rej
	}
	return token, nil
}
