package identity

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Verifier turns a raw bearer token into ExternalClaims. It is a pure
// function over (token, now): no side effects, safe for concurrent use.
//
// Failure modes are strictly ordered so callers can rely on them:
// unparsable input fails with ErrTokenMalformed before the delegate is
// consulted, an expired token always fails with ErrTokenExpired (never
// ErrInvalidSignature), and only then does a delegate rejection surface as
// ErrInvalidSignature.
type Verifier struct {
	provider Provider
	logger   *zap.Logger
	now      func() time.Time
}

// NewVerifier creates a Verifier backed by the given provider delegate.
func NewVerifier(provider Provider, logger *zap.Logger) *Verifier {
	return &Verifier{
		provider: provider,
		logger:   logger,
		now:      time.Now,
	}
}

// Verify validates the raw token and returns its claims.
func (v *Verifier) Verify(ctx context.Context, token string) (*ExternalClaims, error) {
	if token == "" {
		return nil, ErrTokenMalformed
	}

	// Structural parse only; signature checking belongs to the delegate.
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	raw := &tokenClaims{}
	if _, _, err := parser.ParseUnverified(token, raw); err != nil {
		return nil, ErrTokenMalformed
	}

	if raw.ExpiresAt != nil && v.now().After(raw.ExpiresAt.Time) {
		return nil, ErrTokenExpired
	}

	claims, err := v.provider.VerifyToken(ctx, token)
	if err != nil {
		switch {
		case errors.Is(err, ErrTokenExpired), errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, ErrProviderUnavailable), errors.Is(err, context.DeadlineExceeded):
			return nil, ErrProviderUnavailable
		default:
			v.logger.Debug("provider rejected token", zap.Error(err))
			return nil, ErrInvalidSignature
		}
	}

	return claims, nil
}
