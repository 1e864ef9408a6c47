package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubProvider struct {
	claims *ExternalClaims
	err    error
	calls  int
}

func (s *stubProvider) VerifyToken(ctx context.Context, token string) (*ExternalClaims, error) {
	s.calls++
	return s.claims, s.err
}

func (s *stubProvider) CreateCustomToken(ctx context.Context, subjectID string, claims map[string]interface{}) (string, error) {
	return "", nil
}

func (s *stubProvider) AdminLookup(ctx context.Context, subjectID string) (*Profile, error) {
	return nil, ErrSubjectNotFound
}

func (s *stubProvider) AdminDelete(ctx context.Context, subjectID string) error {
	return nil
}

func signedToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "subject-1",
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(expiresAt.Add(-time.Hour)),
		},
		Email:         "casey@example.com",
		EmailVerified: true,
	})
	raw, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return raw
}

func newTestVerifier(provider Provider, at time.Time) *Verifier {
	v := NewVerifier(provider, zap.NewNop())
	v.now = func() time.Time { return at }
	return v
}

func TestVerify_ValidToken(t *testing.T) {
	now := time.Now()
	provider := &stubProvider{claims: &ExternalClaims{
		SubjectID:     "subject-1",
		Email:         "casey@example.com",
		EmailVerified: true,
	}}
	v := newTestVerifier(provider, now)

	claims, err := v.Verify(context.Background(), signedToken(t, now.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, "subject-1", claims.SubjectID)
	assert.True(t, claims.EmailVerified)
}

func TestVerify_MalformedBeforeProvider(t *testing.T) {
	provider := &stubProvider{}
	v := newTestVerifier(provider, time.Now())

	for _, token := range []string{"", "garbage", "a.b", "....."} {
		_, err := v.Verify(context.Background(), token)
		assert.ErrorIs(t, err, ErrTokenMalformed, "token %q", token)
	}
	assert.Zero(t, provider.calls, "malformed input must not reach the provider")
}

func TestVerify_ExpiredNeverInvalidSignature(t *testing.T) {
	now := time.Now()

	// The provider would reject this token outright; expiry must win.
	provider := &stubProvider{err: ErrInvalidSignature}
	v := newTestVerifier(provider, now)

	_, err := v.Verify(context.Background(), signedToken(t, now.Add(-time.Minute)))
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.NotErrorIs(t, err, ErrInvalidSignature)
	assert.Zero(t, provider.calls)
}

func TestVerify_ProviderExpiryMapsToExpired(t *testing.T) {
	now := time.Now()
	provider := &stubProvider{err: jwt.ErrTokenExpired}
	v := newTestVerifier(provider, now)

	_, err := v.Verify(context.Background(), signedToken(t, now.Add(time.Hour)))
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerify_ProviderRejectionIsInvalidSignature(t *testing.T) {
	now := time.Now()
	provider := &stubProvider{err: jwt.ErrSignatureInvalid}
	v := newTestVerifier(provider, now)

	_, err := v.Verify(context.Background(), signedToken(t, now.Add(time.Hour)))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_ProviderOutageIsOperational(t *testing.T) {
	now := time.Now()
	provider := &stubProvider{err: context.DeadlineExceeded}
	v := newTestVerifier(provider, now)

	_, err := v.Verify(context.Background(), signedToken(t, now.Add(time.Hour)))
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.NotErrorIs(t, err, ErrInvalidSignature)
}
