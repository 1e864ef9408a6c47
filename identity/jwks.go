package identity

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWKS represents the JSON Web Key Set published by the provider.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key
type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKSProviderConfig holds configuration for JWKSProvider.
type JWKSProviderConfig struct {
	// Issuer is the expected iss claim and the base of the well-known URLs.
	Issuer string
	// Audience is the expected aud claim (the gateway's client ID).
	Audience string
	// AdminBaseURL is the provider's admin REST endpoint.
	AdminBaseURL string
	// AdminAPIKey authenticates admin calls.
	AdminAPIKey string
	// SigningKey signs custom tokens. Optional; CreateCustomToken fails
	// without it.
	SigningKey *rsa.PrivateKey
	// SigningKeyID is the kid embedded in custom tokens.
	SigningKeyID string
	CacheTTL     time.Duration
	HTTPTimeout  time.Duration
}

// JWKSProvider implements Provider against a standards-compliant identity
// provider: token verification via the provider's JWKS, admin operations via
// its REST API.
type JWKSProvider struct {
	issuer       string
	audience     string
	jwksURL      string
	adminBaseURL string
	adminAPIKey  string
	signingKey   *rsa.PrivateKey
	signingKeyID string
	httpClient   *http.Client

	// Cache for the fetched JWKS
	jwksCache    *JWKS
	jwksCacheExp time.Time
	jwksCacheTTL time.Duration
	cacheMu      sync.RWMutex

	// Cache for parsed public keys
	keyCache   map[string]*rsa.PublicKey
	keyCacheMu sync.RWMutex
}

// NewJWKSProvider creates a new JWKS-backed identity provider client.
func NewJWKSProvider(config JWKSProviderConfig) *JWKSProvider {
	if config.CacheTTL == 0 {
		config.CacheTTL = 1 * time.Hour
	}
	if config.HTTPTimeout == 0 {
		config.HTTPTimeout = 10 * time.Second
	}

	return &JWKSProvider{
		issuer:       config.Issuer,
		audience:     config.Audience,
		jwksURL:      config.Issuer + "/.well-known/jwks.json",
		adminBaseURL: config.AdminBaseURL,
		adminAPIKey:  config.AdminAPIKey,
		signingKey:   config.SigningKey,
		signingKeyID: config.SigningKeyID,
		jwksCacheTTL: config.CacheTTL,
		httpClient: &http.Client{
			Timeout: config.HTTPTimeout,
		},
		keyCache: make(map[string]*rsa.PublicKey),
	}
}

// VerifyToken validates a JWT against the provider's JWKS and returns the
// asserted claims.
func (p *JWKSProvider) VerifyToken(ctx context.Context, tokenString string) (*ExternalClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, errors.New("kid header not found")
		}

		publicKey, err := p.getPublicKey(ctx, kid)
		if err != nil {
			return nil, fmt.Errorf("failed to get public key: %w", err)
		}

		return publicKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		if errors.Is(err, ErrProviderUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	claims, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidSignature
	}

	if claims.Issuer != p.issuer {
		return nil, fmt.Errorf("%w: issuer %q", ErrInvalidSignature, claims.Issuer)
	}
	if p.audience != "" && !containsAudience(claims.Audience, p.audience) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrInvalidSignature)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrInvalidSignature)
	}

	return claims.toExternal(), nil
}

// CreateCustomToken mints a provider-signed token for the subject.
func (p *JWKSProvider) CreateCustomToken(ctx context.Context, subjectID string, claims map[string]interface{}) (string, error) {
	if p.signingKey == nil {
		return "", errors.New("no signing key configured")
	}

	now := time.Now()
	mapped := jwt.MapClaims{
		"iss": p.issuer,
		"aud": p.audience,
		"sub": subjectID,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	for k, v := range claims {
		mapped[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, mapped)
	if p.signingKeyID != "" {
		token.Header["kid"] = p.signingKeyID
	}

	signed, err := token.SignedString(p.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign custom token: %w", err)
	}
	return signed, nil
}

// AdminLookup fetches the provider profile for a subject.
func (p *JWKSProvider) AdminLookup(ctx context.Context, subjectID string) (*Profile, error) {
	endpoint := fmt.Sprintf("%s/accounts/%s", p.adminBaseURL, url.PathEscape(subjectID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.adminAPIKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrSubjectNotFound
	default:
		return nil, fmt.Errorf("%w: admin lookup status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	return &profile, nil
}

// AdminDelete removes the subject from the provider.
func (p *JWKSProvider) AdminDelete(ctx context.Context, subjectID string) error {
	endpoint := fmt.Sprintf("%s/accounts/%s", p.adminBaseURL, url.PathEscape(subjectID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.adminAPIKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return ErrSubjectNotFound
	default:
		return fmt.Errorf("%w: admin delete status %d", ErrProviderUnavailable, resp.StatusCode)
	}
}

// FetchJWKS fetches the JWKS from the provider, serving from cache while
// fresh.
func (p *JWKSProvider) FetchJWKS(ctx context.Context) (*JWKS, error) {
	p.cacheMu.RLock()
	if p.jwksCache != nil && time.Now().Before(p.jwksCacheExp) {
		defer p.cacheMu.RUnlock()
		return p.jwksCache, nil
	}
	p.cacheMu.RUnlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: jwks status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var jwks JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	p.cacheMu.Lock()
	p.jwksCache = &jwks
	p.jwksCacheExp = time.Now().Add(p.jwksCacheTTL)
	p.cacheMu.Unlock()

	return &jwks, nil
}

// getPublicKey retrieves the public key for a given kid
func (p *JWKSProvider) getPublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	p.keyCacheMu.RLock()
	if key, exists := p.keyCache[kid]; exists {
		p.keyCacheMu.RUnlock()
		return key, nil
	}
	p.keyCacheMu.RUnlock()

	jwks, err := p.FetchJWKS(ctx)
	if err != nil {
		return nil, err
	}

	var jwk *JWK
	for i := range jwks.Keys {
		if jwks.Keys[i].Kid == kid {
			jwk = &jwks.Keys[i]
			break
		}
	}

	if jwk == nil {
		return nil, fmt.Errorf("key with kid %s not found in JWKS", kid)
	}

	publicKey, err := jwkToRSAPublicKey(jwk)
	if err != nil {
		return nil, fmt.Errorf("failed to convert JWK to RSA public key: %w", err)
	}

	p.keyCacheMu.Lock()
	p.keyCache[kid] = publicKey
	p.keyCacheMu.Unlock()

	return publicKey, nil
}

// jwkToRSAPublicKey converts a JWK to an RSA public key
func jwkToRSAPublicKey(jwk *JWK) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}

	eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)

	var e int
	for _, b := range eBytes {
		e = e*256 + int(b)
	}

	return &rsa.PublicKey{N: n, E: e}, nil
}

// containsAudience checks if the audience list contains the expected value.
func containsAudience(audiences jwt.ClaimStrings, audience string) bool {
	for _, aud := range audiences {
		if aud == audience {
			return true
		}
	}
	return false
}

// InvalidateCache drops the JWKS and key caches (useful for forced refresh).
func (p *JWKSProvider) InvalidateCache() {
	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()
	p.jwksCache = nil
	p.jwksCacheExp = time.Time{}

	p.keyCacheMu.Lock()
	defer p.keyCacheMu.Unlock()
	p.keyCache = make(map[string]*rsa.PublicKey)
}
