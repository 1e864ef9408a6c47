package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExternalClaims holds the attributes the provider asserts about a subject.
// They are recomputed on every verification and never persisted directly.
type ExternalClaims struct {
	SubjectID     string
	Email         string
	EmailVerified bool
	DisplayName   string
	PictureURL    string
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// tokenClaims is the JWT shape issued by the identity provider.
type tokenClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// toExternal converts raw token claims into ExternalClaims.
func (c *tokenClaims) toExternal() *ExternalClaims {
	out := &ExternalClaims{
		SubjectID:     c.Subject,
		Email:         c.Email,
		EmailVerified: c.EmailVerified,
		DisplayName:   c.Name,
		PictureURL:    c.Picture,
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out
}
