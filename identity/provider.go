package identity

import (
	"context"
	"time"
)

// Profile is the provider's view of a subject, returned by admin lookups.
type Profile struct {
	SubjectID     string    `json:"subject_id"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
	DisplayName   string    `json:"display_name"`
	PictureURL    string    `json:"picture_url"`
	Disabled      bool      `json:"disabled"`
	CreatedAt     time.Time `json:"created_at"`
}

// Provider is the externally hosted identity-provider capability.
// Implementations perform network calls and must honor ctx deadlines.
type Provider interface {
	// VerifyToken checks the token's signature and standard claims against
	// the provider and returns the asserted claims.
	VerifyToken(ctx context.Context, token string) (*ExternalClaims, error)

	// CreateCustomToken mints a provider-signed token for the subject with
	// the given additional claims.
	CreateCustomToken(ctx context.Context, subjectID string, claims map[string]interface{}) (string, error)

	// AdminLookup fetches the provider profile for a subject.
	AdminLookup(ctx context.Context, subjectID string) (*Profile, error)

	// AdminDelete removes the subject from the provider. Deleting an
	// already-absent subject returns ErrSubjectNotFound.
	AdminDelete(ctx context.Context, subjectID string) error
}
