package entitlement

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/upb/identity-gateway/models"
	"github.com/upb/identity-gateway/repositories"
	"github.com/upb/identity-gateway/services"
	"go.uber.org/zap"
)

// Entitlements is the effective grant set for a user: the names of the
// active roles and the deduplicated union of their permissions.
type Entitlements struct {
	Roles       []string
	Permissions []string
}

// HasRole reports whether the entitlements include the named role.
func (e *Entitlements) HasRole(name string) bool {
	for _, r := range e.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the entitlements include at least one of the
// required roles. An empty requirement is satisfied by anything.
func (e *Entitlements) HasAnyRole(required ...string) bool {
	if len(required) == 0 {
		return true
	}
	for _, want := range required {
		if e.HasRole(want) {
			return true
		}
	}
	return false
}

// HasPermission reports whether the entitlements include the permission.
func (e *Entitlements) HasPermission(perm string) bool {
	for _, p := range e.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the admin role is among the grants.
func (e *Entitlements) IsAdmin() bool {
	return e.HasRole(models.RoleAdmin)
}

// Service resolves users to their effective entitlements. Resolution is a
// join over active assignments and active roles; results are cached with a
// short TTL so revocation takes effect within one cache lifetime.
type Service struct {
	roles  repositories.RoleRepository
	cache  *RoleCache
	logger *zap.Logger
}

// NewService creates a new entitlement resolver.
func NewService(roles repositories.RoleRepository, cacheSize int, cacheTTL time.Duration, logger *zap.Logger) *Service {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &Service{
		roles:  roles,
		cache:  NewRoleCache(cacheSize, cacheTTL),
		logger: logger,
	}
}

// Resolve returns the effective entitlements for a user. A user with no
// active grants resolves to empty sets, not an error.
func (s *Service) Resolve(ctx context.Context, userID uuid.UUID) (*Entitlements, error) {
	roles, cached := s.cache.Get(userID)
	if !cached {
		var err error
		roles, err = s.roles.GetActiveRolesForUser(ctx, userID)
		if err != nil {
			return nil, services.WrapOperational("role resolution failed", err)
		}
		s.cache.Set(userID, roles)
	}

	return buildEntitlements(roles), nil
}

// Invalidate drops the cached grants for a user so the next resolve hits
// the store. Called after role assignment changes.
func (s *Service) Invalidate(userID uuid.UUID) {
	s.cache.Invalidate(userID)
}

// CacheStats exposes resolver cache statistics.
func (s *Service) CacheStats() CacheStats {
	return s.cache.Stats()
}

// MeetsTier reports whether a user's tier satisfies the required tier under
// the subscription ordering. Unknown tiers rank lowest, so a user with an
// unrecognized tier value never passes a paid-tier gate.
func MeetsTier(userTier, required models.SubscriptionTier) bool {
	return userTier.AtLeast(required)
}

func buildEntitlements(roles []*models.Role) *Entitlements {
	ent := &Entitlements{
		Roles:       make([]string, 0, len(roles)),
		Permissions: make([]string, 0),
	}

	seen := make(map[string]struct{})
	for _, role := range roles {
		ent.Roles = append(ent.Roles, role.Name)
		for _, perm := range role.Permissions {
			if _, dup := seen[perm]; dup {
				continue
			}
			seen[perm] = struct{}{}
			ent.Permissions = append(ent.Permissions, perm)
		}
	}

	// Deterministic order keeps responses and logs stable across resolves.
	sort.Strings(ent.Roles)
	sort.Strings(ent.Permissions)
	return ent
}
