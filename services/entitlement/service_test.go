package entitlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/identity-gateway/models"
	"github.com/upb/identity-gateway/services"
	"go.uber.org/zap"
)

type mockRoleRepo struct {
	mock.Mock
}

func (m *mockRoleRepo) GetActiveRolesForUser(ctx context.Context, userID uuid.UUID) ([]*models.Role, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Role), args.Error(1)
}

func (m *mockRoleRepo) GetByName(ctx context.Context, name string) (*models.Role, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Role), args.Error(1)
}

func makeRole(name string, perms ...string) *models.Role {
	return &models.Role{
		ID:          uuid.New(),
		Name:        name,
		Permissions: perms,
		IsActive:    true,
	}
}

func TestResolve_UnionsPermissionsAcrossRoles(t *testing.T) {
	repo := new(mockRoleRepo)
	userID := uuid.New()

	repo.On("GetActiveRolesForUser", mock.Anything, userID).Return([]*models.Role{
		makeRole(models.RoleModerator, "content:review", "content:hide"),
		makeRole(models.RoleMember, "content:read", "content:review"),
	}, nil)

	svc := NewService(repo, 10, time.Minute, zap.NewNop())
	ent, err := svc.Resolve(context.Background(), userID)

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{models.RoleModerator, models.RoleMember}, ent.Roles)
	assert.ElementsMatch(t, []string{"content:review", "content:hide", "content:read"}, ent.Permissions)
}

func TestResolve_NoGrantsIsEmptyNotError(t *testing.T) {
	repo := new(mockRoleRepo)
	userID := uuid.New()

	repo.On("GetActiveRolesForUser", mock.Anything, userID).Return([]*models.Role{}, nil)

	svc := NewService(repo, 10, time.Minute, zap.NewNop())
	ent, err := svc.Resolve(context.Background(), userID)

	require.NoError(t, err)
	assert.Empty(t, ent.Roles)
	assert.Empty(t, ent.Permissions)
	assert.False(t, ent.IsAdmin())
}

func TestResolve_CachesResultIncludingEmpty(t *testing.T) {
	repo := new(mockRoleRepo)
	userID := uuid.New()

	repo.On("GetActiveRolesForUser", mock.Anything, userID).Return([]*models.Role{}, nil).Once()

	svc := NewService(repo, 10, time.Minute, zap.NewNop())
	_, err := svc.Resolve(context.Background(), userID)
	require.NoError(t, err)
	_, err = svc.Resolve(context.Background(), userID)
	require.NoError(t, err)

	repo.AssertNumberOfCalls(t, "GetActiveRolesForUser", 1)
}

func TestResolve_InvalidateForcesRefetch(t *testing.T) {
	repo := new(mockRoleRepo)
	userID := uuid.New()

	repo.On("GetActiveRolesForUser", mock.Anything, userID).Return([]*models.Role{
		makeRole(models.RoleAdmin, "users:manage"),
	}, nil)

	svc := NewService(repo, 10, time.Minute, zap.NewNop())
	_, err := svc.Resolve(context.Background(), userID)
	require.NoError(t, err)

	svc.Invalidate(userID)
	_, err = svc.Resolve(context.Background(), userID)
	require.NoError(t, err)

	repo.AssertNumberOfCalls(t, "GetActiveRolesForUser", 2)
}

func TestResolve_StoreFailureIsOperational(t *testing.T) {
	repo := new(mockRoleRepo)
	userID := uuid.New()

	repo.On("GetActiveRolesForUser", mock.Anything, userID).Return(nil, errors.New("connection refused"))

	svc := NewService(repo, 10, time.Minute, zap.NewNop())
	_, err := svc.Resolve(context.Background(), userID)

	require.Error(t, err)
	assert.True(t, services.IsOperationalError(err))
}

func TestEntitlements_HasAnyRole(t *testing.T) {
	ent := &Entitlements{Roles: []string{models.RoleModerator}}

	assert.True(t, ent.HasAnyRole(models.RoleAdmin, models.RoleModerator))
	assert.False(t, ent.HasAnyRole(models.RoleAdmin))
	assert.True(t, ent.HasAnyRole(), "empty requirement is satisfied")
}

func TestEntitlements_IsAdmin(t *testing.T) {
	assert.True(t, (&Entitlements{Roles: []string{models.RoleAdmin}}).IsAdmin())
	assert.False(t, (&Entitlements{Roles: []string{models.RoleMember}}).IsAdmin())
}

func TestMeetsTier(t *testing.T) {
	tests := []struct {
		name     string
		user     models.SubscriptionTier
		required models.SubscriptionTier
		want     bool
	}{
		{"equal tier passes", models.TierBasic, models.TierBasic, true},
		{"higher tier passes", models.TierEnterprise, models.TierPremium, true},
		{"lower tier fails", models.TierFree, models.TierBasic, false},
		{"unknown user tier ranks lowest", models.SubscriptionTier("gold"), models.TierBasic, false},
		{"unknown user tier still meets free", models.SubscriptionTier("gold"), models.TierFree, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MeetsTier(tt.user, tt.required))
		})
	}
}

func TestRoleCache_EvictsLeastRecentlyUsed(t *testing.T) {
	cache := NewRoleCache(2, time.Minute)
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	cache.Set(a, []*models.Role{makeRole("a")})
	cache.Set(b, []*models.Role{makeRole("b")})

	// Touch a so b becomes the eviction candidate.
	_, ok := cache.Get(a)
	require.True(t, ok)

	cache.Set(c, []*models.Role{makeRole("c")})

	_, ok = cache.Get(b)
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok = cache.Get(a)
	assert.True(t, ok)
	_, ok = cache.Get(c)
	assert.True(t, ok)
}

func TestRoleCache_ExpiredEntryIsMiss(t *testing.T) {
	cache := NewRoleCache(10, time.Nanosecond)
	userID := uuid.New()

	cache.Set(userID, []*models.Role{makeRole("a")})
	time.Sleep(2 * time.Millisecond)

	_, ok := cache.Get(userID)
	assert.False(t, ok)

	stats := cache.Stats()
	assert.Equal(t, 0, stats.Size)
	assert.Equal(t, uint64(1), stats.Misses)
}
