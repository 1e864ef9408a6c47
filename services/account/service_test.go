package account

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/identity-gateway/identity"
	"github.com/upb/identity-gateway/models"
	"github.com/upb/identity-gateway/repositories"
	"github.com/upb/identity-gateway/services"
	"go.uber.org/zap"
)

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserRepo) GetBySubject(ctx context.Context, subjectID string) (*models.User, error) {
	args := m.Called(ctx, subjectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserRepo) LinkSubject(ctx context.Context, id uuid.UUID, subjectID string) error {
	return m.Called(ctx, id, subjectID).Error(0)
}

func (m *mockUserRepo) TouchActivity(ctx context.Context, id uuid.UUID, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *mockUserRepo) SetVerified(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockUserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockUserRepo) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) VerifyToken(ctx context.Context, token string) (*identity.ExternalClaims, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.ExternalClaims), args.Error(1)
}

func (m *mockProvider) CreateCustomToken(ctx context.Context, subjectID string, claims map[string]interface{}) (string, error) {
	args := m.Called(ctx, subjectID, claims)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) AdminLookup(ctx context.Context, subjectID string) (*identity.Profile, error) {
	args := m.Called(ctx, subjectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Profile), args.Error(1)
}

func (m *mockProvider) AdminDelete(ctx context.Context, subjectID string) error {
	return m.Called(ctx, subjectID).Error(0)
}

func linkedUser() *models.User {
	return models.NewUser("jordan@example.com", "Jordan", "subject-abc", true)
}

func TestDelete_ProviderFirstThenLocal(t *testing.T) {
	repo := new(mockUserRepo)
	provider := new(mockProvider)
	user := linkedUser()

	repo.On("GetByID", mock.Anything, user.ID).Return(user, nil)
	provider.On("AdminDelete", mock.Anything, "subject-abc").Return(nil)
	repo.On("Delete", mock.Anything, user.ID).Return(nil)

	svc := NewService(repo, provider, nil, zap.NewNop())
	err := svc.Delete(context.Background(), user.ID, "203.0.113.9", "curl/8.0")

	require.NoError(t, err)
	provider.AssertExpectations(t)
	repo.AssertExpectations(t)
}

func TestDelete_SubjectAbsentAtProviderStillDeletesLocally(t *testing.T) {
	repo := new(mockUserRepo)
	provider := new(mockProvider)
	user := linkedUser()

	repo.On("GetByID", mock.Anything, user.ID).Return(user, nil)
	provider.On("AdminDelete", mock.Anything, "subject-abc").Return(identity.ErrSubjectNotFound)
	repo.On("Delete", mock.Anything, user.ID).Return(nil)

	svc := NewService(repo, provider, nil, zap.NewNop())
	err := svc.Delete(context.Background(), user.ID, "", "")

	require.NoError(t, err)
	repo.AssertCalled(t, "Delete", mock.Anything, user.ID)
}

func TestDelete_ProviderFailureLeavesLocalRow(t *testing.T) {
	repo := new(mockUserRepo)
	provider := new(mockProvider)
	user := linkedUser()

	repo.On("GetByID", mock.Anything, user.ID).Return(user, nil)
	provider.On("AdminDelete", mock.Anything, "subject-abc").Return(errors.New("provider down"))

	svc := NewService(repo, provider, nil, zap.NewNop())
	err := svc.Delete(context.Background(), user.ID, "", "")

	require.Error(t, err)
	assert.True(t, services.IsOperationalError(err))
	repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestDelete_LocalFailureAfterProviderSuccessIsSurfaced(t *testing.T) {
	repo := new(mockUserRepo)
	provider := new(mockProvider)
	user := linkedUser()

	repo.On("GetByID", mock.Anything, user.ID).Return(user, nil)
	provider.On("AdminDelete", mock.Anything, "subject-abc").Return(nil)
	repo.On("Delete", mock.Anything, user.ID).Return(errors.New("deadlock"))

	svc := NewService(repo, provider, nil, zap.NewNop())
	err := svc.Delete(context.Background(), user.ID, "", "")

	require.Error(t, err)
	assert.True(t, services.IsOperationalError(err))
}

func TestDelete_UnlinkedUserSkipsProvider(t *testing.T) {
	repo := new(mockUserRepo)
	provider := new(mockProvider)
	user := models.NewUser("jordan@example.com", "Jordan", "", true)

	repo.On("GetByID", mock.Anything, user.ID).Return(user, nil)
	repo.On("Delete", mock.Anything, user.ID).Return(nil)

	svc := NewService(repo, provider, nil, zap.NewNop())
	err := svc.Delete(context.Background(), user.ID, "", "")

	require.NoError(t, err)
	provider.AssertNotCalled(t, "AdminDelete", mock.Anything, mock.Anything)
}

func TestDelete_UnknownUser(t *testing.T) {
	repo := new(mockUserRepo)
	provider := new(mockProvider)
	id := uuid.New()

	repo.On("GetByID", mock.Anything, id).Return(nil, repositories.ErrNotFound)

	svc := NewService(repo, provider, nil, zap.NewNop())
	err := svc.Delete(context.Background(), id, "", "")

	assert.ErrorIs(t, err, services.ErrUserNotFound)
}
