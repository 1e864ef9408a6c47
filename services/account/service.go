package account

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/upb/identity-gateway/identity"
	"github.com/upb/identity-gateway/models"
	"github.com/upb/identity-gateway/repositories"
	"github.com/upb/identity-gateway/services"
	"github.com/upb/identity-gateway/services/audit"
	"go.uber.org/zap"
)

// Service handles account lifecycle operations that span the identity
// provider and the local store.
type Service struct {
	users    repositories.UserRepository
	provider identity.Provider
	auditor  *audit.Service
	logger   *zap.Logger
}

// NewService creates a new account service.
func NewService(users repositories.UserRepository, provider identity.Provider, auditor *audit.Service, logger *zap.Logger) *Service {
	return &Service{
		users:    users,
		provider: provider,
		auditor:  auditor,
		logger:   logger,
	}
}

// Delete removes an account, provider side first. Ordering matters: if the
// local row went first and the provider delete then failed, the subject
// could re-authenticate and resurrect a fresh row. The reverse partial
// failure leaves an orphaned local row, which is recorded as an incomplete
// deletion and surfaced so the operation can be retried.
//
// A subject already absent at the provider counts as deleted there.
func (s *Service) Delete(ctx context.Context, userID uuid.UUID, ipAddress, userAgent string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.ErrUserNotFound
		}
		return services.WrapOperational("user lookup failed", err)
	}

	if user.HasSubject() {
		err = s.provider.AdminDelete(ctx, *user.SubjectID)
		switch {
		case err == nil:
		case errors.Is(err, identity.ErrSubjectNotFound):
			s.logger.Info("subject already absent at provider",
				zap.String("user_id", userID.String()))
		default:
			return services.WrapOperational("provider deletion failed", err)
		}
	}

	if err := s.users.Delete(ctx, userID); err != nil {
		// Provider side is gone but the local row remains. Token auth for
		// this subject now fails closed; the leftover row needs cleanup.
		s.logger.Error("local deletion failed after provider deletion",
			zap.String("user_id", userID.String()), zap.Error(err))
		if s.auditor != nil {
			s.auditor.RecordRejection(models.EventAccountDeletionIncomplete,
				&userID, nil, ipAddress, userAgent,
				map[string]string{"stage": "local_delete"})
		}
		return services.WrapOperational("local deletion failed", err)
	}

	s.logger.Info("account deleted", zap.String("user_id", userID.String()))
	if s.auditor != nil {
		s.auditor.RecordRejection(models.EventAccountDeleted,
			&userID, nil, ipAddress, userAgent, nil)
	}
	return nil
}
