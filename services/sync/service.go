package sync

import (
	"context"
	"errors"
	"time"

	"github.com/upb/identity-gateway/identity"
	"github.com/upb/identity-gateway/models"
	"github.com/upb/identity-gateway/repositories"
	"github.com/upb/identity-gateway/services"
	"go.uber.org/zap"
)

// Service reconciles verified provider claims with the local identity store.
// Rows are created lazily on first sight; repeated syncs with the same
// claims are idempotent and always resolve to the same row.
type Service struct {
	users  repositories.UserRepository
	tx     repositories.TransactionManager
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new synchronizer
func NewService(users repositories.UserRepository, tx repositories.TransactionManager, logger *zap.Logger) *Service {
	return &Service{
		users:  users,
		tx:     tx,
		logger: logger,
		now:    time.Now,
	}
}

// SyncAndFetch resolves claims to a local identity. Lookup order:
//
//  1. by subject ID — the common case after first sight;
//  2. by case-insensitive email — backfills the subject onto a row that
//     predates the current provider (same person, migrated provider);
//  3. insert a new row on the free tier.
//
// The insert runs under unique constraints on subject_id and lower(email).
// A constraint violation means a concurrent request won the race; the loser
// re-selects and proceeds as "found".
func (s *Service) SyncAndFetch(ctx context.Context, claims *identity.ExternalClaims) (*models.User, error) {
	user, err := s.users.GetBySubject(ctx, claims.SubjectID)
	switch {
	case err == nil:
		return s.refresh(ctx, user, claims)
	case !errors.Is(err, repositories.ErrNotFound):
		return nil, services.WrapOperational("subject lookup failed", err)
	}

	if claims.Email != "" {
		user, err = s.users.GetByEmail(ctx, claims.Email)
		switch {
		case err == nil:
			if err := s.backfillSubject(ctx, user, claims); err != nil {
				if errors.Is(err, repositories.ErrSubjectConflict) {
					// The email belongs to a row already linked to another
					// subject. Re-linking is an explicit flow, not sync's.
					s.logger.Warn("email belongs to a different subject",
						zap.String("user_id", user.ID.String()))
					return nil, services.NewDomainError(services.ErrorTypeClient,
						"identity conflict", err)
				}
				return nil, services.WrapOperational("subject backfill failed", err)
			}
			return s.refresh(ctx, user, claims)
		case !errors.Is(err, repositories.ErrNotFound):
			return nil, services.WrapOperational("email lookup failed", err)
		}
	}

	created := models.NewUser(claims.Email, claims.DisplayName, claims.SubjectID, claims.EmailVerified)
	err = s.users.Create(ctx, created)
	if err == nil {
		s.logger.Info("local identity created",
			zap.String("user_id", created.ID.String()),
			zap.String("subject_id", claims.SubjectID))
		return created, nil
	}
	if !errors.Is(err, repositories.ErrDuplicateIdentity) {
		return nil, services.WrapOperational("identity insert failed", err)
	}

	// Lost the first-sight race: a concurrent request inserted the row
	// between our lookups and our insert. The winner's row is canonical.
	return s.refetchAfterRace(ctx, claims)
}

// backfillSubject links the subject onto a row that predates the current
// provider, and lifts the verified flag in the same transaction when the
// provider reports verified. Either both writes land or neither does: a
// half-migrated row would verify an email the provider never attested for
// this subject.
func (s *Service) backfillSubject(ctx context.Context, user *models.User, claims *identity.ExternalClaims) error {
	err := s.tx.InTransaction(ctx, func(txCtx context.Context, _ repositories.Transaction) error {
		if err := s.users.LinkSubject(txCtx, user.ID, claims.SubjectID); err != nil {
			return err
		}
		if claims.EmailVerified && !user.IsVerified {
			return s.users.SetVerified(txCtx, user.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	subjectID := claims.SubjectID
	user.SubjectID = &subjectID
	if claims.EmailVerified {
		user.IsVerified = true
	}
	return nil
}

// refresh applies per-request updates to a resolved row: last_activity on
// every sync, and the verified flag when the provider now reports verified.
// The flag only ever moves upward here.
func (s *Service) refresh(ctx context.Context, user *models.User, claims *identity.ExternalClaims) (*models.User, error) {
	if claims.EmailVerified && !user.IsVerified {
		if err := s.users.SetVerified(ctx, user.ID); err != nil {
			return nil, services.WrapOperational("verified flag update failed", err)
		}
		user.IsVerified = true
	}

	at := s.now()
	if err := s.users.TouchActivity(ctx, user.ID, at); err != nil {
		// Activity tracking is best effort; the sync itself succeeded.
		s.logger.Warn("failed to touch last_activity",
			zap.String("user_id", user.ID.String()), zap.Error(err))
	} else {
		user.LastActivity = at
	}

	return user, nil
}

func (s *Service) refetchAfterRace(ctx context.Context, claims *identity.ExternalClaims) (*models.User, error) {
	user, err := s.users.GetBySubject(ctx, claims.SubjectID)
	if err == nil {
		return s.refresh(ctx, user, claims)
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, services.WrapOperational("post-race subject lookup failed", err)
	}

	// The duplicate was on email: the concurrent insert carried a different
	// subject, or the winning row predates this provider.
	if claims.Email != "" {
		user, err = s.users.GetByEmail(ctx, claims.Email)
		if err == nil {
			return s.refresh(ctx, user, claims)
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			return nil, services.WrapOperational("post-race email lookup failed", err)
		}
	}

	return nil, services.WrapOperational("identity vanished after duplicate insert", nil)
}
