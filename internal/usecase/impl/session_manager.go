package impl

import (
	"context"
	"log/slog"
	"time"

	deliverycontext "pulse/internal/delivery/context"
	"pulse/internal/domain/entity"
	domainerrors "pulse/internal/domain/errors"
	"pulse/internal/domain/repository"
	"pulse/internal/domain/service"
	"pulse/internal/usecase"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// sessionManager implements the SessionUsecase interface.
type sessionManager struct {
	txManager       repository.TransactionManager
	revocationStore service.RevocationStore
	logger          *slog.Logger
}

// SessionManagerParams holds dependencies for sessionManager, injected by Fx.
type SessionManagerParams struct {
	fx.In

	TxManager       repository.TransactionManager
	RevocationStore service.RevocationStore
	Logger          *slog.Logger
}

// NewSessionManager is the constructor for sessionManager.
func NewSessionManager(params SessionManagerParams) usecase.SessionUsecase {
	return &sessionManager{
		txManager:       params.TxManager,
		revocationStore: params.RevocationStore,
		logger:          params.Logger,
	}
}

// log returns a request-scoped logger if available, otherwise falls back to the service's logger.
func (srv *sessionManager) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

// CreateSession opens a session linked to a refresh token record.
func (srv *sessionManager) CreateSession(ctx context.Context, identityID, refreshTokenID uuid.UUID, meta entity.DeviceMetadata, expiresAt time.Time) (*entity.Session, error) {
	srv.log(ctx).Debug("Creating session", slog.Any("identityID", identityID))

	session, err := entity.NewSession(identityID, refreshTokenID, meta, expiresAt)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build session")
	}

	err = srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		return repoFactory.SessionRepo().Create(ctx, session)
	})
	if err != nil {
		srv.log(ctx).Error("Failed to create session", slog.Any("error", err), slog.Any("identityID", identityID))

		return nil, errors.Wrap(err, "failed to create session")
	}

	return session, nil
}

// FindSessionByRefreshToken resolves the session backed by a refresh token record.
func (srv *sessionManager) FindSessionByRefreshToken(ctx context.Context, refreshTokenID uuid.UUID) (*entity.Session, error) {
	var session *entity.Session

	err := srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		found, err := repoFactory.SessionRepo().FindByRefreshTokenID(ctx, refreshTokenID)
		if err != nil {
			if errors.Is(err, repository.ErrSessionNotFound) {
				return errors.Wrap(domainerrors.ErrNotFound, "session not found")
			}

			return errors.Wrap(err, "failed to find session")
		}
		session = found

		return nil
	})
	if err != nil {
		return nil, err
	}

	return session, nil
}

// MarkRefreshTokenUsed flips a ledger record's used flag. The repository
// performs a compare-and-set so a second caller observes ErrRefreshTokenUsed.
func (srv *sessionManager) MarkRefreshTokenUsed(ctx context.Context, refreshTokenID uuid.UUID) error {
	err := srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		return repoFactory.RefreshTokenRepo().MarkUsed(ctx, refreshTokenID)
	})
	if err != nil {
		srv.log(ctx).Warn("Failed to mark refresh token used", slog.Any("error", err), slog.Any("tokenID", refreshTokenID))

		return errors.Wrap(err, "failed to mark refresh token used")
	}

	return nil
}

// TouchSession advances a session's last-used time, re-points it at the new
// chain head and extends its expiry horizon.
func (srv *sessionManager) TouchSession(ctx context.Context, sessionID, refreshTokenID uuid.UUID, expiresAt time.Time) error {
	err := srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		sessionRepo := repoFactory.SessionRepo()

		session, err := sessionRepo.FindByID(ctx, sessionID)
		if err != nil {
			if errors.Is(err, repository.ErrSessionNotFound) {
				return errors.Wrap(domainerrors.ErrNotFound, "session not found")
			}

			return errors.Wrap(err, "failed to find session")
		}

		session.RefreshTokenID = refreshTokenID
		session.ExpiresAt = expiresAt
		session.Touch(time.Now())

		return sessionRepo.Update(ctx, session)
	})
	if err != nil {
		srv.log(ctx).Warn("Failed to touch session", slog.Any("error", err), slog.Any("sessionID", sessionID))

		return errors.Wrap(err, "failed to touch session")
	}

	return nil
}

// GetActiveSessions lists the non-expired sessions for an identity so callers
// can show where they are signed in.
func (srv *sessionManager) GetActiveSessions(ctx context.Context, identityID uuid.UUID) ([]*usecase.SessionInfo, error) {
	srv.log(ctx).Debug("Getting active sessions", slog.Any("identityID", identityID))

	var infos []*usecase.SessionInfo

	err := srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		if _, err := repoFactory.IdentityRepo().FindByID(ctx, identityID); err != nil {
			if errors.Is(err, repository.ErrIdentityNotFound) {
				return errors.Wrap(domainerrors.ErrUserNotFound, "identity not found")
			}

			return errors.Wrap(err, "failed to find identity")
		}

		sessions, err := repoFactory.SessionRepo().FindActiveByIdentityID(ctx, identityID)
		if err != nil {
			return errors.Wrap(err, "failed to find sessions")
		}

		now := time.Now()
		for _, session := range sessions {
			infos = append(infos, &usecase.SessionInfo{
				ID:         session.ID,
				IdentityID: session.IdentityID,
				DeviceID:   session.DeviceID,
				UserAgent:  session.UserAgent,
				IPAddress:  session.IPAddress,
				CreatedAt:  session.CreatedAt,
				ExpiresAt:  session.ExpiresAt,
				LastUsedAt: session.LastUsedAt,
				IsActive:   session.IsActive(now),
			})
		}

		return nil
	})
	if err != nil {
		srv.log(ctx).Error("Failed to get active sessions", slog.Any("error", err), slog.Any("identityID", identityID))

		return nil, err
	}
	srv.log(ctx).Debug("Retrieved active sessions", slog.Any("identityID", identityID), slog.Int("count", len(infos)))

	return infos, nil
}

// RevokeAllSessions destroys every session and refresh record for an identity.
func (srv *sessionManager) RevokeAllSessions(ctx context.Context, identityID uuid.UUID) error {
	srv.log(ctx).Info("Revoking all sessions", slog.Any("identityID", identityID))

	err := srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		if _, err := repoFactory.IdentityRepo().FindByID(ctx, identityID); err != nil {
			if errors.Is(err, repository.ErrIdentityNotFound) {
				return errors.Wrap(domainerrors.ErrUserNotFound, "identity not found")
			}

			return errors.Wrap(err, "failed to find identity")
		}

		if err := repoFactory.SessionRepo().DeleteByIdentityID(ctx, identityID); err != nil {
			return errors.Wrap(err, "failed to delete sessions")
		}

		return errors.Wrap(repoFactory.RefreshTokenRepo().DeleteByIdentityID(ctx, identityID), "failed to delete refresh tokens")
	})
	if err != nil {
		srv.log(ctx).Error("Failed to revoke all sessions", slog.Any("error", err), slog.Any("identityID", identityID))

		return err
	}
	srv.log(ctx).Info("Revoked all sessions", slog.Any("identityID", identityID))

	return nil
}

// CleanupExpired sweeps expired sessions and refresh records, then purges
// dead entries from the revocation store. Invoked periodically by the
// maintenance worker.
func (srv *sessionManager) CleanupExpired(ctx context.Context) error {
	srv.log(ctx).Info("Cleaning up expired sessions and refresh tokens")

	err := srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		if err := repoFactory.SessionRepo().DeleteExpired(ctx); err != nil {
			return errors.Wrap(err, "failed to delete expired sessions")
		}

		return errors.Wrap(repoFactory.RefreshTokenRepo().DeleteExpired(ctx), "failed to delete expired refresh tokens")
	})
	if err != nil {
		srv.log(ctx).Error("Failed to cleanup expired records", slog.Any("error", err))

		return err
	}

	if err := srv.revocationStore.PurgeExpired(ctx); err != nil {
		srv.log(ctx).Warn("Failed to purge revocation store", slog.Any("error", err))

		return errors.Wrap(err, "failed to purge revocation store")
	}

	return nil
}
