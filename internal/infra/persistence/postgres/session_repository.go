package postgres

import (
	"context"
	"time"

	"pulse/internal/domain/entity"
	domainerrors "pulse/internal/domain/errors"
	"pulse/internal/domain/repository"
	"pulse/internal/infra/persistence/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// sessionRepository implements the domain's SessionRepository interface.
type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository is the constructor for sessionRepository.
func NewSessionRepository(db *gorm.DB) repository.SessionRepository {
	return &sessionRepository{db: db}
}

// Create persists a new session record.
func (repo *sessionRepository) Create(ctx context.Context, session *entity.Session) error {
	sessionM := fromSessionDomain(session)
	if sessionM.LastUsedAt.IsZero() {
		sessionM.LastUsedAt = time.Now()
	}

	if err := repo.db.WithContext(ctx).Create(sessionM).Error; err != nil {
		if isForeignKeyConstraintViolation(err) {
			return domainerrors.ErrValidationFailed.WrapMessage("invalid identity reference")
		}

		return domainerrors.NewDatabaseExecuteError(err, "failed to create session")
	}

	session.ID = sessionM.ID
	session.CreatedAt = sessionM.CreatedAt
	session.LastUsedAt = sessionM.LastUsedAt

	return nil
}

// FindByID retrieves a session by its unique ID.
func (repo *sessionRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Session, error) {
	var sessionM model.SessionModel
	if err := repo.db.WithContext(ctx).Where("id = ?", id).First(&sessionM).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrSessionNotFound
		}

		return nil, errors.WithStack(err)
	}

	return toSessionDomain(&sessionM), nil
}

// FindByRefreshTokenID retrieves the session currently backed by the given
// refresh token record.
func (repo *sessionRepository) FindByRefreshTokenID(ctx context.Context, refreshTokenID uuid.UUID) (*entity.Session, error) {
	var sessionM model.SessionModel
	if err := repo.db.WithContext(ctx).Where("refresh_token_id = ?", refreshTokenID).First(&sessionM).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrSessionNotFound
		}

		return nil, errors.WithStack(err)
	}

	return toSessionDomain(&sessionM), nil
}

// FindActiveByIdentityID retrieves all non-expired sessions for an identity,
// most recently used first.
func (repo *sessionRepository) FindActiveByIdentityID(ctx context.Context, identityID uuid.UUID) ([]*entity.Session, error) {
	var sessionModels []model.SessionModel
	err := repo.db.WithContext(ctx).
		Where("identity_id = ? AND expires_at > ?", identityID, time.Now()).
		Order("last_used_at DESC").
		Find(&sessionModels).Error
	if err != nil {
		return nil, errors.WithStack(err)
	}

	sessions := make([]*entity.Session, 0, len(sessionModels))
	for i := range sessionModels {
		sessions = append(sessions, toSessionDomain(&sessionModels[i]))
	}

	return sessions, nil
}

// Update modifies an existing session.
func (repo *sessionRepository) Update(ctx context.Context, session *entity.Session) error {
	sessionM := fromSessionDomain(session)

	result := repo.db.WithContext(ctx).
		Model(&model.SessionModel{}).
		Where("id = ?", sessionM.ID).
		Updates(map[string]any{
			"refresh_token_id": sessionM.RefreshTokenID,
			"expires_at":       sessionM.ExpiresAt,
			"last_used_at":     sessionM.LastUsedAt,
		})
	if result.Error != nil {
		return errors.WithStack(result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrSessionNotFound
	}

	return nil
}

// DeleteByIdentityID removes every session owned by an identity.
func (repo *sessionRepository) DeleteByIdentityID(ctx context.Context, identityID uuid.UUID) error {
	err := repo.db.WithContext(ctx).
		Where("identity_id = ?", identityID).
		Delete(&model.SessionModel{}).Error
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// DeleteExpired removes all sessions whose expiry has passed.
func (repo *sessionRepository) DeleteExpired(ctx context.Context) error {
	err := repo.db.WithContext(ctx).
		Where("expires_at < ?", time.Now()).
		Delete(&model.SessionModel{}).Error
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// --- Mapper Functions ---

// toSessionDomain converts a GORM SessionModel to a domain Session entity.
func toSessionDomain(data *model.SessionModel) *entity.Session {
	if data == nil {
		return nil
	}

	return &entity.Session{
		ID:             data.ID,
		IdentityID:     data.IdentityID,
		RefreshTokenID: data.RefreshTokenID,
		DeviceID:       data.DeviceID,
		UserAgent:      data.UserAgent,
		IPAddress:      data.IPAddress,
		ExpiresAt:      data.ExpiresAt,
		CreatedAt:      data.CreatedAt,
		LastUsedAt:     data.LastUsedAt,
	}
}

// fromSessionDomain converts a domain Session entity to a GORM SessionModel.
func fromSessionDomain(data *entity.Session) *model.SessionModel {
	if data == nil {
		return nil
	}

	return &model.SessionModel{
		ID:             data.ID,
		IdentityID:     data.IdentityID,
		RefreshTokenID: data.RefreshTokenID,
		DeviceID:       data.DeviceID,
		UserAgent:      data.UserAgent,
		IPAddress:      data.IPAddress,
		ExpiresAt:      data.ExpiresAt,
		CreatedAt:      data.CreatedAt,
		LastUsedAt:     data.LastUsedAt,
	}
}
