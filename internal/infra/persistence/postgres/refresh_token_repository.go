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

// refreshTokenRepository implements the domain's RefreshTokenRepository interface.
type refreshTokenRepository struct {
	db *gorm.DB
}

// NewRefreshTokenRepository is the constructor for refreshTokenRepository.
func NewRefreshTokenRepository(db *gorm.DB) repository.RefreshTokenRepository {
	return &refreshTokenRepository{db: db}
}

// Create persists a new refresh token record.
func (repo *refreshTokenRepository) Create(ctx context.Context, token *entity.RefreshToken) error {
	tokenM := fromRefreshTokenDomain(token)

	if err := repo.db.WithContext(ctx).Create(tokenM).Error; err != nil {
		// Convert PostgreSQL errors to domain errors
		if isUniqueConstraintViolation(err) {
			return domainerrors.ErrConflict.WrapMessage("refresh token already exists")
		}
		if isForeignKeyConstraintViolation(err) {
			return domainerrors.ErrValidationFailed.WrapMessage("invalid identity reference")
		}

		return domainerrors.NewDatabaseExecuteError(err, "failed to create refresh token")
	}

	// Update the entity with generated values
	token.ID = tokenM.ID
	token.CreatedAt = tokenM.CreatedAt

	return nil
}

// FindByID retrieves a refresh token record by its unique ID.
func (repo *refreshTokenRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.RefreshToken, error) {
	var tokenM model.RefreshTokenModel
	if err := repo.db.WithContext(ctx).Where("id = ?", id).First(&tokenM).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRefreshTokenNotFound
		}

		return nil, errors.WithStack(err)
	}

	return toRefreshTokenDomain(&tokenM), nil
}

// FindByIdentityID retrieves all records owned by an identity, newest first.
// Used and revoked records are included; the rotation protocol needs them to
// distinguish reuse from expiry.
func (repo *refreshTokenRepository) FindByIdentityID(ctx context.Context, identityID uuid.UUID) ([]*entity.RefreshToken, error) {
	var tokenModels []model.RefreshTokenModel
	err := repo.db.WithContext(ctx).
		Where("identity_id = ?", identityID).
		Order("created_at DESC").
		Find(&tokenModels).Error
	if err != nil {
		return nil, errors.WithStack(err)
	}

	tokens := make([]*entity.RefreshToken, 0, len(tokenModels))
	for i := range tokenModels {
		tokens = append(tokens, toRefreshTokenDomain(&tokenModels[i]))
	}

	return tokens, nil
}

// MarkUsed flips the used flag with a conditional update. The WHERE used =
// false clause is the compare-and-set: a concurrent duplicate that lost the
// race affects zero rows and is reported as reuse.
func (repo *refreshTokenRepository) MarkUsed(ctx context.Context, id uuid.UUID) error {
	result := repo.db.WithContext(ctx).
		Model(&model.RefreshTokenModel{}).
		Where("id = ? AND used = ?", id, false).
		Update("used", true)
	if result.Error != nil {
		return errors.WithStack(result.Error)
	}

	if result.RowsAffected == 0 {
		var tokenM model.RefreshTokenModel
		if err := repo.db.WithContext(ctx).Where("id = ?", id).First(&tokenM).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return repository.ErrRefreshTokenNotFound
			}

			return errors.WithStack(err)
		}

		return repository.ErrRefreshTokenUsed
	}

	return nil
}

// Revoke stamps the revocation time. First write wins.
func (repo *refreshTokenRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	result := repo.db.WithContext(ctx).
		Model(&model.RefreshTokenModel{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", time.Now())
	if result.Error != nil {
		return errors.WithStack(result.Error)
	}

	return nil
}

// DeleteByIdentityID removes every record owned by an identity.
func (repo *refreshTokenRepository) DeleteByIdentityID(ctx context.Context, identityID uuid.UUID) error {
	err := repo.db.WithContext(ctx).
		Where("identity_id = ?", identityID).
		Delete(&model.RefreshTokenModel{}).Error
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// DeleteExpired removes all records whose expiry has passed.
func (repo *refreshTokenRepository) DeleteExpired(ctx context.Context) error {
	err := repo.db.WithContext(ctx).
		Where("expires_at < ?", time.Now()).
		Delete(&model.RefreshTokenModel{}).Error
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// CountActiveByIdentityID returns the number of live records for an identity.
func (repo *refreshTokenRepository) CountActiveByIdentityID(ctx context.Context, identityID uuid.UUID) (int, error) {
	var count int64
	err := repo.db.WithContext(ctx).
		Model(&model.RefreshTokenModel{}).
		Where("identity_id = ? AND used = ? AND revoked_at IS NULL AND expires_at > ?", identityID, false, time.Now()).
		Count(&count).Error
	if err != nil {
		return 0, errors.WithStack(err)
	}

	return int(count), nil
}

// --- Mapper Functions ---

// toRefreshTokenDomain converts a GORM RefreshTokenModel to a domain RefreshToken entity.
func toRefreshTokenDomain(data *model.RefreshTokenModel) *entity.RefreshToken {
	if data == nil {
		return nil
	}

	return &entity.RefreshToken{
		ID:         data.ID,
		IdentityID: data.IdentityID,
		TokenHash:  data.TokenHash,
		Used:       data.Used,
		ExpiresAt:  data.ExpiresAt,
		CreatedAt:  data.CreatedAt,
		RevokedAt:  data.RevokedAt,
	}
}

// fromRefreshTokenDomain converts a domain RefreshToken entity to a GORM RefreshTokenModel.
func fromRefreshTokenDomain(data *entity.RefreshToken) *model.RefreshTokenModel {
	if data == nil {
		return nil
	}

	return &model.RefreshTokenModel{
		ID:         data.ID,
		IdentityID: data.IdentityID,
		TokenHash:  data.TokenHash,
		Used:       data.Used,
		ExpiresAt:  data.ExpiresAt,
		CreatedAt:  data.CreatedAt,
		RevokedAt:  data.RevokedAt,
	}
}
