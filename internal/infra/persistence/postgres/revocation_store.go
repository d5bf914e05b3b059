package postgres

import (
	"context"
	"time"

	"pulse/internal/domain/service"
	"pulse/internal/infra/persistence/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// revocationStore is the durable implementation of the RevocationStore
// interface. Entries live in the revoked_tokens table so revocations survive
// restarts and are visible to every serving instance sharing the database.
type revocationStore struct {
	db *gorm.DB
}

// NewRevocationStore is the constructor for revocationStore.
func NewRevocationStore(db *gorm.DB) service.RevocationStore {
	return &revocationStore{db: db}
}

// Revoke records a token identifier as revoked until expiresAt. Re-revoking
// the same identifier is a no-op, making the operation idempotent.
func (s *revocationStore) Revoke(ctx context.Context, tokenID uuid.UUID, expiresAt time.Time) error {
	entry := &model.RevokedTokenModel{
		TokenID:   tokenID,
		ExpiresAt: expiresAt,
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(entry).Error
	if err != nil {
		return errors.Wrap(err, "failed to store revocation")
	}

	return nil
}

// IsRevoked reports whether a token identifier is currently revoked.
func (s *revocationStore) IsRevoked(ctx context.Context, tokenID uuid.UUID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.RevokedTokenModel{}).
		Where("token_id = ? AND expires_at > ?", tokenID, time.Now()).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "failed to check revocation")
	}

	return count > 0, nil
}

// PurgeExpired drops entries whose expiry has passed.
func (s *revocationStore) PurgeExpired(ctx context.Context) error {
	err := s.db.WithContext(ctx).
		Where("expires_at < ?", time.Now()).
		Delete(&model.RevokedTokenModel{}).Error
	if err != nil {
		return errors.Wrap(err, "failed to purge expired revocations")
	}

	return nil
}
