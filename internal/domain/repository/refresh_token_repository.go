package repository

import (
	"context"

	"pulse/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Domain-specific errors for refresh token persistence.
var (
	// ErrRefreshTokenNotFound is returned when a refresh token record is not found.
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	// ErrRefreshTokenUsed is returned by MarkUsed when the record was already used.
	ErrRefreshTokenUsed = errors.New("refresh token already used")
)

// RefreshTokenRepository is the durable ledger of issued refresh credentials.
// Records are never deleted individually; they are bulk-deleted per identity
// on logout or theft response.
type RefreshTokenRepository interface {
	// Create persists a new refresh token record.
	Create(ctx context.Context, token *entity.RefreshToken) error

	// FindByID retrieves a record by its unique ID.
	FindByID(ctx context.Context, id uuid.UUID) (*entity.RefreshToken, error)

	// FindByIdentityID retrieves all records owned by an identity, newest
	// first. The rotation protocol scans these for a hash match; no lookup by
	// plaintext or by hash value exists by design.
	FindByIdentityID(ctx context.Context, identityID uuid.UUID) ([]*entity.RefreshToken, error)

	// MarkUsed flips the used flag with a conditional update (used=false
	// required). Returns ErrRefreshTokenUsed when the flag was already set,
	// which the rotation protocol treats as a lost race, i.e. reuse.
	MarkUsed(ctx context.Context, id uuid.UUID) error

	// Revoke stamps the revocation time. First write wins.
	Revoke(ctx context.Context, id uuid.UUID) error

	// DeleteByIdentityID removes every record owned by an identity. Used by
	// logout and by the theft-response cascade.
	DeleteByIdentityID(ctx context.Context, identityID uuid.UUID) error

	// DeleteExpired removes all records whose expiry has passed.
	DeleteExpired(ctx context.Context) error

	// CountActiveByIdentityID returns the number of live (unused, unexpired,
	// unrevoked) records for an identity.
	CountActiveByIdentityID(ctx context.Context, identityID uuid.UUID) (int, error)
}
