package repository

import (
	"context"

	"pulse/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrSessionNotFound is returned when a session record is not found.
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository is the registry of per-device sessions. Sessions are
// owned by the issuing identity and deleted en masse on logout or theft
// response; individual expiry is handled by the sweep.
type SessionRepository interface {
	// Create persists a new session record.
	Create(ctx context.Context, session *entity.Session) error

	// FindByID retrieves a session by its unique ID.
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Session, error)

	// FindByRefreshTokenID retrieves the session currently backed by the given
	// refresh token record.
	FindByRefreshTokenID(ctx context.Context, refreshTokenID uuid.UUID) (*entity.Session, error)

	// FindActiveByIdentityID retrieves all non-expired sessions for an identity.
	FindActiveByIdentityID(ctx context.Context, identityID uuid.UUID) ([]*entity.Session, error)

	// Update modifies an existing session (last-used, expiry, chain head).
	Update(ctx context.Context, session *entity.Session) error

	// DeleteByIdentityID removes every session owned by an identity.
	DeleteByIdentityID(ctx context.Context, identityID uuid.UUID) error

	// DeleteExpired removes all sessions whose expiry has passed.
	DeleteExpired(ctx context.Context) error
}
