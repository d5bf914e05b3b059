package usecase

import (
	"context"
	"time"

	"pulse/internal/domain/entity"

	"github.com/google/uuid"
)

// SessionInfo is the public projection of a device session.
type SessionInfo struct {
	ID         uuid.UUID `json:"id"`
	IdentityID uuid.UUID `json:"identity_id"`
	DeviceID   string    `json:"device_id,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	IsActive   bool      `json:"is_active"`
}

// SessionUsecase is a thin coordination layer over the refresh-token ledger
// and the session registry. It carries no invariants beyond what the rotation
// protocol already requires of the two stores.
type SessionUsecase interface {
	// CreateSession opens a session for an identity, linked to the refresh
	// token record created in the same issuance.
	CreateSession(ctx context.Context, identityID, refreshTokenID uuid.UUID, meta entity.DeviceMetadata, expiresAt time.Time) (*entity.Session, error)

	// FindSessionByRefreshToken resolves the session backed by a refresh
	// token record.
	FindSessionByRefreshToken(ctx context.Context, refreshTokenID uuid.UUID) (*entity.Session, error)

	// MarkRefreshTokenUsed flips a ledger record's used flag (compare-and-set).
	MarkRefreshTokenUsed(ctx context.Context, refreshTokenID uuid.UUID) error

	// TouchSession advances a session's last-used time and expiry horizon and
	// re-points it at the new chain head.
	TouchSession(ctx context.Context, sessionID, refreshTokenID uuid.UUID, expiresAt time.Time) error

	// GetActiveSessions lists non-expired sessions for an identity.
	GetActiveSessions(ctx context.Context, identityID uuid.UUID) ([]*SessionInfo, error)

	// RevokeAllSessions destroys every session and refresh record for an identity.
	RevokeAllSessions(ctx context.Context, identityID uuid.UUID) error

	// CleanupExpired sweeps expired sessions, refresh records and revocation
	// entries. Scheduling is the caller's concern.
	CleanupExpired(ctx context.Context) error
}
