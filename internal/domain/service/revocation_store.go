package service

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RevocationStore tracks revoked access-credential identifiers until their
// embedded expiry passes. Implementations must be safe for concurrent use;
// the durable implementation shares state across serving instances, the
// in-memory one is for development and tests.
type RevocationStore interface {
	// Revoke records a token identifier as revoked until expiresAt. Idempotent.
	Revoke(ctx context.Context, tokenID uuid.UUID, expiresAt time.Time) error

	// IsRevoked reports whether a token identifier is currently revoked.
	IsRevoked(ctx context.Context, tokenID uuid.UUID) (bool, error)

	// PurgeExpired drops entries whose expiry has passed.
	PurgeExpired(ctx context.Context) error
}
