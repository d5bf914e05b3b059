package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Errors for refresh token state transitions.
var (
	// ErrTokenAlreadyUsed is returned when marking an already-rotated token used.
	ErrTokenAlreadyUsed = errors.New("refresh token already used")
	// ErrTokenExpiryNotFuture is returned when a token is created with a non-future expiry.
	ErrTokenExpiryNotFuture = errors.New("refresh token expiry must be in the future")
)

// RefreshToken is the durable record of a single issued refresh credential.
// Only a one-way hash of the raw credential is ever stored. The Used flag and
// RevokedAt are monotonic: once set they are never cleared, which is what
// makes replay of a rotated credential detectable.
type RefreshToken struct {
	ID         uuid.UUID  // The unique ID for this refresh token record.
	IdentityID uuid.UUID  // The owning identity.
	TokenHash  string     // One-way hash of the raw refresh credential.
	Used       bool       // Set exactly once, at rotation; a used token presented again is reuse.
	ExpiresAt  time.Time  // Strictly in the future at creation time.
	CreatedAt  time.Time  // Timestamp of issuance (login or rotation).
	RevokedAt  *time.Time // First-write-wins revocation timestamp; nil while live.
}

// NewRefreshToken creates an unused record for a freshly issued credential hash.
func NewRefreshToken(identityID uuid.UUID, tokenHash string, expiresAt time.Time) (*RefreshToken, error) {
	if !expiresAt.After(time.Now()) {
		return nil, ErrTokenExpiryNotFuture
	}

	return &RefreshToken{
		IdentityID: identityID,
		TokenHash:  tokenHash,
		ExpiresAt:  expiresAt,
	}, nil
}

// MarkUsed transitions the record to used. The transition is one-way; a second
// call reports reuse instead of silently succeeding.
func (t *RefreshToken) MarkUsed() error {
	if t.Used {
		return ErrTokenAlreadyUsed
	}
	t.Used = true

	return nil
}

// Revoke stamps the revocation time. First write wins; later calls are no-ops.
func (t *RefreshToken) Revoke(at time.Time) {
	if t.RevokedAt != nil {
		return
	}
	t.RevokedAt = &at
}

// IsExpired reports whether the record's own expiry has passed at the given time.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsRevoked reports whether the record has been revoked.
func (t *RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}
