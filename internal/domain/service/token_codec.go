// Package service defines interfaces for core, stateless domain logic.
// These services encapsulate business rules that don't naturally fit within a single entity.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Claims is the verified payload of an issued credential. Both halves of a
// credential pair carry the subject, the role snapshot taken at issuance and
// their own unique token identifier.
type Claims struct {
	IdentityID uuid.UUID // Subject: the identity the credential was issued to.
	Roles      []string  // Role snapshot at issuance time.
	TokenID    uuid.UUID // Unique identifier ("jti") of this specific credential.
	TokenType  string    // "access" or "refresh".
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// CredentialPair is the ephemeral result of issuing a pair; neither raw value
// is ever persisted.
type CredentialPair struct {
	AccessToken         string
	RefreshToken        string
	AccessExpirySeconds int64
}

// TokenCodec creates and verifies signed credential payloads, independent of
// storage. Verification additionally consults the revocation store for the
// credential's unique identifier.
type TokenCodec interface {
	// Issue creates a signed access/refresh pair for an identity with the
	// given role snapshot. Each credential gets its own token identifier,
	// signature and embedded expiry.
	Issue(identityID uuid.UUID, roles []string) (*CredentialPair, error)

	// VerifyAccess checks signature, expiry, token type and revocation of an
	// access credential.
	VerifyAccess(ctx context.Context, raw string) (*Claims, error)

	// VerifyRefresh checks signature, expiry, token type and revocation of a
	// refresh credential.
	VerifyRefresh(ctx context.Context, raw string) (*Claims, error)

	// Decode parses a credential without verification. For non-trust-sensitive
	// inspection only.
	Decode(raw string) (*Claims, error)

	// RevokeByID adds a token identifier to the revocation store. Idempotent.
	RevokeByID(ctx context.Context, tokenID uuid.UUID, expiresAt time.Time) error

	// RefreshTokenDuration returns the configured refresh credential lifetime,
	// which is also the expiry horizon of new ledger records and sessions.
	RefreshTokenDuration() time.Duration
}
