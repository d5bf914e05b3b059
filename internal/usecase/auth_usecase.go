// Package usecase defines the application-facing interfaces and their
// input/output types. The delivery layer depends on these contracts, never on
// the implementations.
package usecase

import (
	"context"
	"time"

	"pulse/internal/domain/entity"

	"github.com/google/uuid"
)

// LoginInput carries the values extracted from an authorization-code callback.
type LoginInput struct {
	Code     string `json:"code" validate:"required"`
	Verifier string `json:"code_verifier" validate:"required"`
	Device   entity.DeviceMetadata
}

// IdentityView is the public projection of an identity, safe to return to callers.
type IdentityView struct {
	ID     uuid.UUID `json:"id"`
	Email  string    `json:"email"`
	Name   string    `json:"name"`
	Roles  []string  `json:"roles"`
	Active bool      `json:"active"`
}

// LoginOutput is the result of a successful login.
type LoginOutput struct {
	Identity            *IdentityView `json:"identity"`
	AccessToken         string        `json:"access_token"`
	RefreshToken        string        `json:"refresh_token"`
	AccessExpirySeconds int64         `json:"expires_in"`
}

// RefreshOutput is the result of a successful rotation.
type RefreshOutput struct {
	AccessToken         string `json:"access_token"`
	RefreshToken        string `json:"refresh_token"`
	AccessExpirySeconds int64  `json:"expires_in"`
}

// LogoutInput identifies whose sessions to destroy. AccessTokenID, when set,
// is the presenting access credential's identifier so it can be revoked for
// the remainder of its lifetime.
type LogoutInput struct {
	IdentityID      uuid.UUID
	AccessTokenID   uuid.UUID
	AccessExpiresAt time.Time
}

// AuthorizedIdentity is the access gate's successful result: the resolved
// identity plus the verified credential's identifier for later revocation.
type AuthorizedIdentity struct {
	Identity  *IdentityView
	TokenID   uuid.UUID
	ExpiresAt time.Time
}

// AuthUsecase drives the credential lifecycle: provider login, rotation with
// theft detection, logout and the per-request access gate.
type AuthUsecase interface {
	// Login exchanges an authorization code for a local credential pair,
	// creating or synchronizing the identity and opening a session.
	Login(ctx context.Context, input *LoginInput) (*LoginOutput, error)

	// Refresh rotates a refresh credential: single-use, reuse triggers the
	// theft-response cascade before ErrTokenTheftDetected is returned.
	Refresh(ctx context.Context, rawRefreshToken string) (*RefreshOutput, error)

	// Logout revokes all sessions and deletes all refresh records for the identity.
	Logout(ctx context.Context, input *LogoutInput) error

	// Authorize validates a bearer access credential for a request. Public
	// operations pass without checks and without an attached identity.
	Authorize(ctx context.Context, rawAccessToken string, isPublic bool) (*AuthorizedIdentity, error)
}
