package entity

import (
	"net/netip"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Errors for session creation.
var (
	// ErrInvalidIPAddress is returned when a supplied IP does not parse as IPv4 or IPv6.
	ErrInvalidIPAddress = errors.New("ip address must be valid IPv4 or IPv6")
	// ErrSessionExpiryNotFuture is returned when a session is created with a non-future expiry.
	ErrSessionExpiryNotFuture = errors.New("session expiry must be in the future")
)

const maxUserAgentLength = 500

// Session is a tracked, device-scoped record of a logged-in presence. It is
// created together with a refresh token record but tracked as an independent
// aggregate; RefreshTokenID points at the current head of the rotation chain.
type Session struct {
	ID             uuid.UUID // The unique ID for this session record.
	IdentityID     uuid.UUID // The owning identity.
	RefreshTokenID uuid.UUID // Current refresh token record backing this session.
	DeviceID       string    // Optional caller-supplied device identifier.
	UserAgent      string    // Reported user agent, truncated to 500 characters.
	IPAddress      string    // Optional client IP, validated as IPv4 or IPv6.
	ExpiresAt      time.Time // Strictly in the future at creation.
	CreatedAt      time.Time // Timestamp of when the session was created.
	LastUsedAt     time.Time // Monotonically advanced on each rotation.
}

// DeviceMetadata carries the optional client attributes captured at login.
type DeviceMetadata struct {
	DeviceID  string
	UserAgent string
	IPAddress string
}

// NewSession creates a session for an identity with the supplied device
// metadata. The user agent is truncated rather than rejected; an unparseable
// IP is rejected because it indicates a caller bug, not user input.
func NewSession(identityID, refreshTokenID uuid.UUID, meta DeviceMetadata, expiresAt time.Time) (*Session, error) {
	if !expiresAt.After(time.Now()) {
		return nil, ErrSessionExpiryNotFuture
	}
	if meta.IPAddress != "" {
		if _, err := netip.ParseAddr(meta.IPAddress); err != nil {
			return nil, errors.Wrap(ErrInvalidIPAddress, meta.IPAddress)
		}
	}

	userAgent := meta.UserAgent
	if len(userAgent) > maxUserAgentLength {
		userAgent = userAgent[:maxUserAgentLength]
	}

	return &Session{
		IdentityID:     identityID,
		RefreshTokenID: refreshTokenID,
		DeviceID:       meta.DeviceID,
		UserAgent:      userAgent,
		IPAddress:      meta.IPAddress,
		ExpiresAt:      expiresAt,
		LastUsedAt:     time.Now(),
	}, nil
}

// Touch advances LastUsedAt, never moving it backwards.
func (s *Session) Touch(at time.Time) {
	if at.After(s.LastUsedAt) {
		s.LastUsedAt = at
	}
}

// IsActive reports whether the session is still within its expiry horizon.
func (s *Session) IsActive(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}
