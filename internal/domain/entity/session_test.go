package entity

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDeviceMetadata() DeviceMetadata {
	return DeviceMetadata{
		DeviceID:  "device-1",
		UserAgent: "test-agent",
		IPAddress: "203.0.113.7",
	}
}

func TestNewSession(t *testing.T) {
	identityID := uuid.New()
	refreshTokenID := uuid.New()
	expiresAt := time.Now().Add(time.Hour)

	session, err := NewSession(identityID, refreshTokenID, testDeviceMetadata(), expiresAt)

	require.NoError(t, err)
	assert.Equal(t, identityID, session.IdentityID)
	assert.Equal(t, refreshTokenID, session.RefreshTokenID)
	assert.Equal(t, "device-1", session.DeviceID)
	assert.Equal(t, "203.0.113.7", session.IPAddress)
	assert.Equal(t, expiresAt, session.ExpiresAt)

	// A fresh session counts as used at creation time.
	assert.False(t, session.LastUsedAt.IsZero())
	assert.WithinDuration(t, time.Now(), session.LastUsedAt, time.Second)
}

func TestNewSession_ExpiryMustBeFuture(t *testing.T) {
	_, err := NewSession(uuid.New(), uuid.New(), testDeviceMetadata(), time.Now().Add(-time.Second))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSessionExpiryNotFuture))
}

func TestNewSession_IPValidation(t *testing.T) {
	expiresAt := time.Now().Add(time.Hour)

	meta := testDeviceMetadata()
	meta.IPAddress = "not-an-ip"
	_, err := NewSession(uuid.New(), uuid.New(), meta, expiresAt)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidIPAddress))

	// IPv6 and empty are both accepted.
	meta.IPAddress = "2001:db8::1"
	_, err = NewSession(uuid.New(), uuid.New(), meta, expiresAt)
	require.NoError(t, err)

	meta.IPAddress = ""
	_, err = NewSession(uuid.New(), uuid.New(), meta, expiresAt)
	require.NoError(t, err)
}

func TestNewSession_UserAgentTruncated(t *testing.T) {
	meta := testDeviceMetadata()
	meta.UserAgent = strings.Repeat("a", 600)

	session, err := NewSession(uuid.New(), uuid.New(), meta, time.Now().Add(time.Hour))

	require.NoError(t, err)
	assert.Len(t, session.UserAgent, 500)
}

func TestSession_TouchIsMonotonic(t *testing.T) {
	session, err := NewSession(uuid.New(), uuid.New(), testDeviceMetadata(), time.Now().Add(time.Hour))
	require.NoError(t, err)

	later := session.LastUsedAt.Add(time.Minute)
	session.Touch(later)
	assert.Equal(t, later, session.LastUsedAt)

	// Touching with an earlier time never moves it backwards.
	session.Touch(later.Add(-time.Hour))
	assert.Equal(t, later, session.LastUsedAt)
}

func TestSession_IsActive(t *testing.T) {
	expiresAt := time.Now().Add(time.Hour)
	session, err := NewSession(uuid.New(), uuid.New(), testDeviceMetadata(), expiresAt)
	require.NoError(t, err)

	assert.True(t, session.IsActive(expiresAt.Add(-time.Second)))
	assert.False(t, session.IsActive(expiresAt))
}
