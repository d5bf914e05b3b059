package impl

import (
	"context"
	"testing"
	"time"

	"pulse/internal/domain/constants"
	"pulse/internal/domain/entity"
	domainerrors "pulse/internal/domain/errors"
	"pulse/internal/usecase"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loginInput() *usecase.LoginInput {
	return &usecase.LoginInput{
		Code:     "auth-code",
		Verifier: "pkce-verifier",
		Device: entity.DeviceMetadata{
			DeviceID:  "device-1",
			UserAgent: "test-agent",
			IPAddress: "203.0.113.7",
		},
	}
}

func TestAuthService_Login_FirstLoginCreatesIdentity(t *testing.T) {
	f := newAuthFixture(0)
	ctx := context.Background()

	output, err := f.service.Login(ctx, loginInput())

	require.NoError(t, err)
	require.NotNil(t, output)
	assert.NotEmpty(t, output.AccessToken)
	assert.NotEmpty(t, output.RefreshToken)
	assert.Positive(t, output.AccessExpirySeconds)

	require.Len(t, f.store.identities, 1)
	for _, identity := range f.store.identities {
		assert.Equal(t, "subject-1", identity.ProviderSubject)
		assert.Equal(t, "dana@example.com", identity.Email)
		assert.Equal(t, entity.Roles{entity.RoleEmployee}, identity.Roles)
		assert.True(t, identity.Active)
	}

	require.Len(t, f.store.refreshTokens, 1)
	for _, token := range f.store.refreshTokens {
		assert.False(t, token.Used)
		assert.Equal(t, "hashed:"+output.RefreshToken, token.TokenHash)
	}

	require.Len(t, f.store.sessions, 1)
	for _, session := range f.store.sessions {
		assert.Equal(t, "device-1", session.DeviceID)
		assert.Equal(t, output.Identity.ID, session.IdentityID)
	}

	assert.Equal(t, []string{constants.SecurityEventLogin}, f.publisher.eventTypes())
}

func TestAuthService_Login_ExistingIdentitySyncedWithoutTouchingRoles(t *testing.T) {
	f := newAuthFixture(0)
	ctx := context.Background()

	seeded := f.seedIdentity("subject-1", "old@example.com", "Old Name", entity.Roles{entity.RoleManager, entity.RoleAdmin}, true)

	output, err := f.service.Login(ctx, loginInput())

	require.NoError(t, err)
	assert.Equal(t, seeded.ID, output.Identity.ID)

	identity := f.store.identities[seeded.ID]
	assert.Equal(t, "dana@example.com", identity.Email)
	assert.Equal(t, "Dana", identity.Name)
	assert.Equal(t, entity.Roles{entity.RoleManager, entity.RoleAdmin}, identity.Roles)

	// Only one identity: resolved by subject, not created anew.
	assert.Len(t, f.store.identities, 1)
}

func TestAuthService_Login_ProviderExchangeFailure(t *testing.T) {
	f := newAuthFixture(0)
	f.provider.exchangeErr = errors.New("provider unreachable")

	output, err := f.service.Login(context.Background(), loginInput())

	require.Error(t, err)
	assert.Nil(t, output)
	assert.True(t, errors.Is(err, domainerrors.ErrAuthenticationFailed))
	assert.Empty(t, f.store.identities)
}

func TestAuthService_Login_ProviderValidationFailure(t *testing.T) {
	f := newAuthFixture(0)
	f.provider.validateErr = errors.New("introspection rejected")

	_, err := f.service.Login(context.Background(), loginInput())

	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrAuthenticationFailed))
}

func TestAuthService_Login_DeactivatedIdentity(t *testing.T) {
	f := newAuthFixture(0)
	f.seedIdentity("subject-1", "dana@example.com", "Dana", entity.Roles{entity.RoleEmployee}, false)

	output, err := f.service.Login(context.Background(), loginInput())

	require.Error(t, err)
	assert.Nil(t, output)
	assert.True(t, errors.Is(err, domainerrors.ErrUserDeactivated))
	assert.Empty(t, f.store.refreshTokens)
	assert.Empty(t, f.store.sessions)
}

func TestAuthService_Login_SessionLimitExceeded(t *testing.T) {
	f := newAuthFixture(1)
	ctx := context.Background()

	_, err := f.service.Login(ctx, loginInput())
	require.NoError(t, err)

	output, err := f.service.Login(ctx, loginInput())

	require.Error(t, err)
	assert.Nil(t, output)
	assert.True(t, errors.Is(err, domainerrors.ErrSessionLimitExceeded))
	assert.Len(t, f.store.refreshTokens, 1)
	assert.Len(t, f.store.sessions, 1)
}

func TestAuthService_Login_InternalErrorCoerced(t *testing.T) {
	f := newAuthFixture(0)
	f.identityRepo.createErr = errors.New("connection reset")

	_, err := f.service.Login(context.Background(), loginInput())

	require.Error(t, err)
	// Infrastructure details never leak from the login path.
	assert.True(t, errors.Is(err, domainerrors.ErrAuthenticationFailed))
	assert.False(t, errors.Is(err, domainerrors.ErrUserDeactivated))
}

func TestAuthService_Login_DatabaseErrorCoerced(t *testing.T) {
	f := newAuthFixture(0)
	f.identityRepo.createErr = domainerrors.NewDatabaseExecuteError(errors.New("connection refused"), "insert identity")

	output, err := f.service.Login(context.Background(), loginInput())

	require.Error(t, err)
	assert.Nil(t, output)
	// A storage outage is coerced like any other internal failure.
	assert.True(t, errors.Is(err, domainerrors.ErrAuthenticationFailed))
	var appErr domainerrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, domainerrors.ErrAuthenticationFailed.HTTPCode(), appErr.HTTPCode())
	assert.Equal(t, domainerrors.ErrAuthenticationFailed.ErrorCode(), appErr.ErrorCode())
}

func TestAuthService_Login_ConflictErrorCoerced(t *testing.T) {
	f := newAuthFixture(0)
	f.identityRepo.createErr = domainerrors.ErrConflict.WrapMessage("identity already exists")

	_, err := f.service.Login(context.Background(), loginInput())

	require.Error(t, err)
	// A create race must look like a plain failed login, not a conflict.
	assert.True(t, errors.Is(err, domainerrors.ErrAuthenticationFailed))
	assert.False(t, errors.Is(err, domainerrors.ErrConflict))
}

func TestAuthService_Login_DomainOutcomesNotCoerced(t *testing.T) {
	f := newAuthFixture(0)
	f.identityRepo.createErr = errors.Wrap(domainerrors.ErrUserDeactivated, "stale row")

	_, err := f.service.Login(context.Background(), loginInput())

	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrUserDeactivated))
}

func TestAuthService_Refresh_RotatesCredentials(t *testing.T) {
	f := newAuthFixture(0)
	ctx := context.Background()

	login, err := f.service.Login(ctx, loginInput())
	require.NoError(t, err)

	var oldRecordID uuid.UUID
	for id := range f.store.refreshTokens {
		oldRecordID = id
	}

	output, err := f.service.Refresh(ctx, login.RefreshToken)

	require.NoError(t, err)
	require.NotNil(t, output)
	assert.NotEqual(t, login.RefreshToken, output.RefreshToken)
	assert.NotEqual(t, login.AccessToken, output.AccessToken)

	require.Len(t, f.store.refreshTokens, 2)
	oldRecord := f.store.refreshTokens[oldRecordID]
	require.NotNil(t, oldRecord)
	assert.True(t, oldRecord.Used)

	var newRecord *entity.RefreshToken
	for id, record := range f.store.refreshTokens {
		if id != oldRecordID {
			newRecord = record
		}
	}
	require.NotNil(t, newRecord)
	assert.False(t, newRecord.Used)
	assert.Equal(t, "hashed:"+output.RefreshToken, newRecord.TokenHash)

	// The device session follows the chain head.
	require.Len(t, f.store.sessions, 1)
	for _, session := range f.store.sessions {
		assert.Equal(t, newRecord.ID, session.RefreshTokenID)
		assert.Equal(t, newRecord.ExpiresAt, session.ExpiresAt)
	}
}

func TestAuthService_Refresh_RotatedCredentialRotatesAgain(t *testing.T) {
	f := newAuthFixture(0)
	ctx := context.Background()

	login, err := f.service.Login(ctx, loginInput())
	require.NoError(t, err)

	first, err := f.service.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)

	// The credential produced by a rotation continues the chain.
	second, err := f.service.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// But exactly once: presenting it again is reuse.
	_, err = f.service.Refresh(ctx, first.RefreshToken)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrTokenTheftDetected))
}

func TestAuthService_Refresh_ReuseTriggersTheftCascade(t *testing.T) {
	f := newAuthFixture(0)
	ctx := context.Background()

	login, err := f.service.Login(ctx, loginInput())
	require.NoError(t, err)

	_, err = f.service.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)

	// Presenting the rotated-away credential again is reuse.
	output, err := f.service.Refresh(ctx, login.RefreshToken)

	require.Error(t, err)
	assert.Nil(t, output)
	assert.True(t, errors.Is(err, domainerrors.ErrTokenTheftDetected))

	// The cascade committed: every record and session for the identity is gone.
	assert.Empty(t, f.store.refreshTokens)
	assert.Empty(t, f.store.sessions)

	assert.Contains(t, f.publisher.eventTypes(), constants.SecurityEventTheftDetected)
}

func TestAuthService_Refresh_TheftCascadeKillsOtherDevices(t *testing.T) {
	f := newAuthFixture(0)
	ctx := context.Background()

	first, err := f.service.Login(ctx, loginInput())
	require.NoError(t, err)

	secondInput := loginInput()
	secondInput.Device.DeviceID = "device-2"
	_, err = f.service.Login(ctx, secondInput)
	require.NoError(t, err)

	require.Len(t, f.store.sessions, 2)

	_, err = f.service.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)

	_, err = f.service.Refresh(ctx, first.RefreshToken)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrTokenTheftDetected))

	// Blast radius is the whole identity, not just the offending chain.
	assert.Empty(t, f.store.refreshTokens)
	assert.Empty(t, f.store.sessions)
}

func TestAuthService_Refresh_MalformedToken(t *testing.T) {
	f := newAuthFixture(0)

	output, err := f.service.Refresh(context.Background(), "not-a-token")

	require.Error(t, err)
	assert.Nil(t, output)
	assert.True(t, errors.Is(err, domainerrors.ErrTokenExpired))
}

func TestAuthService_Refresh_UnknownIdentity(t *testing.T) {
	f := newAuthFixture(0)

	// A verifiable credential whose subject has no identity record.
	pair, err := f.codec.Issue(uuid.New(), []string{"employee"})
	require.NoError(t, err)

	_, err = f.service.Refresh(context.Background(), pair.RefreshToken)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrUserNotFound))
}

func TestAuthService_Refresh_DeactivatedIdentity(t *testing.T) {
	f := newAuthFixture(0)
	ctx := context.Background()

	login, err := f.service.Login(ctx, loginInput())
	require.NoError(t, err)

	f.store.identities[login.Identity.ID].Deactivate()

	_, err = f.service.Refresh(ctx, login.RefreshToken)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrUserDeactivated))
}

func TestAuthService_Refresh_NoMatchingRecord(t *testing.T) {
	f := newAuthFixture(0)
	ctx := context.Background()

	login, err := f.service.Login(ctx, loginInput())
	require.NoError(t, err)

	// Wipe the ledger out from under a still-verifiable credential.
	for id := range f.store.refreshTokens {
		delete(f.store.refreshTokens, id)
	}

	_, err = f.service.Refresh(ctx, login.RefreshToken)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrTokenExpired))
}

func TestAuthService_Refresh_RevokedRecord(t *testing.T) {
	f := newAuthFixture(0)
	ctx := context.Background()

	login, err := f.service.Login(ctx, loginInput())
	require.NoError(t, err)

	for _, record := range f.store.refreshTokens {
		record.Revoke(time.Now())
	}

	_, err = f.service.Refresh(ctx, login.RefreshToken)

	require.Error(t, err)
	// Revocation is indistinguishable from expiry to the caller.
	assert.True(t, errors.Is(err, domainerrors.ErrTokenExpired))
	assert.False(t, errors.Is(err, domainerrors.ErrTokenTheftDetected))
}

func TestAuthService_Refresh_ExpiredRecordNotMutated(t *testing.T) {
	f := newAuthFixture(0)
	ctx := context.Background()

	login, err := f.service.Login(ctx, loginInput())
	require.NoError(t, err)

	for _, record := range f.store.refreshTokens {
		record.ExpiresAt = time.Now().Add(-time.Minute)
	}

	_, err = f.service.Refresh(ctx, login.RefreshToken)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrTokenExpired))

	// An expired presentation leaves the ledger untouched.
	for _, record := range f.store.refreshTokens {
		assert.False(t, record.Used)
		assert.False(t, record.IsRevoked())
	}
}

func TestAuthService_Logout_DestroysSessionsAndRevokesAccess(t *testing.T) {
	f := newAuthFixture(0)
	ctx := context.Background()

	login, err := f.service.Login(ctx, loginInput())
	require.NoError(t, err)

	authorized, err := f.service.Authorize(ctx, login.AccessToken, false)
	require.NoError(t, err)

	err = f.service.Logout(ctx, &usecase.LogoutInput{
		IdentityID:      login.Identity.ID,
		AccessTokenID:   authorized.TokenID,
		AccessExpiresAt: authorized.ExpiresAt,
	})

	require.NoError(t, err)
	assert.Empty(t, f.store.refreshTokens)
	assert.Empty(t, f.store.sessions)
	assert.Contains(t, f.publisher.eventTypes(), constants.SecurityEventSessionsRevoke)

	// The presenting access credential is dead for the rest of its lifetime.
	_, err = f.service.Authorize(ctx, login.AccessToken, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrUnauthorized))

	// And the refresh credential no longer has a ledger record.
	_, err = f.service.Refresh(ctx, login.RefreshToken)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrTokenExpired))
}

func TestAuthService_Authorize_Success(t *testing.T) {
	f := newAuthFixture(0)
	ctx := context.Background()

	login, err := f.service.Login(ctx, loginInput())
	require.NoError(t, err)

	authorized, err := f.service.Authorize(ctx, login.AccessToken, false)

	require.NoError(t, err)
	require.NotNil(t, authorized)
	assert.Equal(t, login.Identity.ID, authorized.Identity.ID)
	assert.NotEqual(t, uuid.Nil, authorized.TokenID)
	assert.Equal(t, []string{"employee"}, authorized.Identity.Roles)
}

func TestAuthService_Authorize_PublicOperation(t *testing.T) {
	f := newAuthFixture(0)

	authorized, err := f.service.Authorize(context.Background(), "", true)

	require.NoError(t, err)
	assert.Nil(t, authorized)
}

func TestAuthService_Authorize_MissingToken(t *testing.T) {
	f := newAuthFixture(0)

	_, err := f.service.Authorize(context.Background(), "", false)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrUnauthorized))
}

func TestAuthService_Authorize_RefreshTokenRejected(t *testing.T) {
	f := newAuthFixture(0)
	ctx := context.Background()

	login, err := f.service.Login(ctx, loginInput())
	require.NoError(t, err)

	// A refresh credential must never pass the access gate.
	_, err = f.service.Authorize(ctx, login.RefreshToken, false)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrUnauthorized))
}

func TestAuthService_Authorize_DeactivatedIdentity(t *testing.T) {
	f := newAuthFixture(0)
	ctx := context.Background()

	login, err := f.service.Login(ctx, loginInput())
	require.NoError(t, err)

	f.store.identities[login.Identity.ID].Deactivate()

	_, err = f.service.Authorize(ctx, login.AccessToken, false)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrUnauthorized))
	assert.False(t, errors.Is(err, domainerrors.ErrUserDeactivated))
}
