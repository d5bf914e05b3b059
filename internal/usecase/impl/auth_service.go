package impl

import (
	"context"
	"log/slog"
	"time"

	"pulse/config"
	deliverycontext "pulse/internal/delivery/context"
	"pulse/internal/domain/constants"
	"pulse/internal/domain/entity"
	domainerrors "pulse/internal/domain/errors"
	"pulse/internal/domain/repository"
	"pulse/internal/domain/service"
	"pulse/internal/usecase"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// authService implements the AuthUsecase interface. It is the only writer of
// the refresh-token ledger and the session registry; every multi-step write
// runs inside a single transaction.
type authService struct {
	txManager         repository.TransactionManager
	identityRepo      repository.IdentityRepository
	codec             service.TokenCodec
	hasher            service.TokenHasher
	provider          service.IdentityProvider
	publisher         service.SecurityEventPublisher
	maxActiveSessions int
	logger            *slog.Logger
}

// AuthServiceParams holds dependencies for authService, injected by Fx.
type AuthServiceParams struct {
	fx.In

	TxManager    repository.TransactionManager
	IdentityRepo repository.IdentityRepository
	Codec        service.TokenCodec
	Hasher       service.TokenHasher
	Provider     service.IdentityProvider
	Publisher    service.SecurityEventPublisher
	Config       *config.Config
	Logger       *slog.Logger
}

// NewAuthService is the constructor for authService. It receives all dependencies as interfaces.
func NewAuthService(params AuthServiceParams) usecase.AuthUsecase {
	maxActiveSessions := 0
	if params.Config != nil && params.Config.Auth != nil {
		maxActiveSessions = params.Config.Auth.MaxActiveSessions
	}

	return &authService{
		txManager:         params.TxManager,
		identityRepo:      params.IdentityRepo,
		codec:             params.Codec,
		hasher:            params.Hasher,
		provider:          params.Provider,
		publisher:         params.Publisher,
		maxActiveSessions: maxActiveSessions,
		logger:            params.Logger,
	}
}

// log returns a request-scoped logger if available, otherwise falls back to the service's logger.
func (srv *authService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

// Login orchestrates the provider exchange, identity resolution and
// credential issuance. Provider failures and unexpected internal errors are
// coerced into ErrAuthenticationFailed; domain errors surface unchanged.
func (srv *authService) Login(ctx context.Context, input *usecase.LoginInput) (*usecase.LoginOutput, error) {
	srv.log(ctx).Debug("Starting provider login")

	// 1. Exchange the authorization code with the identity provider. Nothing
	// is committed locally until the provider call has completed.
	tokens, err := srv.provider.ExchangeCode(ctx, input.Code, input.Verifier)
	if err != nil {
		srv.log(ctx).Warn("Provider code exchange failed", slog.Any("error", err))

		return nil, domainerrors.ErrAuthenticationFailed.WrapMessage("code exchange failed")
	}

	// 2. Validate the provider token and extract verified claims.
	claims, err := srv.provider.ValidateToken(ctx, tokens.AccessToken)
	if err != nil {
		srv.log(ctx).Warn("Provider token validation failed", slog.Any("error", err))

		return nil, domainerrors.ErrAuthenticationFailed.WrapMessage("token validation failed")
	}

	var output *usecase.LoginOutput

	err = srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		identity, err := srv.resolveIdentity(ctx, repoFactory.IdentityRepo(), claims)
		if err != nil {
			return err
		}

		// Deactivation is checked after synchronization so a reactivated and
		// just-updated record is evaluated on its current state.
		if !identity.Active {
			return errors.Wrap(domainerrors.ErrUserDeactivated, "login rejected")
		}

		pair, refreshRecord, err := srv.issueCredentials(ctx, repoFactory, identity)
		if err != nil {
			return err
		}

		session, err := entity.NewSession(identity.ID, refreshRecord.ID, input.Device, refreshRecord.ExpiresAt)
		if err != nil {
			return errors.Wrap(err, "failed to build session")
		}
		if err := repoFactory.SessionRepo().Create(ctx, session); err != nil {
			return errors.Wrap(err, "failed to create session")
		}

		output = &usecase.LoginOutput{
			Identity:            identityView(identity),
			AccessToken:         pair.AccessToken,
			RefreshToken:        pair.RefreshToken,
			AccessExpirySeconds: pair.AccessExpirySeconds,
		}

		return nil
	})

	if err != nil {
		srv.log(ctx).Warn("Login failed", slog.Any("error", err))

		return nil, coerceLoginError(err)
	}

	srv.publishEvent(ctx, constants.SecurityEventLogin, output.Identity.ID, &input.Device)
	srv.log(ctx).Info("Login succeeded", slog.Any("identityID", output.Identity.ID))

	return output, nil
}

// resolveIdentity finds the identity for a provider subject, creating it with
// the default role on first login or synchronizing it from claims otherwise.
func (srv *authService) resolveIdentity(ctx context.Context, identityRepo repository.IdentityRepository, claims *service.ProviderClaims) (*entity.Identity, error) {
	identity, err := identityRepo.FindByProviderSubject(ctx, claims.Subject)
	if err != nil {
		if !errors.Is(err, repository.ErrIdentityNotFound) {
			return nil, errors.Wrap(err, "failed to find identity by provider subject")
		}

		srv.log(ctx).Info("Provider subject unknown, creating identity", slog.String("email", claims.Email))

		identity, err = entity.NewIdentity(claims.Subject, claims.Email, claims.Name)
		if err != nil {
			return nil, errors.Wrap(err, "failed to build identity from claims")
		}
		if err := identityRepo.Create(ctx, identity); err != nil {
			return nil, errors.Wrap(err, "failed to create identity")
		}

		return identity, nil
	}

	if syncIdentity(identity, claims) {
		if err := identityRepo.Update(ctx, identity); err != nil {
			return nil, errors.Wrap(err, "failed to persist synchronized identity")
		}
	}

	return identity, nil
}

// issueCredentials signs a new pair and persists its ledger record, enforcing
// the active-session cap under the identity row lock when configured.
func (srv *authService) issueCredentials(ctx context.Context, repoFactory repository.RepositoryFactory, identity *entity.Identity) (*service.CredentialPair, *entity.RefreshToken, error) {
	refreshRepo := repoFactory.RefreshTokenRepo()

	if srv.maxActiveSessions > 0 {
		if err := repoFactory.IdentityRepo().AcquireSessionMutex(ctx, identity.ID); err != nil {
			return nil, nil, errors.Wrap(err, "failed to lock identity row for session limit check")
		}

		active, err := refreshRepo.CountActiveByIdentityID(ctx, identity.ID)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to count active sessions")
		}
		if active >= srv.maxActiveSessions {
			return nil, nil, errors.Wrap(domainerrors.ErrSessionLimitExceeded, "active session limit exceeded")
		}
	}

	pair, err := srv.codec.Issue(identity.ID, identity.Roles.ToStrings())
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to issue credential pair")
	}

	tokenHash, err := srv.hasher.Hash(pair.RefreshToken)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to hash refresh token")
	}

	record, err := entity.NewRefreshToken(identity.ID, tokenHash, time.Now().Add(srv.codec.RefreshTokenDuration()))
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to build refresh token record")
	}
	if err := refreshRepo.Create(ctx, record); err != nil {
		return nil, nil, errors.Wrap(err, "failed to store refresh token")
	}

	return pair, record, nil
}

// Refresh rotates a refresh credential. The read-match-mark sequence runs
// under the identity row lock so two concurrent presentations of the same
// credential cannot both rotate: exactly one wins, the other observes
// used=true and triggers the theft response. The theft cascade commits before
// ErrTokenTheftDetected is returned.
func (srv *authService) Refresh(ctx context.Context, rawRefreshToken string) (*usecase.RefreshOutput, error) {
	srv.log(ctx).Debug("Attempting token rotation")

	// Signature and expiry failures are indistinguishable from a missing
	// ledger record on purpose.
	claims, err := srv.codec.VerifyRefresh(ctx, rawRefreshToken)
	if err != nil {
		srv.log(ctx).Debug("Refresh token verification failed", slog.Any("error", err))

		return nil, errors.Wrap(domainerrors.ErrTokenExpired, "refresh token rejected")
	}

	var output *usecase.RefreshOutput
	var theftIdentityID uuid.UUID

	err = srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		identityRepo := repoFactory.IdentityRepo()
		refreshRepo := repoFactory.RefreshTokenRepo()
		sessionRepo := repoFactory.SessionRepo()

		identity, err := identityRepo.FindByID(ctx, claims.IdentityID)
		if err != nil {
			if errors.Is(err, repository.ErrIdentityNotFound) {
				return errors.Wrap(domainerrors.ErrUserNotFound, "refresh token subject unknown")
			}

			return errors.Wrap(err, "failed to find identity")
		}
		if !identity.Active {
			return errors.Wrap(domainerrors.ErrUserDeactivated, "refresh rejected")
		}

		// Serialize the read-match-mark sequence per identity.
		if err := identityRepo.AcquireSessionMutex(ctx, identity.ID); err != nil {
			return errors.Wrap(err, "failed to lock identity row for rotation")
		}

		matched, err := srv.matchRefreshRecord(ctx, refreshRepo, identity.ID, rawRefreshToken)
		if err != nil {
			return err
		}

		now := time.Now()

		// Reuse of an already-rotated credential: the legitimate holder has
		// moved forward, so this presenter holds a stale copy. Destroy every
		// session and ledger record for the identity and commit before failing.
		if matched.Used {
			theftIdentityID = identity.ID

			return srv.cascadeRevocation(ctx, refreshRepo, sessionRepo, identity.ID)
		}

		if matched.IsExpired(now) {
			return errors.Wrap(domainerrors.ErrTokenExpired, "refresh token record expired")
		}

		// Compare-and-set: a concurrent duplicate that lost the race surfaces
		// here as an already-used record.
		if err := refreshRepo.MarkUsed(ctx, matched.ID); err != nil {
			if errors.Is(err, repository.ErrRefreshTokenUsed) {
				theftIdentityID = identity.ID

				return srv.cascadeRevocation(ctx, refreshRepo, sessionRepo, identity.ID)
			}

			return errors.Wrap(err, "failed to mark refresh token used")
		}

		pair, newRecord, err := srv.rotateCredentials(ctx, refreshRepo, identity)
		if err != nil {
			return err
		}

		if err := srv.advanceSession(ctx, sessionRepo, matched.ID, newRecord, now); err != nil {
			return err
		}

		output = &usecase.RefreshOutput{
			AccessToken:         pair.AccessToken,
			RefreshToken:        pair.RefreshToken,
			AccessExpirySeconds: pair.AccessExpirySeconds,
		}

		return nil
	})

	if err != nil {
		srv.log(ctx).Warn("Rotation failed", slog.Any("error", err))

		return nil, err
	}

	if theftIdentityID != uuid.Nil {
		srv.log(ctx).Warn("Refresh token reuse detected, all sessions revoked", slog.Any("identityID", theftIdentityID))
		srv.publishEvent(ctx, constants.SecurityEventTheftDetected, theftIdentityID, nil)

		return nil, errors.Wrap(domainerrors.ErrTokenTheftDetected, "refresh token reuse")
	}

	srv.log(ctx).Debug("Rotation succeeded", slog.Any("identityID", claims.IdentityID))

	return output, nil
}

// matchRefreshRecord scans the identity's ledger for the record whose stored
// hash matches the presented credential. A revoked or missing record is
// reported as expiry so callers cannot probe whether a token ever existed.
func (srv *authService) matchRefreshRecord(ctx context.Context, refreshRepo repository.RefreshTokenRepository, identityID uuid.UUID, raw string) (*entity.RefreshToken, error) {
	records, err := refreshRepo.FindByIdentityID(ctx, identityID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load refresh token records")
	}

	for _, record := range records {
		if srv.hasher.Check(raw, record.TokenHash) {
			if record.IsRevoked() {
				return nil, errors.Wrap(domainerrors.ErrTokenExpired, "refresh token revoked")
			}

			return record, nil
		}
	}

	return nil, errors.Wrap(domainerrors.ErrTokenExpired, "no matching refresh token record")
}

// cascadeRevocation destroys every session and refresh record owned by the
// identity. Returning nil lets the surrounding transaction commit; the caller
// raises ErrTokenTheftDetected only after the cascade is durable.
func (srv *authService) cascadeRevocation(ctx context.Context, refreshRepo repository.RefreshTokenRepository, sessionRepo repository.SessionRepository, identityID uuid.UUID) error {
	if err := sessionRepo.DeleteByIdentityID(ctx, identityID); err != nil {
		return errors.Wrap(err, "failed to revoke sessions during theft response")
	}
	if err := refreshRepo.DeleteByIdentityID(ctx, identityID); err != nil {
		return errors.Wrap(err, "failed to delete refresh tokens during theft response")
	}

	return nil
}

// rotateCredentials issues the next pair in the chain and persists its record.
func (srv *authService) rotateCredentials(ctx context.Context, refreshRepo repository.RefreshTokenRepository, identity *entity.Identity) (*service.CredentialPair, *entity.RefreshToken, error) {
	pair, err := srv.codec.Issue(identity.ID, identity.Roles.ToStrings())
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to issue credential pair")
	}

	tokenHash, err := srv.hasher.Hash(pair.RefreshToken)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to hash refresh token")
	}

	record, err := entity.NewRefreshToken(identity.ID, tokenHash, time.Now().Add(srv.codec.RefreshTokenDuration()))
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to build refresh token record")
	}
	if err := refreshRepo.Create(ctx, record); err != nil {
		return nil, nil, errors.Wrap(err, "failed to store rotated refresh token")
	}

	return pair, record, nil
}

// advanceSession re-points the device session at the new chain head and
// advances its horizon. A session that disappeared in the meantime is not an
// error; the ledger record alone carries the rotation semantics.
func (srv *authService) advanceSession(ctx context.Context, sessionRepo repository.SessionRepository, oldRecordID uuid.UUID, newRecord *entity.RefreshToken, now time.Time) error {
	session, err := sessionRepo.FindByRefreshTokenID(ctx, oldRecordID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil
		}

		return errors.Wrap(err, "failed to find session for rotation")
	}

	session.RefreshTokenID = newRecord.ID
	session.ExpiresAt = newRecord.ExpiresAt
	session.Touch(now)

	if err := sessionRepo.Update(ctx, session); err != nil {
		return errors.Wrap(err, "failed to update session during rotation")
	}

	return nil
}

// Logout destroys every session and refresh record for the identity and
// revokes the presenting access credential for the rest of its lifetime.
func (srv *authService) Logout(ctx context.Context, input *usecase.LogoutInput) error {
	srv.log(ctx).Info("Logging out from all devices", slog.Any("identityID", input.IdentityID))

	err := srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		return srv.cascadeRevocation(ctx, repoFactory.RefreshTokenRepo(), repoFactory.SessionRepo(), input.IdentityID)
	})
	if err != nil {
		srv.log(ctx).Error("Logout failed", slog.Any("error", err), slog.Any("identityID", input.IdentityID))

		return errors.Wrap(err, "failed to execute logout transaction")
	}

	if input.AccessTokenID != uuid.Nil {
		if err := srv.codec.RevokeByID(ctx, input.AccessTokenID, input.AccessExpiresAt); err != nil {
			return errors.Wrap(err, "failed to revoke access token")
		}
	}

	srv.publishEvent(ctx, constants.SecurityEventSessionsRevoke, input.IdentityID, nil)
	srv.log(ctx).Info("Logged out from all devices", slog.Any("identityID", input.IdentityID))

	return nil
}

// Authorize is the per-request access gate. Public operations skip every
// check; all failure modes collapse into ErrUnauthorized.
func (srv *authService) Authorize(ctx context.Context, rawAccessToken string, isPublic bool) (*usecase.AuthorizedIdentity, error) {
	if isPublic {
		return nil, nil
	}

	if rawAccessToken == "" {
		return nil, errors.Wrap(domainerrors.ErrUnauthorized, "missing access token")
	}

	claims, err := srv.codec.VerifyAccess(ctx, rawAccessToken)
	if err != nil {
		srv.log(ctx).Debug("Access token verification failed", slog.Any("error", err))

		return nil, errors.Wrap(domainerrors.ErrUnauthorized, "invalid access token")
	}

	identity, err := srv.identityRepo.FindByID(ctx, claims.IdentityID)
	if err != nil {
		if errors.Is(err, repository.ErrIdentityNotFound) {
			return nil, errors.Wrap(domainerrors.ErrUnauthorized, "access token subject unknown")
		}

		return nil, errors.Wrap(err, "failed to find identity for access token")
	}
	if !identity.Active {
		return nil, errors.Wrap(domainerrors.ErrUnauthorized, "identity deactivated")
	}

	return &usecase.AuthorizedIdentity{
		Identity:  identityView(identity),
		TokenID:   claims.TokenID,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

// publishEvent emits a security event without letting a publisher failure
// disturb the authentication path.
func (srv *authService) publishEvent(ctx context.Context, eventType string, identityID uuid.UUID, device *entity.DeviceMetadata) {
	if srv.publisher == nil {
		return
	}

	event := &service.SecurityEvent{
		RequestID:  deliverycontext.GetRequestIDFromContext(ctx),
		Type:       eventType,
		IdentityID: identityID.String(),
		OccurredAt: time.Now(),
	}
	if device != nil {
		event.DeviceID = device.DeviceID
		event.IPAddress = device.IPAddress
	}

	if err := srv.publisher.PublishSecurityEvent(ctx, event); err != nil {
		srv.log(ctx).Warn("Failed to publish security event", slog.String("type", eventType), slog.Any("error", err))
	}
}

// identityView maps an identity to its public projection.
func identityView(identity *entity.Identity) *usecase.IdentityView {
	return &usecase.IdentityView{
		ID:     identity.ID,
		Email:  identity.Email,
		Name:   identity.Name,
		Roles:  identity.Roles.ToStrings(),
		Active: identity.Active,
	}
}

// loginOutcomes are the only errors a login caller may observe besides the
// opaque authentication failure.
var loginOutcomes = []error{
	domainerrors.ErrAuthenticationFailed,
	domainerrors.ErrUserDeactivated,
	domainerrors.ErrSessionLimitExceeded,
}

// coerceLoginError lets the defined login outcomes through and folds every
// other failure, infrastructure AppErrors included, into the opaque
// authentication failure. A database outage or a create conflict must look
// no different to the caller than a bad authorization code.
func coerceLoginError(err error) error {
	for _, outcome := range loginOutcomes {
		if errors.Is(err, outcome) {
			return err
		}
	}

	return domainerrors.ErrAuthenticationFailed.WrapMessage("login failed")
}
