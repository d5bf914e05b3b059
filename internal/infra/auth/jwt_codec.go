// Package auth provides concrete implementations for authentication-related domain services.
package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"pulse/config"
	"pulse/internal/domain/service"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// jwtCodec signs and verifies credential pairs using the JWT standard with
// HMAC-SHA256. Access and refresh credentials are signed with separate
// secrets so one kind can never be replayed as the other even if the type
// claim check were bypassed.
type jwtCodec struct {
	accessSecret    string
	refreshSecret   string
	accessTTL       time.Duration
	refreshTTL      time.Duration
	revocationStore service.RevocationStore
}

// NewJWTCodec is the constructor for jwtCodec.
func NewJWTCodec(cfg *config.Config, revocationStore service.RevocationStore) (service.TokenCodec, error) {
	if cfg.SecretKey.Access == "" || cfg.SecretKey.Refresh == "" {
		return nil, errors.New("jwt secrets must be provided")
	}

	accessTTL := 15 * time.Minute
	refreshTTL := 7 * 24 * time.Hour
	if cfg.Token != nil {
		if cfg.Token.AccessTokenTTL > 0 {
			accessTTL = cfg.Token.AccessTokenTTL
		}
		if cfg.Token.RefreshTokenTTL > 0 {
			refreshTTL = cfg.Token.RefreshTokenTTL
		}
	}

	return &jwtCodec{
		accessSecret:    cfg.SecretKey.Access,
		refreshSecret:   cfg.SecretKey.Refresh,
		accessTTL:       accessTTL,
		refreshTTL:      refreshTTL,
		revocationStore: revocationStore,
	}, nil
}

// Issue creates a signed access/refresh pair. Each credential carries its own
// "jti" so it can be revoked individually.
func (s *jwtCodec) Issue(identityID uuid.UUID, roles []string) (*service.CredentialPair, error) {
	accessToken, err := s.signToken(identityID, roles, s.accessTTL, s.accessSecret, tokenTypeAccess)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign access token")
	}

	refreshToken, err := s.signToken(identityID, roles, s.refreshTTL, s.refreshSecret, tokenTypeRefresh)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign refresh token")
	}

	return &service.CredentialPair{
		AccessToken:         accessToken,
		RefreshToken:        refreshToken,
		AccessExpirySeconds: int64(s.accessTTL.Seconds()),
	}, nil
}

// VerifyAccess checks signature, expiry, token type and revocation of an access credential.
func (s *jwtCodec) VerifyAccess(ctx context.Context, raw string) (*service.Claims, error) {
	return s.verify(ctx, raw, s.accessSecret, tokenTypeAccess)
}

// VerifyRefresh checks signature, expiry, token type and revocation of a refresh credential.
func (s *jwtCodec) VerifyRefresh(ctx context.Context, raw string) (*service.Claims, error) {
	return s.verify(ctx, raw, s.refreshSecret, tokenTypeRefresh)
}

func (s *jwtCodec) verify(ctx context.Context, raw, secret, wantType string) (*service.Claims, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (any, error) {
		// Ensure the signing method is what we expect.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}

		return []byte(secret), nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "token parse failed")
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}

	claims, err := mapClaims(token)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != wantType {
		return nil, errors.Errorf("unexpected token type %q", claims.TokenType)
	}

	revoked, err := s.revocationStore.IsRevoked(ctx, claims.TokenID)
	if err != nil {
		return nil, errors.Wrap(err, "revocation check failed")
	}
	if revoked {
		return nil, errors.New("token revoked")
	}

	return claims, nil
}

// Decode parses a credential without verifying its signature or expiry.
func (s *jwtCodec) Decode(raw string) (*service.Claims, error) {
	token, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return nil, errors.Wrap(err, "token parse failed")
	}

	return mapClaims(token)
}

// RevokeByID adds a token identifier to the revocation store.
func (s *jwtCodec) RevokeByID(ctx context.Context, tokenID uuid.UUID, expiresAt time.Time) error {
	return errors.Wrap(s.revocationStore.Revoke(ctx, tokenID, expiresAt), "failed to revoke token")
}

// RefreshTokenDuration returns the configured duration for refresh tokens.
func (s *jwtCodec) RefreshTokenDuration() time.Duration {
	return s.refreshTTL
}

// signToken is a private helper to create a JWT with specific claims.
func (s *jwtCodec) signToken(identityID uuid.UUID, roles []string, ttl time.Duration, secret, tokenType string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  identityID.String(),   // Subject (who the token is for)
		"jti":  uuid.New().String(),   // Unique identifier of this credential
		"iat":  now.Unix(),            // Issued At
		"exp":  now.Add(ttl).Unix(),   // Expiration Time
		"type": tokenType,             // Type of token (access or refresh)
	}
	// Both credential kinds carry the role snapshot so a rotation can
	// re-issue without re-reading the identity row.
	if roles != nil {
		claims["roles"] = roles
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString([]byte(secret))
}

// mapClaims converts raw JWT claims into the domain claims shape.
func mapClaims(token *jwt.Token) (*service.Claims, error) {
	raw, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("unexpected claims shape")
	}

	sub, _ := raw["sub"].(string)
	identityID, err := uuid.Parse(sub)
	if err != nil {
		return nil, errors.Wrap(err, "invalid subject claim")
	}

	jti, _ := raw["jti"].(string)
	tokenID, err := uuid.Parse(jti)
	if err != nil {
		return nil, errors.Wrap(err, "invalid jti claim")
	}

	tokenType, _ := raw["type"].(string)

	claims := &service.Claims{
		IdentityID: identityID,
		TokenID:    tokenID,
		TokenType:  tokenType,
	}

	if iat, err := raw.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	if exp, err := raw.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}

	if rawRoles, ok := raw["roles"].([]any); ok {
		roles := make([]string, 0, len(rawRoles))
		for _, r := range rawRoles {
			if role, ok := r.(string); ok {
				roles = append(roles, role)
			}
		}
		claims.Roles = roles
	}

	return claims, nil
}
