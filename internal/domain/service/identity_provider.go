package service

import "context"

// ProviderTokens is the result of exchanging an authorization code with the
// external identity provider.
type ProviderTokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	TokenType    string
}

// ProviderClaims carries the verified user claims returned by the provider.
type ProviderClaims struct {
	Subject           string // Provider-assigned subject identifier.
	Email             string
	Name              string
	EmailVerified     bool
	PreferredUsername string
}

// IdentityProvider is the boundary to the external OAuth/OIDC provider. All
// calls are remote and bounded by the client's configured timeout; the wire
// protocol is provider-defined and opaque to the rest of the system.
type IdentityProvider interface {
	// ExchangeCode swaps an authorization code plus PKCE verifier for
	// provider-issued tokens.
	ExchangeCode(ctx context.Context, code, verifier string) (*ProviderTokens, error)

	// ValidateToken introspects a provider access token and returns the
	// verified user claims.
	ValidateToken(ctx context.Context, token string) (*ProviderClaims, error)

	// RefreshTokens exchanges a provider refresh token for new provider tokens.
	RefreshTokens(ctx context.Context, refreshToken string) (*ProviderTokens, error)

	// RevokeToken revokes a provider token.
	RevokeToken(ctx context.Context, token string) error

	// FetchUserInfo retrieves the userinfo document for a provider access token.
	FetchUserInfo(ctx context.Context, accessToken string) (*ProviderClaims, error)
}
