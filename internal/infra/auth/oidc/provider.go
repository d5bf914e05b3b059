// Package oidc implements the external identity provider boundary against a
// standard OAuth2/OIDC server: token endpoint with PKCE, RFC 7662 token
// introspection, userinfo and RFC 7009 revocation.
package oidc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pulse/config"
	"pulse/internal/domain/service"

	"github.com/pkg/errors"
)

const defaultTimeout = 10 * time.Second

// Provider talks to the configured OAuth2/OIDC server over HTTP.
type Provider struct {
	clientID      string
	clientSecret  string
	redirectURI   string
	tokenURL      string
	introspectURL string
	userInfoURL   string
	revokeURL     string

	client *http.Client
}

// NewProvider creates an identity provider client from configuration.
func NewProvider(cfg *config.Config) (service.IdentityProvider, error) {
	if cfg.Provider == nil {
		return nil, errors.New("provider configuration must be set")
	}
	if cfg.Provider.ClientID == "" || cfg.Provider.TokenURL == "" {
		return nil, errors.New("provider clientId and tokenUrl must be provided")
	}

	timeout := cfg.Provider.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Provider{
		clientID:      cfg.Provider.ClientID,
		clientSecret:  cfg.Provider.ClientSecret,
		redirectURI:   cfg.Provider.RedirectURI,
		tokenURL:      cfg.Provider.TokenURL,
		introspectURL: cfg.Provider.IntrospectURL,
		userInfoURL:   cfg.Provider.UserInfoURL,
		revokeURL:     cfg.Provider.RevokeURL,
		client:        &http.Client{Timeout: timeout},
	}, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// ExchangeCode exchanges an authorization code plus PKCE verifier for provider tokens.
func (p *Provider) ExchangeCode(ctx context.Context, code, verifier string) (*service.ProviderTokens, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("code_verifier", verifier)
	data.Set("client_id", p.clientID)
	if p.clientSecret != "" {
		data.Set("client_secret", p.clientSecret)
	}
	if p.redirectURI != "" {
		data.Set("redirect_uri", p.redirectURI)
	}

	var tokens tokenResponse
	if err := p.postForm(ctx, p.tokenURL, data, &tokens); err != nil {
		return nil, errors.Wrap(err, "code exchange failed")
	}

	return &service.ProviderTokens{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresIn:    tokens.ExpiresIn,
		TokenType:    tokens.TokenType,
	}, nil
}

// ValidateToken introspects a provider access token and returns the verified claims.
func (p *Provider) ValidateToken(ctx context.Context, token string) (*service.ProviderClaims, error) {
	data := url.Values{}
	data.Set("token", token)
	data.Set("client_id", p.clientID)
	if p.clientSecret != "" {
		data.Set("client_secret", p.clientSecret)
	}

	var introspection struct {
		Active            bool   `json:"active"`
		Sub               string `json:"sub"`
		Email             string `json:"email"`
		Name              string `json:"name"`
		EmailVerified     bool   `json:"email_verified"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err := p.postForm(ctx, p.introspectURL, data, &introspection); err != nil {
		return nil, errors.Wrap(err, "token introspection failed")
	}

	if !introspection.Active {
		return nil, errors.New("token is not active")
	}
	if introspection.Sub == "" {
		return nil, errors.New("introspection response missing subject")
	}

	return &service.ProviderClaims{
		Subject:           introspection.Sub,
		Email:             introspection.Email,
		Name:              introspection.Name,
		EmailVerified:     introspection.EmailVerified,
		PreferredUsername: introspection.PreferredUsername,
	}, nil
}

// RefreshTokens exchanges a provider refresh token for new provider tokens.
func (p *Provider) RefreshTokens(ctx context.Context, refreshToken string) (*service.ProviderTokens, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	data.Set("client_id", p.clientID)
	if p.clientSecret != "" {
		data.Set("client_secret", p.clientSecret)
	}

	var tokens tokenResponse
	if err := p.postForm(ctx, p.tokenURL, data, &tokens); err != nil {
		return nil, errors.Wrap(err, "refresh token exchange failed")
	}

	return &service.ProviderTokens{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresIn:    tokens.ExpiresIn,
		TokenType:    tokens.TokenType,
	}, nil
}

// RevokeToken revokes a provider token. Providers return 200 even for unknown
// tokens per RFC 7009, so any non-2xx status is a real failure.
func (p *Provider) RevokeToken(ctx context.Context, token string) error {
	if p.revokeURL == "" {
		return nil
	}

	data := url.Values{}
	data.Set("token", token)
	data.Set("client_id", p.clientID)
	if p.clientSecret != "" {
		data.Set("client_secret", p.clientSecret)
	}

	return errors.Wrap(p.postForm(ctx, p.revokeURL, data, nil), "token revocation failed")
}

// FetchUserInfo retrieves the userinfo document for a provider access token.
func (p *Provider) FetchUserInfo(ctx context.Context, accessToken string) (*service.ProviderClaims, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create userinfo request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "userinfo request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)

		return nil, errors.Errorf("userinfo request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var userInfo struct {
		Sub               string `json:"sub"`
		Email             string `json:"email"`
		Name              string `json:"name"`
		EmailVerified     bool   `json:"email_verified"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		return nil, errors.Wrap(err, "failed to decode userinfo response")
	}

	return &service.ProviderClaims{
		Subject:           userInfo.Sub,
		Email:             userInfo.Email,
		Name:              userInfo.Name,
		EmailVerified:     userInfo.EmailVerified,
		PreferredUsername: userInfo.PreferredUsername,
	}, nil
}

// postForm sends a form-encoded POST and decodes the JSON body into out when
// out is non-nil.
func (p *Provider) postForm(ctx context.Context, endpoint string, data url.Values, out any) error {
	if endpoint == "" {
		return errors.New("endpoint not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)

		return errors.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	if out == nil {
		return nil
	}

	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "failed to decode response")
}
