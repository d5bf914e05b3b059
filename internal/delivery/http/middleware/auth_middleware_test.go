package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pulse/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gateStub is a minimal AuthUsecase double; only Authorize is exercised here.
type gateStub struct {
	authorized   *usecase.AuthorizedIdentity
	authorizeErr error
	lastToken    string
}

func (s *gateStub) Login(context.Context, *usecase.LoginInput) (*usecase.LoginOutput, error) {
	return nil, errors.New("not implemented")
}

func (s *gateStub) Refresh(context.Context, string) (*usecase.RefreshOutput, error) {
	return nil, errors.New("not implemented")
}

func (s *gateStub) Logout(context.Context, *usecase.LogoutInput) error {
	return errors.New("not implemented")
}

func (s *gateStub) Authorize(_ context.Context, rawAccessToken string, _ bool) (*usecase.AuthorizedIdentity, error) {
	s.lastToken = rawAccessToken

	return s.authorized, s.authorizeErr
}

func runAuthenticate(t *testing.T, m *AuthMiddleware, authHeader string) (*httptest.ResponseRecorder, echo.Context, bool) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)

	nextCalled := false
	next := func(c echo.Context) error {
		nextCalled = true

		return c.NoContent(http.StatusOK)
	}

	require.NoError(t, m.Authenticate(next)(c))

	return rec, c, nextCalled
}

func TestAuthMiddleware_Authenticate_Success(t *testing.T) {
	authorized := &usecase.AuthorizedIdentity{
		Identity:  &usecase.IdentityView{ID: uuid.New(), Roles: []string{"employee", "manager"}},
		TokenID:   uuid.New(),
		ExpiresAt: time.Now().Add(15 * time.Minute),
	}
	uc := &gateStub{authorized: authorized}
	m := NewAuthMiddleware(uc)

	rec, c, nextCalled := runAuthenticate(t, m, "Bearer some-access-token")

	assert.True(t, nextCalled)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "some-access-token", uc.lastToken)

	got, ok := AuthorizedIdentity(c)
	require.True(t, ok)
	assert.Equal(t, authorized, got)
	assert.Equal(t, []string{"employee", "manager"}, c.Get(ContextKeyRoles))
}

func TestAuthMiddleware_Authenticate_MissingHeader(t *testing.T) {
	m := NewAuthMiddleware(&gateStub{})

	rec, _, nextCalled := runAuthenticate(t, m, "")

	assert.False(t, nextCalled)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_Authenticate_NotBearer(t *testing.T) {
	m := NewAuthMiddleware(&gateStub{})

	rec, _, nextCalled := runAuthenticate(t, m, "Basic dXNlcjpwYXNz")

	assert.False(t, nextCalled)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_Authenticate_GateRejects(t *testing.T) {
	m := NewAuthMiddleware(&gateStub{authorizeErr: errors.New("unauthorized")})

	rec, _, nextCalled := runAuthenticate(t, m, "Bearer expired-token")

	assert.False(t, nextCalled)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_RequireRole(t *testing.T) {
	m := NewAuthMiddleware(&gateStub{})

	tests := []struct {
		name       string
		roles      any
		required   string
		wantStatus int
		wantNext   bool
	}{
		{name: "has role", roles: []string{"employee", "admin"}, required: "admin", wantStatus: http.StatusOK, wantNext: true},
		{name: "missing role", roles: []string{"employee"}, required: "admin", wantStatus: http.StatusForbidden},
		{name: "roles not set", roles: nil, required: "admin", wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodDelete, "/admin/identities/1/sessions", nil)
			rec := httptest.NewRecorder()
			c := echo.New().NewContext(req, rec)
			if tt.roles != nil {
				c.Set(ContextKeyRoles, tt.roles)
			}

			nextCalled := false
			next := func(c echo.Context) error {
				nextCalled = true

				return c.NoContent(http.StatusOK)
			}

			require.NoError(t, m.RequireRole(tt.required)(next)(c))
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantNext, nextCalled)
		})
	}
}
