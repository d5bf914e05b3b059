package middleware

import (
	"net/http"
	"slices"
	"strings"

	"pulse/internal/usecase"

	"github.com/labstack/echo/v4"
)

// Context keys under which the access gate stores its result for handlers.
const (
	ContextKeyIdentity = "authorizedIdentity"
	ContextKeyRoles    = "roles"
)

// AuthMiddleware provides middleware for access credential verification and
// role-based authorization.
type AuthMiddleware struct {
	authUC usecase.AuthUsecase
}

// NewAuthMiddleware is the constructor for AuthMiddleware.
func NewAuthMiddleware(authUC usecase.AuthUsecase) *AuthMiddleware {
	return &AuthMiddleware{authUC: authUC}
}

// Authenticate is the core middleware function that runs the access gate on
// the bearer credential. The resolved identity is attached to the context for
// handlers downstream.
func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Authorization header is missing"})
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid token format, must be Bearer token"})
		}

		authorized, err := m.authUC.Authorize(c.Request().Context(), tokenString, false)
		if err != nil || authorized == nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or expired token"})
		}

		// Set identity info on the context for handlers to use
		c.Set(ContextKeyIdentity, authorized)
		c.Set(ContextKeyRoles, authorized.Identity.Roles)

		return next(c)
	}
}

// RequireRole is a middleware factory that checks if the identity has a specific role.
// It must be used AFTER the Authenticate middleware.
func (m *AuthMiddleware) RequireRole(requiredRole string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rolesVal := c.Get(ContextKeyRoles)
			roles, ok := rolesVal.([]string)
			if !ok {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "Permission denied: role information missing"})
			}

			if !slices.Contains(roles, requiredRole) {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "Permission denied: require '" + requiredRole + "' role"})
			}

			return next(c)
		}
	}
}

// AuthorizedIdentity extracts the access gate result set by Authenticate.
func AuthorizedIdentity(c echo.Context) (*usecase.AuthorizedIdentity, bool) {
	authorized, ok := c.Get(ContextKeyIdentity).(*usecase.AuthorizedIdentity)

	return authorized, ok
}
