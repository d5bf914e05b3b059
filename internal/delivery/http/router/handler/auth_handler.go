// Package handler contains the HTTP handlers for the application.
package handler

import (
	"log/slog"
	"net/http"

	"pulse/internal/delivery/http/middleware"
	"pulse/internal/delivery/http/response"
	"pulse/internal/domain/entity"
	"pulse/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// HeaderXDeviceID is the optional client-supplied device identifier header.
const HeaderXDeviceID = "X-Device-Id"

// AuthHandler holds dependencies for credential lifecycle handlers.
type AuthHandler struct {
	uc     usecase.AuthUsecase
	logger *slog.Logger
}

// NewAuthHandler is the constructor for AuthHandler, injected by Fx.
func NewAuthHandler(uc usecase.AuthUsecase, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		uc:     uc,
		logger: logger,
	}
}

// loginRequest is the JSON body of the authorization-code callback.
type loginRequest struct {
	Code     string `json:"code" validate:"required"`
	Verifier string `json:"code_verifier" validate:"required"`
}

// refreshRequest is the JSON body of the rotation endpoint.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Login handles the authorization-code callback and opens a session.
func (h *AuthHandler) Login(c echo.Context) error {
	var req *loginRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid login input")
	}
	if err := c.Validate(req); err != nil {
		return err
	}

	input := &usecase.LoginInput{
		Code:     req.Code,
		Verifier: req.Verifier,
		Device: entity.DeviceMetadata{
			DeviceID:  c.Request().Header.Get(HeaderXDeviceID),
			UserAgent: c.Request().UserAgent(),
			IPAddress: c.RealIP(),
		},
	}

	output, err := h.uc.Login(c.Request().Context(), input)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, output, "Login successful")
}

// Refresh handles the single-use rotation of a refresh credential.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req *refreshRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid refresh input")
	}
	if err := c.Validate(req); err != nil {
		return err
	}

	output, err := h.uc.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, output, "Token refreshed successfully")
}

// Logout destroys every session of the authenticated identity and revokes the
// presenting access credential for the remainder of its lifetime.
func (h *AuthHandler) Logout(c echo.Context) error {
	authorized, ok := middleware.AuthorizedIdentity(c)
	if !ok {
		return response.Unauthorized(c, "INVALID_TOKEN", "Missing identity in request context")
	}

	input := &usecase.LogoutInput{
		IdentityID:      authorized.Identity.ID,
		AccessTokenID:   authorized.TokenID,
		AccessExpiresAt: authorized.ExpiresAt,
	}

	if err := h.uc.Logout(c.Request().Context(), input); err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, map[string]string{"message": "Successfully logged out"}, "Logout successful")
}

// Me returns the authenticated identity's public projection.
func (h *AuthHandler) Me(c echo.Context) error {
	authorized, ok := middleware.AuthorizedIdentity(c)
	if !ok {
		return response.Unauthorized(c, "INVALID_TOKEN", "Missing identity in request context")
	}

	return response.Success(c, http.StatusOK, authorized.Identity, "Profile retrieved successfully")
}

// HealthCheck is a simple handler to check if the service is up.
func HealthCheck(c echo.Context) error {
	return response.Success(c, http.StatusOK, map[string]string{"status": "ok"}, "Service is healthy")
}
