package handler

import (
	"log/slog"
	"net/http"

	"pulse/internal/delivery/http/middleware"
	"pulse/internal/delivery/http/response"
	"pulse/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// SessionHandler holds dependencies for session registry handlers.
type SessionHandler struct {
	uc     usecase.SessionUsecase
	logger *slog.Logger
}

// NewSessionHandler is the constructor for SessionHandler, injected by Fx.
func NewSessionHandler(uc usecase.SessionUsecase, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		uc:     uc,
		logger: logger,
	}
}

// ListSessions returns the authenticated identity's active sessions.
func (h *SessionHandler) ListSessions(c echo.Context) error {
	authorized, ok := middleware.AuthorizedIdentity(c)
	if !ok {
		return response.Unauthorized(c, "INVALID_TOKEN", "Missing identity in request context")
	}

	sessions, err := h.uc.GetActiveSessions(c.Request().Context(), authorized.Identity.ID)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, sessions, "Sessions retrieved successfully")
}

// RevokeSessions destroys every session of the authenticated identity.
func (h *SessionHandler) RevokeSessions(c echo.Context) error {
	authorized, ok := middleware.AuthorizedIdentity(c)
	if !ok {
		return response.Unauthorized(c, "INVALID_TOKEN", "Missing identity in request context")
	}

	if err := h.uc.RevokeAllSessions(c.Request().Context(), authorized.Identity.ID); err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, map[string]string{"message": "All sessions revoked"}, "Sessions revoked successfully")
}

// RevokeIdentitySessions force-revokes every session of an arbitrary identity.
// Restricted to administrators by the router.
func (h *SessionHandler) RevokeIdentitySessions(c echo.Context) error {
	identityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.BadRequest(c, "INVALID_INPUT", "Invalid identity ID")
	}

	if err := h.uc.RevokeAllSessions(c.Request().Context(), identityID); err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, map[string]string{"message": "All sessions revoked"}, "Sessions revoked successfully")
}
