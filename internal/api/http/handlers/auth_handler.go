package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/training-auth/internal/api/dto"
	"github.com/spec-kit/training-auth/internal/auth"
	"github.com/spec-kit/training-auth/internal/service"
	apperrors "github.com/spec-kit/training-auth/pkg/util"
)

// resetAccepted is returned for every reset request, whether or not the
// address is known.
var resetAccepted = fiber.Map{
	"data": fiber.Map{"message": "if the address is registered, a reset link has been sent"},
}

// AuthHandler exposes session and password-reset endpoints.
type AuthHandler struct {
	sessions *service.SessionService
	resets   *service.PasswordResetService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(sessions *service.SessionService, resets *service.PasswordResetService) *AuthHandler {
	return &AuthHandler{sessions: sessions, resets: resets}
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Principal == "" || req.Password == "" {
		return apperrors.NewValidationError("principal and password required", nil)
	}

	pair, err := h.sessions.Login(c.UserContext(), req.Principal, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTokenPairResponse(pair)})
}

// Refresh handles POST /auth/refresh.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	value, err := refreshTokenFromBody(c)
	if err != nil {
		return err
	}

	pair, err := h.sessions.Refresh(c.UserContext(), value)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTokenPairResponse(pair)})
}

// Logout handles POST /auth/logout.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	value, err := refreshTokenFromBody(c)
	if err != nil {
		return err
	}
	if err := h.sessions.Logout(c.UserContext(), value); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// LogoutAll handles POST /auth/logout-all for the authenticated identity.
func (h *AuthHandler) LogoutAll(c *fiber.Ctx) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	revoked, err := h.sessions.RevokeAllSessions(c.UserContext(), identity)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"revoked": revoked}})
}

// Sessions handles GET /auth/sessions.
func (h *AuthHandler) Sessions(c *fiber.Ctx) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	tokens, err := h.sessions.ListSessions(c.UserContext(), identity)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSessionResponses(tokens)})
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"subject_id": identity.ID}})
}

// RequestPasswordReset handles POST /auth/password/reset/request.
func (h *AuthHandler) RequestPasswordReset(c *fiber.Ctx) error {
	var req dto.PasswordResetRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Email) == "" {
		return apperrors.NewValidationError("email required", nil)
	}

	if err := h.resets.RequestReset(c.UserContext(), req.Email); err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(resetAccepted)
}

// ConfirmPasswordReset handles PUT /auth/password/reset/confirm.
func (h *AuthHandler) ConfirmPasswordReset(c *fiber.Ctx) error {
	var req dto.PasswordResetConfirmRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	token := c.Query("token")
	if token == "" {
		token = req.Token
	}
	if token == "" || req.NewPassword == "" {
		return apperrors.NewValidationError("token and new_password required", nil)
	}

	if err := h.resets.ConfirmReset(c.UserContext(), token, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"message": "password updated"}})
}

func refreshTokenFromBody(c *fiber.Ctx) (string, error) {
	var req dto.RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return "", apperrors.NewValidationError("invalid payload", nil)
	}
	if req.RefreshToken == "" {
		return "", apperrors.NewValidationError("refresh_token required", nil)
	}
	return req.RefreshToken, nil
}
