package handlers

import (
	"strings"

	"github.com/fitlog/backend/internal/middleware"
	"github.com/fitlog/backend/internal/services"
	"github.com/fitlog/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type RecoveryHandler struct {
	Sessions *services.SessionService
	Audit    *services.AuditService
}

func NewRecoveryHandler(sessions *services.SessionService, audit *services.AuditService) *RecoveryHandler {
	return &RecoveryHandler{Sessions: sessions, Audit: audit}
}

func (h *RecoveryHandler) RequestEmailVerification(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	if err := h.Sessions.RequestEmailVerification(c.Context(), user.ID); err != nil {
		return serviceError(c, err)
	}

	return utils.Success(c, fiber.StatusAccepted, fiber.Map{"message": "verification email sent"})
}

func (h *RecoveryHandler) VerifyEmail(c *fiber.Ctx) error {
	rawToken := strings.TrimSpace(c.Query("token"))
	if rawToken == "" {
		return utils.Error(c, fiber.StatusBadRequest, "token is required")
	}

	if err := h.Sessions.VerifyEmailToken(c.Context(), rawToken); err != nil {
		return serviceError(c, err)
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "email verified"})
}

type passwordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// RequestPasswordReset answers identically whether or not the address is
// registered.
func (h *RecoveryHandler) RequestPasswordReset(c *fiber.Ctx) error {
	var req passwordResetRequest
	if msg, ok := parseBody(c, &req); !ok {
		return utils.Error(c, fiber.StatusBadRequest, msg)
	}

	if err := h.Sessions.RequestPasswordReset(c.Context(), req.Email); err != nil {
		return serviceError(c, err)
	}

	return utils.Success(c, fiber.StatusAccepted, fiber.Map{
		"message": "if the account exists, a reset link has been sent",
	})
}

type passwordResetConfirmRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8"`
}

func (h *RecoveryHandler) ConfirmPasswordReset(c *fiber.Ctx) error {
	var req passwordResetConfirmRequest
	if msg, ok := parseBody(c, &req); !ok {
		return utils.Error(c, fiber.StatusBadRequest, msg)
	}

	if err := h.Sessions.ConfirmPasswordReset(c.Context(), req.Token, req.NewPassword); err != nil {
		return serviceError(c, err)
	}

	h.Audit.LogAsync(services.AuditEntry{
		Action:    "auth.password_reset",
		IPAddress: c.IP(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "password has been reset"})
}
