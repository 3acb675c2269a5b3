package handlers

import (
	"github.com/fitlog/backend/internal/middleware"
	"github.com/fitlog/backend/internal/services"
	"github.com/fitlog/backend/pkg/logger"
	"github.com/fitlog/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type MFAHandler struct {
	Sessions *services.SessionService
	Audit    *services.AuditService
}

func NewMFAHandler(sessions *services.SessionService, audit *services.AuditService) *MFAHandler {
	return &MFAHandler{Sessions: sessions, Audit: audit}
}

func (h *MFAHandler) Status(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"mfaEnabled":   user.MFAEnabled,
		"setupPending": !user.MFAEnabled && user.MFASecret != "",
	})
}

func (h *MFAHandler) TOTPSetup(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	setup, err := h.Sessions.CreateMFASecret(c.Context(), user.ID)
	if err != nil {
		return serviceError(c, err)
	}

	return utils.Success(c, fiber.StatusOK, setup)
}

type verifyTOTPSetupRequest struct {
	Code string `json:"code" validate:"required"`
}

func (h *MFAHandler) TOTPVerifySetup(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req verifyTOTPSetupRequest
	if msg, ok := parseBody(c, &req); !ok {
		return utils.Error(c, fiber.StatusBadRequest, msg)
	}

	if err := h.Sessions.EnableMFA(c.Context(), user.ID, req.Code); err != nil {
		return serviceError(c, err)
	}

	logger.InfoWithUser(user.ID.String(), "mfa_enabled", nil)

	h.Audit.LogAsync(services.AuditEntry{
		UserID:    &user.ID,
		Action:    "mfa.enabled",
		IPAddress: c.IP(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"mfaEnabled": true})
}

type disableTOTPRequest struct {
	Password string `json:"password" validate:"required"`
}

func (h *MFAHandler) TOTPDisable(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req disableTOTPRequest
	if msg, ok := parseBody(c, &req); !ok {
		return utils.Error(c, fiber.StatusBadRequest, msg)
	}

	if err := h.Sessions.DisableMFA(c.Context(), user.ID, req.Password); err != nil {
		return serviceError(c, err)
	}

	logger.InfoWithUser(user.ID.String(), "mfa_disabled", nil)

	h.Audit.LogAsync(services.AuditEntry{
		UserID:    &user.ID,
		Action:    "mfa.disabled",
		IPAddress: c.IP(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"mfaEnabled": false})
}

type verifyMFARequest struct {
	TempSessionID string `json:"tempSessionId" validate:"required"`
	Code          string `json:"code" validate:"required"`
}

// Verify completes a login that was paused for a second factor.
func (h *MFAHandler) Verify(c *fiber.Ctx) error {
	var req verifyMFARequest
	if msg, ok := parseBody(c, &req); !ok {
		return utils.Error(c, fiber.StatusBadRequest, msg)
	}

	result, err := h.Sessions.VerifyMFAChallenge(c.Context(), req.TempSessionID, req.Code)
	if err != nil {
		h.Audit.LogAsync(services.AuditEntry{
			Action:    "mfa.verify_failed",
			IPAddress: c.IP(),
		})
		return serviceError(c, err)
	}

	logger.InfoWithUser(result.User.ID, "mfa_login_completed", nil)

	return utils.Success(c, fiber.StatusOK, result)
}
