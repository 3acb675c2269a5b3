package handlers

import (
	"strings"

	"github.com/fitlog/backend/internal/middleware"
	"github.com/fitlog/backend/internal/services"
	"github.com/fitlog/backend/pkg/logger"
	"github.com/fitlog/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	Sessions *services.SessionService
	Audit    *services.AuditService
}

func NewAuthHandler(sessions *services.SessionService, audit *services.AuditService) *AuthHandler {
	return &AuthHandler{Sessions: sessions, Audit: audit}
}

type registerRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if msg, ok := parseBody(c, &req); !ok {
		return utils.Error(c, fiber.StatusBadRequest, msg)
	}

	result, err := h.Sessions.Signup(c.Context(), services.SignupParams{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		return serviceError(c, err)
	}

	logger.Info("user_registered", map[string]interface{}{
		"user_id": result.User.ID,
	})

	return utils.Success(c, fiber.StatusCreated, result)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if msg, ok := parseBody(c, &req); !ok {
		return utils.Error(c, fiber.StatusBadRequest, msg)
	}

	result, err := h.Sessions.Login(c.Context(), req.Email, req.Password)
	if err != nil {
		h.Audit.LogAsync(services.AuditEntry{
			Action:    "auth.login_failed",
			IPAddress: c.IP(),
		})
		return serviceError(c, err)
	}

	if result.MFARequired {
		return utils.Success(c, fiber.StatusOK, fiber.Map{
			"mfaRequired":   true,
			"tempSessionId": result.TempSessionID,
		})
	}

	logger.InfoWithUser(result.Auth.User.ID, "user_logged_in", nil)

	return utils.Success(c, fiber.StatusOK, result.Auth)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if msg, ok := parseBody(c, &req); !ok {
		return utils.Error(c, fiber.StatusBadRequest, msg)
	}

	result, err := h.Sessions.Refresh(c.Context(), req.RefreshToken)
	if err != nil {
		return serviceError(c, err)
	}

	return utils.Success(c, fiber.StatusOK, result)
}

// Logout accepts the refresh token either as a bearer header or in the
// body. It always answers with a success shape.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	raw := bearerToken(c)
	if raw == "" {
		var req refreshRequest
		if err := c.BodyParser(&req); err == nil {
			raw = req.RefreshToken
		}
	}

	if raw != "" {
		h.Sessions.Logout(c.Context(), raw)
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "logged out"})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return utils.Success(c, fiber.StatusOK, user.Public())
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8"`
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req changePasswordRequest
	if msg, ok := parseBody(c, &req); !ok {
		return utils.Error(c, fiber.StatusBadRequest, msg)
	}

	if err := h.Sessions.ChangePassword(c.Context(), user.ID, req.CurrentPassword, req.NewPassword); err != nil {
		return serviceError(c, err)
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:    &user.ID,
		Action:    "auth.password_changed",
		IPAddress: c.IP(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "password changed"})
}

func bearerToken(c *fiber.Ctx) string {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
	if tokenString == authHeader {
		return ""
	}
	return tokenString
}
