package handlers

import (
	"strings"

	"github.com/fitlog/backend/internal/apperr"
	"github.com/fitlog/backend/pkg/logger"
	"github.com/fitlog/backend/pkg/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var requestValidator = validator.New()

// parseBody decodes the JSON body and runs struct-tag validation, returning
// a client-safe message on the first failure.
func parseBody(c *fiber.Ctx, dst interface{}) (string, bool) {
	if err := c.BodyParser(dst); err != nil {
		return "invalid request body", false
	}

	if err := requestValidator.Struct(dst); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok && len(validationErrors) > 0 {
			first := validationErrors[0]
			field := strings.ToLower(first.Field())
			switch first.Tag() {
			case "required":
				return field + " is required", false
			case "email":
				return "invalid email address", false
			case "min":
				return field + " is too short", false
			default:
				return "invalid " + field, false
			}
		}
		return "invalid request payload", false
	}

	return "", true
}

// serviceError maps the session service's typed errors onto HTTP statuses.
// Untagged errors surface as a generic 500 and are logged with their cause.
func serviceError(c *fiber.Ctx, err error) error {
	switch apperr.CodeOf(err) {
	case apperr.CodeValidation:
		return utils.Error(c, fiber.StatusBadRequest, apperr.MessageOf(err))
	case apperr.CodeAuthentication:
		return utils.Error(c, fiber.StatusUnauthorized, apperr.MessageOf(err))
	case apperr.CodeConflict:
		return utils.Error(c, fiber.StatusConflict, apperr.MessageOf(err))
	case apperr.CodeNotFound:
		return utils.Error(c, fiber.StatusNotFound, apperr.MessageOf(err))
	default:
		logger.Error("unexpected_service_error", err, map[string]interface{}{
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusInternalServerError, "internal error")
	}
}
