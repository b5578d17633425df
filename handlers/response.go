package handlers

import (
	"errors"

	"github.com/fenilmodi00/nepal-ipo-radar/shared"
	"github.com/gofiber/fiber/v2"
)

// errorStatus maps the service error taxonomy onto HTTP status codes
func errorStatus(err error) int {
	var serviceErr *shared.ServiceError
	if !errors.As(err, &serviceErr) {
		return fiber.StatusInternalServerError
	}

	switch serviceErr.GetCategory() {
	case shared.ErrorCategoryValidation:
		return fiber.StatusBadRequest
	case shared.ErrorCategoryDuplicate:
		return fiber.StatusConflict
	case shared.ErrorCategoryStore:
		return fiber.StatusServiceUnavailable
	case shared.ErrorCategoryProvider, shared.ErrorCategoryNotification:
		return fiber.StatusBadGateway
	case shared.ErrorCategoryTimeout:
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

// errorMessage returns the user-facing message of a service error
func errorMessage(err error) string {
	var serviceErr *shared.ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Message
	}
	return err.Error()
}

func sendError(c *fiber.Ctx, err error) error {
	return c.Status(errorStatus(err)).JSON(fiber.Map{
		"success": false,
		"error":   errorMessage(err),
	})
}
