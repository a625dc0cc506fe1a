package handler

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/handypro/membership/internal/domain"
)

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidBillingPeriod),
		errors.Is(err, domain.ErrInvalidPurchase),
		errors.Is(err, domain.ErrInvalidPlan):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrPreconditionViolation),
		errors.Is(err, domain.ErrLeadLimitReached),
		errors.Is(err, domain.ErrPlanInactive):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrInvalidPlanDuration):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrConcurrentUpdate):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes the standard error envelope. Internal errors are logged
// and their detail is not returned.
func respondError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	message := err.Error()
	if status == fiber.StatusInternalServerError {
		log.Printf("[Handler] %s %s failed: %v", c.Method(), c.Path(), err)
		message = "internal server error"
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}
