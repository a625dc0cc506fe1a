package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/handypro/membership/internal/service"
)

// AdminHandler handles support and operations endpoints
type AdminHandler struct {
	memberships *service.MembershipService
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(memberships *service.MembershipService) *AdminHandler {
	return &AdminHandler{memberships: memberships}
}

// ListUserMemberships handles GET /v1/admin/users/:id/memberships
func (h *AdminHandler) ListUserMemberships(c *fiber.Ctx) error {
	memberships, err := h.memberships.ListMemberships(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    memberships,
	})
}

// ExpireLapsed handles POST /v1/admin/memberships/expire
func (h *AdminHandler) ExpireLapsed(c *fiber.Ctx) error {
	count, err := h.memberships.ExpireLapsedMemberships(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"expired": count},
	})
}
