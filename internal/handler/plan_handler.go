package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/handypro/membership/internal/domain"
	"github.com/handypro/membership/internal/service"
)

// PlanHandler serves the plan catalogue
type PlanHandler struct {
	plans *service.PlanService
}

// NewPlanHandler creates a new PlanHandler
func NewPlanHandler(plans *service.PlanService) *PlanHandler {
	return &PlanHandler{plans: plans}
}

// ListPlans handles GET /v1/plans?audience=
// Public: storefront reads the catalogue before checkout
func (h *PlanHandler) ListPlans(c *fiber.Ctx) error {
	audience := c.Query("audience")
	if audience != "" && audience != domain.AudienceCustomer && audience != domain.AudienceContractor {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "audience must be customer or contractor",
		})
	}

	plans, err := h.plans.ListPlans(c.UserContext(), audience)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    plans,
	})
}

// CreatePlan handles POST /v1/admin/plans
func (h *PlanHandler) CreatePlan(c *fiber.Ctx) error {
	var plan domain.Plan
	if err := c.BodyParser(&plan); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid request body",
		})
	}

	if err := h.plans.CreatePlan(c.UserContext(), &plan); err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    plan,
	})
}

// UpdatePlan handles PUT /v1/admin/plans/:id
func (h *PlanHandler) UpdatePlan(c *fiber.Ctx) error {
	var plan domain.Plan
	if err := c.BodyParser(&plan); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid request body",
		})
	}
	plan.ID = c.Params("id")

	if err := h.plans.UpdatePlan(c.UserContext(), &plan); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    plan,
	})
}
