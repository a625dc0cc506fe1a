package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/handypro/membership/internal/domain"
	"github.com/handypro/membership/internal/middleware"
	"github.com/handypro/membership/internal/service"
)

// MembershipHandler handles the authenticated member's membership endpoints
type MembershipHandler struct {
	memberships *service.MembershipService
}

// NewMembershipHandler creates a new MembershipHandler
func NewMembershipHandler(memberships *service.MembershipService) *MembershipHandler {
	return &MembershipHandler{memberships: memberships}
}

// GetMyMembership handles GET /v1/me/membership
// Returns the active term with its plan, days left and lead usage
func (h *MembershipHandler) GetMyMembership(c *fiber.Ctx) error {
	overview, err := h.memberships.GetOverview(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    overview,
	})
}

// ListMyMemberships handles GET /v1/me/memberships
func (h *MembershipHandler) ListMyMemberships(c *fiber.Ctx) error {
	memberships, err := h.memberships.ListMemberships(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    memberships,
	})
}

// PreviewUpgrade handles GET /v1/me/membership/upgrade-preview?plan_id=&billing_period=
func (h *MembershipHandler) PreviewUpgrade(c *fiber.Ctx) error {
	planID := c.Query("plan_id")
	if planID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "plan_id is required",
		})
	}

	period, err := domain.ParseBillingPeriod(c.Query("billing_period", string(domain.BillingPeriodMonthly)))
	if err != nil {
		return respondError(c, err)
	}

	quote, err := h.memberships.PreviewUpgrade(c.UserContext(), middleware.UserID(c), planID, period)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    quote,
	})
}

// SetAutoRenewRequest is the body of PATCH /v1/me/membership/auto-renew
type SetAutoRenewRequest struct {
	Enabled *bool `json:"enabled"`
}

// SetAutoRenew handles PATCH /v1/me/membership/auto-renew
func (h *MembershipHandler) SetAutoRenew(c *fiber.Ctx) error {
	var req SetAutoRenewRequest
	if err := c.BodyParser(&req); err != nil || req.Enabled == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "enabled (boolean) is required",
		})
	}

	m, err := h.memberships.SetAutoRenew(c.UserContext(), middleware.UserID(c), *req.Enabled)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    m,
	})
}

// ConsumeLead handles POST /v1/me/membership/leads
// Contractors only: charges one lead against the monthly allowance
func (h *MembershipHandler) ConsumeLead(c *fiber.Ctx) error {
	allowance, err := h.memberships.ConsumeLead(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    allowance,
	})
}
