package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/handypro/membership/internal/domain"
	"github.com/handypro/membership/internal/service"
	"github.com/handypro/membership/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body
const SignatureHeader = "X-Webhook-Signature"

// Checkout events that can complete a purchase
const (
	EventCheckoutCompleted      = "checkout.session.completed"
	EventCheckoutAsyncSucceeded = "checkout.session.async_payment_succeeded"
	paymentStatusPaid           = "paid"
)

// WebhookHandler handles payment provider webhooks
type WebhookHandler struct {
	payments *service.PaymentService
	secret   string
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(payments *service.PaymentService, secret string) *WebhookHandler {
	return &WebhookHandler{
		payments: payments,
		secret:   secret,
	}
}

// CheckoutWebhookRequest is the provider's event envelope
type CheckoutWebhookRequest struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID            string                  `json:"id"`
			PaymentStatus string                  `json:"payment_status"`
			Metadata      domain.CheckoutMetadata `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// PaymentWebhook handles POST /v1/payments/webhook
// This is a public endpoint authenticated by the body signature.
// Status codes follow the provider's retry contract: 2xx acknowledges,
// 4xx stops retries and 5xx asks for redelivery.
func (h *WebhookHandler) PaymentWebhook(c *fiber.Ctx) error {
	ctx := c.UserContext()
	body := c.Body()

	if !h.verifySignature(body, c.Get(SignatureHeader)) {
		log.Printf("[Webhook] Signature verification failed")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "invalid signature",
		})
	}

	var req CheckoutWebhookRequest
	if err := json.Unmarshal(body, &req); err != nil || req.ID == "" {
		log.Printf("[Webhook] Failed to parse body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid request body",
		})
	}

	log.Printf("[Webhook] Received event: id=%s, type=%s, payment_status=%s",
		req.ID, req.Type, req.Data.Object.PaymentStatus)

	if req.Type != EventCheckoutCompleted && req.Type != EventCheckoutAsyncSucceeded {
		return c.JSON(fiber.Map{
			"success": true,
			"message": "event ignored",
		})
	}
	if req.Data.Object.PaymentStatus != paymentStatusPaid {
		return c.JSON(fiber.Map{
			"success": true,
			"message": "status acknowledged",
		})
	}

	purchase, err := domain.ParsePurchase(req.Data.Object.Metadata)
	if err != nil {
		log.Printf("[Webhook] Invalid metadata on event %s: %v", req.ID, err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	// Fiber reuses the request buffer after the handler returns
	payload := append([]byte(nil), body...)
	outcome, err := h.payments.ApplyCheckout(ctx, req.ID, req.Type, payload, purchase)
	if err != nil {
		status := webhookStatusFor(err)
		log.Printf("[Webhook] Failed to apply event %s (status %d): %v", req.ID, status, err)
		return c.Status(status).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	if outcome.Duplicate {
		return c.JSON(fiber.Map{
			"success": true,
			"message": "already processed",
		})
	}

	m := outcome.Membership
	telemetry.TagMembership(c, m.UserID, m.ID)
	telemetry.AddSpanEvent(c, "membership.applied", attribute.String("plan_id", m.PlanID))

	return c.JSON(fiber.Map{
		"success": true,
		"message": "payment processed",
		"data": fiber.Map{
			"membership_id": m.ID,
			"plan_id":       m.PlanID,
			"start_date":    m.StartDate,
			"end_date":      m.EndDate,
		},
	})
}

// webhookStatusFor maps purchase failures onto the provider's retry contract
func webhookStatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidPurchase):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidPlanDuration), errors.Is(err, domain.ErrNotFound):
		// Plan data must be fixed before a retry can succeed
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrConcurrentUpdate):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// verifySignature validates hex(hmac_sha256(secret, body))
func (h *WebhookHandler) verifySignature(body []byte, providedSig string) bool {
	if providedSig == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expectedSig := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expectedSig), []byte(providedSig))
}
