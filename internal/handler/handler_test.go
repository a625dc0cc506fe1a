package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/handypro/membership/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrNotFound, fiber.StatusNotFound},
		{fmt.Errorf("%w: bad", domain.ErrInvalidPlan), fiber.StatusBadRequest},
		{domain.ErrInvalidBillingPeriod, fiber.StatusBadRequest},
		{domain.ErrLeadLimitReached, fiber.StatusConflict},
		{domain.ErrPlanInactive, fiber.StatusConflict},
		{domain.ErrInvalidPlanDuration, fiber.StatusUnprocessableEntity},
		{domain.ErrConcurrentUpdate, fiber.StatusServiceUnavailable},
		{fmt.Errorf("boom"), fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestWebhookStatusFor(t *testing.T) {
	assert.Equal(t, fiber.StatusBadRequest, webhookStatusFor(domain.ErrInvalidPurchase))
	assert.Equal(t, fiber.StatusUnprocessableEntity,
		webhookStatusFor(fmt.Errorf("failed to load plan x: %w", domain.ErrNotFound)))
	assert.Equal(t, fiber.StatusUnprocessableEntity, webhookStatusFor(domain.ErrInvalidPlanDuration))
	assert.Equal(t, fiber.StatusServiceUnavailable, webhookStatusFor(domain.ErrConcurrentUpdate))
	assert.Equal(t, fiber.StatusInternalServerError, webhookStatusFor(fmt.Errorf("mongo down")))
}

func TestVerifySignature(t *testing.T) {
	h := NewWebhookHandler(nil, "whsec")
	body := []byte(`{"id":"evt_1"}`)

	mac := hmac.New(sha256.New, []byte("whsec"))
	mac.Write(body)
	valid := hex.EncodeToString(mac.Sum(nil))

	assert.True(t, h.verifySignature(body, valid))
	assert.False(t, h.verifySignature(body, ""))
	assert.False(t, h.verifySignature([]byte(`{"id":"evt_2"}`), valid))
}
