package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePurchase(t *testing.T) {
	t.Run("fresh purchase", func(t *testing.T) {
		p, err := ParsePurchase(CheckoutMetadata{
			UserID:        "user-1",
			PlanID:        "plan_contractor_basic",
			BillingPeriod: "monthly",
			IsUpgrade:     "false",
			AutoRenew:     "true",
		})
		require.NoError(t, err)

		fresh, ok := p.(FreshPurchase)
		require.True(t, ok, "expected FreshPurchase, got %T", p)
		assert.Equal(t, "user-1", fresh.PurchaserID())
		assert.Equal(t, "plan_contractor_basic", fresh.PlanID)
		assert.Equal(t, BillingPeriodMonthly, fresh.BillingPeriod)
		assert.True(t, fresh.AutoRenew)
	})

	t.Run("upgrade purchase", func(t *testing.T) {
		p, err := ParsePurchase(CheckoutMetadata{
			UserID:              "user-1",
			PlanID:              "plan_contractor_premium",
			BillingPeriod:       "year",
			IsUpgrade:           "true",
			CurrentMembershipID: "665f1c2e9b1e8a0001a1b2c3",
			FromPlanID:          "plan_contractor_basic",
			ToPlanID:            "plan_contractor_premium",
		})
		require.NoError(t, err)

		up, ok := p.(UpgradePurchase)
		require.True(t, ok, "expected UpgradePurchase, got %T", p)
		assert.Equal(t, "665f1c2e9b1e8a0001a1b2c3", up.CurrentMembershipID)
		assert.Equal(t, "plan_contractor_basic", up.FromPlanID)
		assert.Equal(t, "plan_contractor_premium", up.ToPlanID)
		assert.Equal(t, BillingPeriodYearly, up.BillingPeriod)

		fresh := up.AsFresh()
		assert.Equal(t, "plan_contractor_premium", fresh.PlanID)
		assert.Equal(t, BillingPeriodYearly, fresh.BillingPeriod)
	})

	t.Run("upgrade falls back to planId", func(t *testing.T) {
		p, err := ParsePurchase(CheckoutMetadata{
			UserID:              "user-1",
			PlanID:              "plan_contractor_premium",
			BillingPeriod:       "monthly",
			IsUpgrade:           "true",
			CurrentMembershipID: "m-1",
		})
		require.NoError(t, err)
		assert.Equal(t, "plan_contractor_premium", p.(UpgradePurchase).ToPlanID)
	})

	t.Run("upgrade without current term buys the target plan", func(t *testing.T) {
		p, err := ParsePurchase(CheckoutMetadata{
			UserID:        "user-1",
			PlanID:        "plan_contractor_premium",
			BillingPeriod: "monthly",
			IsUpgrade:     "true",
			AutoRenew:     "true",
		})
		require.NoError(t, err)

		fresh, ok := p.(FreshPurchase)
		require.True(t, ok, "expected FreshPurchase, got %T", p)
		assert.Equal(t, "user-1", fresh.UserID)
		assert.Equal(t, "plan_contractor_premium", fresh.PlanID)
		assert.Equal(t, BillingPeriodMonthly, fresh.BillingPeriod)
		assert.True(t, fresh.AutoRenew)
	})

	t.Run("upgrade keeps auto renew through fallback", func(t *testing.T) {
		p, err := ParsePurchase(CheckoutMetadata{
			UserID:              "user-1",
			ToPlanID:            "plan_contractor_premium",
			BillingPeriod:       "monthly",
			IsUpgrade:           "true",
			CurrentMembershipID: "m-1",
			AutoRenew:           "true",
		})
		require.NoError(t, err)

		up := p.(UpgradePurchase)
		assert.True(t, up.AutoRenew)
		assert.True(t, up.AsFresh().AutoRenew)
	})

	invalid := []struct {
		name string
		meta CheckoutMetadata
	}{
		{"missing user", CheckoutMetadata{PlanID: "p", BillingPeriod: "monthly"}},
		{"bad period", CheckoutMetadata{UserID: "u", PlanID: "p", BillingPeriod: "weekly"}},
		{"bad flag", CheckoutMetadata{UserID: "u", PlanID: "p", BillingPeriod: "monthly", IsUpgrade: "maybe"}},
		{"missing plan", CheckoutMetadata{UserID: "u", BillingPeriod: "monthly"}},
		{"upgrade without target plan", CheckoutMetadata{UserID: "u", CurrentMembershipID: "m-1", BillingPeriod: "monthly", IsUpgrade: "true"}},
		{"bad auto renew", CheckoutMetadata{UserID: "u", PlanID: "p", BillingPeriod: "monthly", AutoRenew: "sometimes"}},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePurchase(tt.meta)
			assert.True(t, errors.Is(err, ErrInvalidPurchase), "error = %v", err)
		})
	}
}

func TestPlanDurationDays(t *testing.T) {
	plan := &Plan{ID: "p", MonthlyDurationDays: 30, YearlyDurationDays: 365}

	days, err := plan.DurationDays(BillingPeriodMonthly)
	require.NoError(t, err)
	assert.Equal(t, 30, days)

	days, err = plan.DurationDays(BillingPeriodYearly)
	require.NoError(t, err)
	assert.Equal(t, 365, days)

	plan.MonthlyDurationDays = 0
	_, err = plan.DurationDays(BillingPeriodMonthly)
	assert.ErrorIs(t, err, ErrInvalidPlanDuration)

	var missing *Plan
	_, err = missing.DurationDays(BillingPeriodMonthly)
	assert.ErrorIs(t, err, ErrInvalidPlanDuration)
}
