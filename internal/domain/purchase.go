package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// CheckoutMetadata is the metadata bag attached to a checkout session by the
// storefront. Payment providers deliver every value as a string.
type CheckoutMetadata struct {
	UserID              string `json:"userId"`
	PlanID              string `json:"planId"`
	BillingPeriod       string `json:"billingPeriod"`
	IsUpgrade           string `json:"isUpgrade"`
	CurrentMembershipID string `json:"currentMembershipId,omitempty"`
	FromPlanID          string `json:"fromPlanId,omitempty"`
	ToPlanID            string `json:"toPlanId,omitempty"`
	AutoRenew           string `json:"autoRenew,omitempty"`
}

// Purchase is a decoded checkout: either a FreshPurchase or an UpgradePurchase.
type Purchase interface {
	PurchaserID() string
	isPurchase()
}

// FreshPurchase buys a plan for a user with no active term.
type FreshPurchase struct {
	UserID        string
	PlanID        string
	BillingPeriod BillingPeriod
	AutoRenew     bool
}

// UpgradePurchase replaces the user's active term with a higher tier.
type UpgradePurchase struct {
	UserID              string
	CurrentMembershipID string
	FromPlanID          string
	ToPlanID            string
	BillingPeriod       BillingPeriod
	AutoRenew           bool
}

func (p FreshPurchase) PurchaserID() string   { return p.UserID }
func (p UpgradePurchase) PurchaserID() string { return p.UserID }

func (FreshPurchase) isPurchase()   {}
func (UpgradePurchase) isPurchase() {}

// AsFresh converts an upgrade that could not be applied into a fresh purchase
// of the target plan.
func (p UpgradePurchase) AsFresh() FreshPurchase {
	return FreshPurchase{
		UserID:        p.UserID,
		PlanID:        p.ToPlanID,
		BillingPeriod: p.BillingPeriod,
		AutoRenew:     p.AutoRenew,
	}
}

// ParsePurchase decodes checkout metadata into a typed purchase.
func ParsePurchase(meta CheckoutMetadata) (Purchase, error) {
	userID := strings.TrimSpace(meta.UserID)
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidPurchase)
	}

	period, err := ParseBillingPeriod(meta.BillingPeriod)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPurchase, err)
	}

	isUpgrade, err := parseFlag(meta.IsUpgrade)
	if err != nil {
		return nil, fmt.Errorf("%w: isUpgrade: %v", ErrInvalidPurchase, err)
	}

	autoRenew, err := parseFlag(meta.AutoRenew)
	if err != nil {
		return nil, fmt.Errorf("%w: autoRenew: %v", ErrInvalidPurchase, err)
	}

	if !isUpgrade {
		planID := strings.TrimSpace(meta.PlanID)
		if planID == "" {
			return nil, fmt.Errorf("%w: planId is required", ErrInvalidPurchase)
		}
		return FreshPurchase{
			UserID:        userID,
			PlanID:        planID,
			BillingPeriod: period,
			AutoRenew:     autoRenew,
		}, nil
	}

	toPlanID := strings.TrimSpace(meta.ToPlanID)
	if toPlanID == "" {
		// Older storefront builds only sent planId.
		toPlanID = strings.TrimSpace(meta.PlanID)
	}
	if toPlanID == "" {
		return nil, fmt.Errorf("%w: toPlanId is required for upgrades", ErrInvalidPurchase)
	}

	upgrade := UpgradePurchase{
		UserID:              userID,
		CurrentMembershipID: strings.TrimSpace(meta.CurrentMembershipID),
		FromPlanID:          strings.TrimSpace(meta.FromPlanID),
		ToPlanID:            toPlanID,
		BillingPeriod:       period,
		AutoRenew:           autoRenew,
	}
	// Without a term to replace the payment still buys the target plan
	if upgrade.CurrentMembershipID == "" {
		return upgrade.AsFresh(), nil
	}
	return upgrade, nil
}

func parseFlag(s string) (bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}
