package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// BillingPeriod is the purchase cadence that sets the base length of a term.
type BillingPeriod string

const (
	BillingPeriodMonthly BillingPeriod = "monthly"
	BillingPeriodYearly  BillingPeriod = "yearly"
)

// ParseBillingPeriod normalizes provider values such as "month" or "Yearly".
func ParseBillingPeriod(s string) (BillingPeriod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monthly", "month":
		return BillingPeriodMonthly, nil
	case "yearly", "year", "annual":
		return BillingPeriodYearly, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidBillingPeriod, s)
	}
}

// Plan audiences
const (
	AudienceCustomer   = "customer"
	AudienceContractor = "contractor"
)

// UnlimitedLeads disables the monthly lead allowance check.
const UnlimitedLeads = -1

// Plan is a purchasable membership tier. Tier orders plans (higher is better),
// prices are in the smallest currency unit, and MonthlyLeadLimit is 0 for no
// lead allowance or UnlimitedLeads.
type Plan struct {
	ID                  string    `bson:"_id,omitempty" json:"id"`
	Name                string    `bson:"name" json:"name"`
	Description         string    `bson:"description" json:"description"`
	Audience            string    `bson:"audience" json:"audience"`
	Tier                int       `bson:"tier" json:"tier"`
	MonthlyPrice        int64     `bson:"monthly_price" json:"monthly_price"`
	YearlyPrice         int64     `bson:"yearly_price" json:"yearly_price"`
	MonthlyDurationDays int       `bson:"monthly_duration_days" json:"monthly_duration_days"`
	YearlyDurationDays  int       `bson:"yearly_duration_days" json:"yearly_duration_days"`
	MonthlyLeadLimit    int       `bson:"monthly_lead_limit" json:"monthly_lead_limit"`
	IsActive            bool      `bson:"is_active" json:"is_active"`
	CreatedAt           time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt           time.Time `bson:"updated_at" json:"updated_at"`
}

// DurationDays resolves the term length for a billing period.
func (p *Plan) DurationDays(period BillingPeriod) (int, error) {
	if p == nil {
		return 0, ErrInvalidPlanDuration
	}

	var days int
	switch period {
	case BillingPeriodMonthly:
		days = p.MonthlyDurationDays
	case BillingPeriodYearly:
		days = p.YearlyDurationDays
	default:
		return 0, fmt.Errorf("%w: plan %s, period %q", ErrInvalidPlanDuration, p.ID, period)
	}

	if days <= 0 {
		return 0, fmt.Errorf("%w: plan %s, period %s", ErrInvalidPlanDuration, p.ID, period)
	}
	return days, nil
}

// Price returns the price for a billing period.
func (p *Plan) Price(period BillingPeriod) int64 {
	if period == BillingPeriodYearly {
		return p.YearlyPrice
	}
	return p.MonthlyPrice
}

// HasLeadAllowance reports whether the plan grants contractor leads at all.
func (p *Plan) HasLeadAllowance() bool {
	return p.MonthlyLeadLimit != 0
}

// Validate checks a plan definition before it is stored.
func (p *Plan) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidPlan)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPlan)
	}
	if p.Audience != AudienceCustomer && p.Audience != AudienceContractor {
		return fmt.Errorf("%w: audience must be %s or %s", ErrInvalidPlan, AudienceCustomer, AudienceContractor)
	}
	if p.MonthlyDurationDays < 0 || p.YearlyDurationDays < 0 {
		return fmt.Errorf("%w: durations cannot be negative", ErrInvalidPlan)
	}
	if p.MonthlyDurationDays == 0 && p.YearlyDurationDays == 0 {
		return fmt.Errorf("%w: at least one billing period needs a duration", ErrInvalidPlan)
	}
	if p.MonthlyPrice < 0 || p.YearlyPrice < 0 {
		return fmt.Errorf("%w: prices cannot be negative", ErrInvalidPlan)
	}
	if p.MonthlyLeadLimit < UnlimitedLeads {
		return fmt.Errorf("%w: monthly_lead_limit must be -1 or greater", ErrInvalidPlan)
	}
	return nil
}

// PlanRepository defines operations for managing plans
type PlanRepository interface {
	Create(ctx context.Context, plan *Plan) error
	GetByID(ctx context.Context, id string) (*Plan, error)
	GetActivePlans(ctx context.Context) ([]*Plan, error)
	Update(ctx context.Context, plan *Plan) error
}
