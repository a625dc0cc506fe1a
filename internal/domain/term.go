package domain

import (
	"math"
	"time"
)

// Day is the unit terms are measured in.
const Day = 24 * time.Hour

// RemainingDays returns ceil((end - now) / 1 day), clamped at zero.
// A partial remaining day counts as a whole day.
func RemainingDays(end, now time.Time) int {
	left := end.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(float64(left) / float64(Day)))
}

// CreateFreshTerm builds the term for a user with no active membership.
func CreateFreshTerm(userID string, plan *Plan, period BillingPeriod, now time.Time) (*Membership, error) {
	days, err := plan.DurationDays(period)
	if err != nil {
		return nil, err
	}

	now = now.UTC()
	return &Membership{
		UserID:            userID,
		PlanID:            plan.ID,
		BillingPeriod:     period,
		StartDate:         now,
		EndDate:           now.Add(time.Duration(days) * Day),
		Status:            MembershipStatusActive,
		LastLeadResetDate: now,
	}, nil
}

// UpgradeTerm builds the term that replaces current when the user moves to plan.
//
// The new term keeps current's start date, and runs from now for the days left
// on current plus the new period. If current has already lapsed the result is a
// fresh term. Usage counters start over.
func UpgradeTerm(current *Membership, plan *Plan, period BillingPeriod, now time.Time) (*Membership, error) {
	if current == nil || current.Status != MembershipStatusActive {
		return nil, ErrPreconditionViolation
	}

	days, err := plan.DurationDays(period)
	if err != nil {
		return nil, err
	}

	now = now.UTC()
	if !now.Before(current.EndDate) {
		next, err := CreateFreshTerm(current.UserID, plan, period, now)
		if err != nil {
			return nil, err
		}
		next.IsAutoRenew = current.IsAutoRenew
		next.PreviousMembershipID = current.ID
		return next, nil
	}

	total := current.RemainingDays(now) + days
	return &Membership{
		UserID:               current.UserID,
		PlanID:               plan.ID,
		BillingPeriod:        period,
		StartDate:            current.StartDate,
		EndDate:              now.Add(time.Duration(total) * Day),
		Status:               MembershipStatusActive,
		IsAutoRenew:          current.IsAutoRenew,
		LeadsUsedThisMonth:   0,
		LastLeadResetDate:    now,
		PreviousMembershipID: current.ID,
	}, nil
}

// RetiredStatus is the status the superseded term takes when replaced at now.
func RetiredStatus(current *Membership, now time.Time) MembershipStatus {
	if !now.Before(current.EndDate) {
		return MembershipStatusExpired
	}
	return MembershipStatusCancelled
}
