package domain

import (
	"context"
	"time"
)

// MembershipStatus is the lifecycle state of a membership term.
type MembershipStatus string

const (
	MembershipStatusActive    MembershipStatus = "active"
	MembershipStatusInactive  MembershipStatus = "inactive"
	MembershipStatusCancelled MembershipStatus = "cancelled" // superseded by an upgrade
	MembershipStatusExpired   MembershipStatus = "expired"
)

// Membership is one contiguous term of paid membership.
// EndDate is exclusive.
type Membership struct {
	ID                   string           `bson:"_id,omitempty" json:"id"`
	UserID               string           `bson:"user_id" json:"user_id"`
	PlanID               string           `bson:"plan_id" json:"plan_id"`
	BillingPeriod        BillingPeriod    `bson:"billing_period" json:"billing_period"`
	StartDate            time.Time        `bson:"start_date" json:"start_date"`
	EndDate              time.Time        `bson:"end_date" json:"end_date"`
	Status               MembershipStatus `bson:"status" json:"status"`
	IsAutoRenew          bool             `bson:"is_auto_renew" json:"is_auto_renew"`
	LeadsUsedThisMonth   int              `bson:"leads_used_this_month" json:"leads_used_this_month"`
	LastLeadResetDate    time.Time        `bson:"last_lead_reset_date" json:"last_lead_reset_date"`
	PreviousMembershipID string           `bson:"previous_membership_id,omitempty" json:"previous_membership_id,omitempty"`
	Version              int64            `bson:"version" json:"version"`
	CreatedAt            time.Time        `bson:"created_at" json:"created_at"`
	UpdatedAt            time.Time        `bson:"updated_at" json:"updated_at"`
}

// IsActiveAt reports whether the term is active and not yet lapsed at t.
func (m *Membership) IsActiveAt(t time.Time) bool {
	return m.Status == MembershipStatusActive && t.Before(m.EndDate)
}

// RemainingDays returns the whole days left on the term at t, rounded up.
func (m *Membership) RemainingDays(t time.Time) int {
	return RemainingDays(m.EndDate, t)
}

// LeadsUsedAt returns the lead counter as seen at t. A counter last reset in an
// earlier calendar month reads as zero.
func (m *Membership) LeadsUsedAt(t time.Time) int {
	if leadMonthElapsed(m.LastLeadResetDate, t) {
		return 0
	}
	return m.LeadsUsedThisMonth
}

// RollLeadMonth zeroes the lead counter when t falls in a later calendar month
// than the last reset.
func (m *Membership) RollLeadMonth(t time.Time) {
	if leadMonthElapsed(m.LastLeadResetDate, t) {
		m.LeadsUsedThisMonth = 0
		m.LastLeadResetDate = t.UTC()
	}
}

func leadMonthElapsed(lastReset, now time.Time) bool {
	l := lastReset.UTC()
	n := now.UTC()
	return l.Year() != n.Year() || l.Month() != n.Month()
}

// MembershipRepository persists membership terms.
// Mutations are conditional on Version and return ErrConcurrentUpdate when the
// stored document has moved on since it was read.
type MembershipRepository interface {
	// Create inserts a term for a user with no active term.
	Create(ctx context.Context, membership *Membership) error
	GetByID(ctx context.Context, id string) (*Membership, error)
	GetActiveByUserID(ctx context.Context, userID string) (*Membership, error)
	ListByUserID(ctx context.Context, userID string) ([]*Membership, error)
	// Replace retires the previously read term (its Status already set to the
	// retired state) and inserts next in one transaction.
	Replace(ctx context.Context, retired *Membership, next *Membership) error
	// Update writes the mutable fields (status, auto-renew, lead counters) of a term.
	Update(ctx context.Context, membership *Membership) error
	ListLapsed(ctx context.Context, now time.Time) ([]*Membership, error)
}
