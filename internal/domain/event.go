package domain

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// Membership event types, also used as routing keys
const (
	EventMembershipCreated  = "membership.created"
	EventMembershipUpgraded = "membership.upgraded"
	EventMembershipExpired  = "membership.expired"
)

// MembershipEvent announces a lifecycle change to other marketplace services.
// ID is a ULID so consumers can dedupe and order redeliveries.
type MembershipEvent struct {
	ID                   string    `json:"id"`
	Type                 string    `json:"type"`
	MembershipID         string    `json:"membership_id"`
	PreviousMembershipID string    `json:"previous_membership_id,omitempty"`
	UserID               string    `json:"user_id"`
	PlanID               string    `json:"plan_id"`
	StartDate            time.Time `json:"start_date"`
	EndDate              time.Time `json:"end_date"`
	OccurredAt           time.Time `json:"occurred_at"`
}

// NewMembershipEvent builds an event describing m.
func NewMembershipEvent(eventType string, m *Membership, at time.Time) MembershipEvent {
	return MembershipEvent{
		ID:                   ulid.Make().String(),
		Type:                 eventType,
		MembershipID:         m.ID,
		PreviousMembershipID: m.PreviousMembershipID,
		UserID:               m.UserID,
		PlanID:               m.PlanID,
		StartDate:            m.StartDate,
		EndDate:              m.EndDate,
		OccurredAt:           at.UTC(),
	}
}

// EventPublisher delivers membership events
type EventPublisher interface {
	Publish(ctx context.Context, event MembershipEvent) error
}
