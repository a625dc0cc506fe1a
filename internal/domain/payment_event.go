package domain

import (
	"context"
	"time"
)

// Payment event states
const (
	PaymentEventPending   = "pending"
	PaymentEventProcessed = "processed"
)

// PaymentEvent records a provider webhook delivery.
// A pending event is claimed by the delivery currently applying it.
type PaymentEvent struct {
	ID           string    `bson:"_id" json:"id"`
	Type         string    `bson:"type" json:"type"`
	UserID       string    `bson:"user_id" json:"user_id"`
	Status       string    `bson:"status" json:"status"`
	MembershipID string    `bson:"membership_id,omitempty" json:"membership_id,omitempty"`
	ClaimedAt    time.Time `bson:"claimed_at" json:"claimed_at"`
	ProcessedAt  time.Time `bson:"processed_at,omitempty" json:"processed_at,omitempty"`
}

// PaymentEventRepository de-duplicates webhook deliveries
type PaymentEventRepository interface {
	// Claim records the event as pending. It returns ErrDuplicateEvent if the
	// event was processed, or is pending with a claim younger than lease.
	Claim(ctx context.Context, event *PaymentEvent, lease time.Duration) error
	// Complete marks a claimed event processed.
	Complete(ctx context.Context, eventID, membershipID string) error
	// Release drops a pending claim so the provider's redelivery can retry it.
	Release(ctx context.Context, eventID string) error
}

// ReceiptArchive stores raw webhook payloads for reconciliation
type ReceiptArchive interface {
	Archive(ctx context.Context, eventID string, payload []byte) error
}
