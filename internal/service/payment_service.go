package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/handypro/membership/internal/domain"
)

// DefaultClaimLease is how long a delivery may hold a payment event before a
// redelivery is allowed to take it over.
const DefaultClaimLease = 5 * time.Minute

// PurchaseProcessor applies a decoded checkout to the user's membership
type PurchaseProcessor interface {
	ProcessPurchase(ctx context.Context, purchase domain.Purchase) (*domain.Membership, error)
}

// PaymentOutcome is the result of applying one provider event
type PaymentOutcome struct {
	Membership *domain.Membership
	Duplicate  bool
}

// PaymentService applies completed checkouts exactly once per provider event
type PaymentService struct {
	processor PurchaseProcessor
	events    domain.PaymentEventRepository
	archive   domain.ReceiptArchive
	lease     time.Duration
}

// NewPaymentService creates a new PaymentService. archive may be nil.
func NewPaymentService(processor PurchaseProcessor, events domain.PaymentEventRepository, archive domain.ReceiptArchive) *PaymentService {
	return &PaymentService{
		processor: processor,
		events:    events,
		archive:   archive,
		lease:     DefaultClaimLease,
	}
}

// ApplyCheckout claims the event, archives the raw payload and applies the purchase.
// A failed purchase releases the claim so the provider's retry can apply it.
func (s *PaymentService) ApplyCheckout(ctx context.Context, eventID, eventType string, payload []byte, purchase domain.Purchase) (*PaymentOutcome, error) {
	event := &domain.PaymentEvent{
		ID:     eventID,
		Type:   eventType,
		UserID: purchase.PurchaserID(),
	}

	if err := s.events.Claim(ctx, event, s.lease); err != nil {
		if errors.Is(err, domain.ErrDuplicateEvent) {
			log.Printf("[Payment] Event %s already processed, skipping", eventID)
			return &PaymentOutcome{Duplicate: true}, nil
		}
		return nil, err
	}

	if s.archive != nil {
		if err := s.archive.Archive(ctx, eventID, payload); err != nil {
			// Reconciliation can fall back to the provider's event log
			log.Printf("[Payment] Failed to archive event %s: %v", eventID, err)
		}
	}

	membership, err := s.processor.ProcessPurchase(ctx, purchase)
	if err != nil {
		if releaseErr := s.events.Release(context.WithoutCancel(ctx), eventID); releaseErr != nil {
			log.Printf("[Payment] Failed to release event %s: %v", eventID, releaseErr)
		}
		return nil, fmt.Errorf("failed to apply event %s: %w", eventID, err)
	}

	// The membership is written; an open claim would let a redelivery apply it twice
	if err := s.events.Complete(context.WithoutCancel(ctx), eventID, membership.ID); err != nil {
		log.Printf("[Payment] Failed to complete event %s for membership %s: %v", eventID, membership.ID, err)
	}

	log.Printf("[Payment] Event %s applied: user=%s membership=%s plan=%s",
		eventID, membership.UserID, membership.ID, membership.PlanID)

	return &PaymentOutcome{Membership: membership}, nil
}
