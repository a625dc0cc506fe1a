package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/handypro/membership/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoPaymentEventRepository implements domain.PaymentEventRepository.
// The provider's event id is the document _id, so the primary key index
// rejects a second claim for the same delivery.
type MongoPaymentEventRepository struct {
	collection *mongo.Collection
}

// NewMongoPaymentEventRepository creates a new payment event repository
func NewMongoPaymentEventRepository(db *mongo.Database) *MongoPaymentEventRepository {
	return &MongoPaymentEventRepository{
		collection: db.Collection("payment_events"),
	}
}

func (r *MongoPaymentEventRepository) Claim(ctx context.Context, event *domain.PaymentEvent, lease time.Duration) error {
	now := time.Now().UTC()
	event.Status = domain.PaymentEventPending
	event.ClaimedAt = now

	doc := bson.M{
		"_id":        event.ID,
		"type":       event.Type,
		"user_id":    event.UserID,
		"status":     event.Status,
		"claimed_at": event.ClaimedAt,
	}

	_, err := r.collection.InsertOne(ctx, doc)
	if err == nil {
		return nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("failed to claim payment event: %w", err)
	}

	// A pending claim older than the lease belongs to a delivery that died mid-way
	filter := bson.M{
		"_id":        event.ID,
		"status":     domain.PaymentEventPending,
		"claimed_at": bson.M{"$lt": now.Add(-lease)},
	}
	result, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"claimed_at": now}})
	if err != nil {
		return fmt.Errorf("failed to take over payment event: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrDuplicateEvent
	}
	return nil
}

func (r *MongoPaymentEventRepository) Complete(ctx context.Context, eventID, membershipID string) error {
	update := bson.M{
		"$set": bson.M{
			"status":        domain.PaymentEventProcessed,
			"membership_id": membershipID,
			"processed_at":  time.Now().UTC(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": eventID}, update)
	if err != nil {
		return fmt.Errorf("failed to complete payment event: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MongoPaymentEventRepository) Release(ctx context.Context, eventID string) error {
	filter := bson.M{"_id": eventID, "status": domain.PaymentEventPending}
	if _, err := r.collection.DeleteOne(ctx, filter); err != nil {
		return fmt.Errorf("failed to release payment event: %w", err)
	}
	return nil
}
