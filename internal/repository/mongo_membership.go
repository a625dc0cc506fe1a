package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/handypro/membership/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoMembershipRepository implements domain.MembershipRepository
type MongoMembershipRepository struct {
	collection *mongo.Collection
}

// NewMongoMembershipRepository creates a new membership repository
func NewMongoMembershipRepository(db *mongo.Database) *MongoMembershipRepository {
	coll := db.Collection("memberships")
	return &MongoMembershipRepository{
		collection: coll,
	}
}

// EnsureIndexes creates the indexes the repository relies on.
// The partial unique index on user_id is what keeps a user at one active term.
func (r *MongoMembershipRepository) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().
				SetName("uniq_active_membership_per_user").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": string(domain.MembershipStatusActive)}),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "end_date", Value: 1}},
			Options: options.Index().SetName("status_end_date"),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("user_history"),
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("failed to create membership indexes: %w", err)
	}
	return nil
}

func (r *MongoMembershipRepository) Create(ctx context.Context, membership *domain.Membership) error {
	now := time.Now().UTC()
	membership.CreatedAt = now
	membership.UpdatedAt = now
	membership.Version = 1

	objID := primitive.NewObjectID()
	if _, err := r.collection.InsertOne(ctx, membershipDoc(objID, membership)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// Another purchase activated a term for this user first
			return domain.ErrConcurrentUpdate
		}
		return fmt.Errorf("failed to create membership: %w", err)
	}

	membership.ID = objID.Hex()
	return nil
}

func (r *MongoMembershipRepository) GetByID(ctx context.Context, id string) (*domain.Membership, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrNotFound
	}

	var raw bson.M
	if err := r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&raw); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return mapBsonToMembership(raw), nil
}

func (r *MongoMembershipRepository) GetActiveByUserID(ctx context.Context, userID string) (*domain.Membership, error) {
	filter := bson.M{
		"user_id": userID,
		"status":  domain.MembershipStatusActive,
	}

	var raw bson.M
	if err := r.collection.FindOne(ctx, filter).Decode(&raw); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get active membership: %w", err)
	}
	return mapBsonToMembership(raw), nil
}

// ListByUserID returns every term of a user, newest first
func (r *MongoMembershipRepository) ListByUserID(ctx context.Context, userID string) ([]*domain.Membership, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships by user: %w", err)
	}
	defer cursor.Close(ctx)

	return decodeMemberships(ctx, cursor)
}

// Replace retires the old term and inserts the new one in a single transaction.
// The retire step only matches if the old term is still active at the version
// that was read; otherwise nothing is written and ErrConcurrentUpdate is returned.
func (r *MongoMembershipRepository) Replace(ctx context.Context, retired *domain.Membership, next *domain.Membership) error {
	oldID, err := primitive.ObjectIDFromHex(retired.ID)
	if err != nil {
		return domain.ErrInvalidID
	}

	now := time.Now().UTC()
	nextID := primitive.NewObjectID()
	next.PreviousMembershipID = retired.ID
	next.CreatedAt = now
	next.UpdatedAt = now
	next.Version = 1

	session, err := r.collection.Database().Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		filter := bson.M{
			"_id":     oldID,
			"status":  domain.MembershipStatusActive,
			"version": retired.Version,
		}
		update := bson.M{
			"$set": bson.M{
				"status":     retired.Status,
				"updated_at": now,
			},
			"$inc": bson.M{"version": 1},
		}

		result, err := r.collection.UpdateOne(sessCtx, filter, update)
		if err != nil {
			return nil, err
		}
		if result.MatchedCount == 0 {
			return nil, domain.ErrConcurrentUpdate
		}

		if _, err := r.collection.InsertOne(sessCtx, membershipDoc(nextID, next)); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, domain.ErrConcurrentUpdate
			}
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrConcurrentUpdate) {
			return domain.ErrConcurrentUpdate
		}
		return fmt.Errorf("failed to replace membership: %w", err)
	}

	retired.Version++
	retired.UpdatedAt = now
	next.ID = nextID.Hex()
	return nil
}

// Update writes status, auto-renew and lead counters, guarded by version
func (r *MongoMembershipRepository) Update(ctx context.Context, membership *domain.Membership) error {
	objID, err := primitive.ObjectIDFromHex(membership.ID)
	if err != nil {
		return domain.ErrInvalidID
	}

	now := time.Now().UTC()
	filter := bson.M{
		"_id":     objID,
		"version": membership.Version,
	}
	update := bson.M{
		"$set": bson.M{
			"status":                membership.Status,
			"is_auto_renew":         membership.IsAutoRenew,
			"leads_used_this_month": membership.LeadsUsedThisMonth,
			"last_lead_reset_date":  membership.LastLeadResetDate,
			"updated_at":            now,
		},
		"$inc": bson.M{"version": 1},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrConcurrentUpdate
		}
		return fmt.Errorf("failed to update membership: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrConcurrentUpdate
	}

	membership.Version++
	membership.UpdatedAt = now
	return nil
}

// ListLapsed returns active terms whose end date is not after now
func (r *MongoMembershipRepository) ListLapsed(ctx context.Context, now time.Time) ([]*domain.Membership, error) {
	filter := bson.M{
		"status":   domain.MembershipStatusActive,
		"end_date": bson.M{"$lte": now.UTC()},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list lapsed memberships: %w", err)
	}
	defer cursor.Close(ctx)

	return decodeMemberships(ctx, cursor)
}

func decodeMemberships(ctx context.Context, cursor *mongo.Cursor) ([]*domain.Membership, error) {
	var memberships []*domain.Membership
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, err
		}
		memberships = append(memberships, mapBsonToMembership(raw))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("membership cursor error: %w", err)
	}
	return memberships, nil
}

func membershipDoc(objID primitive.ObjectID, m *domain.Membership) bson.M {
	doc := bson.M{
		"_id":                   objID,
		"user_id":               m.UserID,
		"plan_id":               m.PlanID,
		"billing_period":        m.BillingPeriod,
		"start_date":            m.StartDate,
		"end_date":              m.EndDate,
		"status":                m.Status,
		"is_auto_renew":         m.IsAutoRenew,
		"leads_used_this_month": m.LeadsUsedThisMonth,
		"last_lead_reset_date":  m.LastLeadResetDate,
		"version":               m.Version,
		"created_at":            m.CreatedAt,
		"updated_at":            m.UpdatedAt,
	}
	if m.PreviousMembershipID != "" {
		doc["previous_membership_id"] = m.PreviousMembershipID
	}
	return doc
}

func mapBsonToMembership(raw bson.M) *domain.Membership {
	m := &domain.Membership{}

	if oid, ok := raw["_id"].(primitive.ObjectID); ok {
		m.ID = oid.Hex()
	}
	if userID, ok := raw["user_id"].(string); ok {
		m.UserID = userID
	}
	if planID, ok := raw["plan_id"].(string); ok {
		m.PlanID = planID
	}
	if period, ok := raw["billing_period"].(string); ok {
		m.BillingPeriod = domain.BillingPeriod(period)
	}
	if startDate, ok := raw["start_date"].(primitive.DateTime); ok {
		m.StartDate = startDate.Time().UTC()
	}
	if endDate, ok := raw["end_date"].(primitive.DateTime); ok {
		m.EndDate = endDate.Time().UTC()
	}
	if status, ok := raw["status"].(string); ok {
		m.Status = domain.MembershipStatus(status)
	}
	if autoRenew, ok := raw["is_auto_renew"].(bool); ok {
		m.IsAutoRenew = autoRenew
	}
	m.LeadsUsedThisMonth = int(asInt64(raw["leads_used_this_month"]))
	if reset, ok := raw["last_lead_reset_date"].(primitive.DateTime); ok {
		m.LastLeadResetDate = reset.Time().UTC()
	}
	if prev, ok := raw["previous_membership_id"].(string); ok {
		m.PreviousMembershipID = prev
	}
	m.Version = asInt64(raw["version"])
	if created, ok := raw["created_at"].(primitive.DateTime); ok {
		m.CreatedAt = created.Time().UTC()
	}
	if updated, ok := raw["updated_at"].(primitive.DateTime); ok {
		m.UpdatedAt = updated.Time().UTC()
	}

	return m
}

// asInt64 reads a numeric field that may have been stored as int32 or int64
func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
