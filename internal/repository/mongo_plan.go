package repository

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/handypro/membership/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoPlanRepository implements domain.PlanRepository
type MongoPlanRepository struct {
	collection *mongo.Collection
}

// NewMongoPlanRepository creates a new plan repository
func NewMongoPlanRepository(db *mongo.Database) *MongoPlanRepository {
	coll := db.Collection("plans")
	return &MongoPlanRepository{
		collection: coll,
	}
}

func (r *MongoPlanRepository) Create(ctx context.Context, plan *domain.Plan) error {
	now := time.Now().UTC()
	plan.CreatedAt = now
	plan.UpdatedAt = now

	doc := bson.M{
		"_id":                   plan.ID, // Using string ID (e.g., "plan_contractor_basic")
		"name":                  plan.Name,
		"description":           plan.Description,
		"audience":              plan.Audience,
		"tier":                  plan.Tier,
		"monthly_price":         plan.MonthlyPrice,
		"yearly_price":          plan.YearlyPrice,
		"monthly_duration_days": plan.MonthlyDurationDays,
		"yearly_duration_days":  plan.YearlyDurationDays,
		"monthly_lead_limit":    plan.MonthlyLeadLimit,
		"is_active":             plan.IsActive,
		"created_at":            plan.CreatedAt,
		"updated_at":            plan.UpdatedAt,
	}

	_, err := r.collection.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: plan %s already exists", domain.ErrInvalidPlan, plan.ID)
		}
		return fmt.Errorf("failed to create plan: %w", err)
	}
	return nil
}

func (r *MongoPlanRepository) GetByID(ctx context.Context, id string) (*domain.Plan, error) {
	var raw bson.M
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&raw); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return mapBsonToPlan(raw), nil
}

// GetActivePlans lists purchasable plans ordered by audience then tier
func (r *MongoPlanRepository) GetActivePlans(ctx context.Context) ([]*domain.Plan, error) {
	opts := options.Find().SetSort(bson.D{{Key: "audience", Value: 1}, {Key: "tier", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"is_active": true}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list active plans: %w", err)
	}
	defer cursor.Close(ctx)

	var plans []*domain.Plan
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, err
		}
		plans = append(plans, mapBsonToPlan(raw))
	}
	return plans, nil
}

func (r *MongoPlanRepository) Update(ctx context.Context, plan *domain.Plan) error {
	plan.UpdatedAt = time.Now().UTC()

	update := bson.M{
		"$set": bson.M{
			"name":                  plan.Name,
			"description":           plan.Description,
			"audience":              plan.Audience,
			"tier":                  plan.Tier,
			"monthly_price":         plan.MonthlyPrice,
			"yearly_price":          plan.YearlyPrice,
			"monthly_duration_days": plan.MonthlyDurationDays,
			"yearly_duration_days":  plan.YearlyDurationDays,
			"monthly_lead_limit":    plan.MonthlyLeadLimit,
			"is_active":             plan.IsActive,
			"updated_at":            plan.UpdatedAt,
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": plan.ID}, update)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DefaultPlans is the catalogue seeded into a fresh database
func DefaultPlans() []*domain.Plan {
	return []*domain.Plan{
		{
			ID:                  "plan_contractor_basic",
			Name:                "Contractor Basic",
			Description:         "Listing in the directory and 10 customer leads per month",
			Audience:            domain.AudienceContractor,
			Tier:                1,
			MonthlyPrice:        1900,
			YearlyPrice:         19000,
			MonthlyDurationDays: 30,
			YearlyDurationDays:  365,
			MonthlyLeadLimit:    10,
			IsActive:            true,
		},
		{
			ID:                  "plan_contractor_standard",
			Name:                "Contractor Standard",
			Description:         "Priority placement and 30 customer leads per month",
			Audience:            domain.AudienceContractor,
			Tier:                2,
			MonthlyPrice:        4900,
			YearlyPrice:         49000,
			MonthlyDurationDays: 30,
			YearlyDurationDays:  365,
			MonthlyLeadLimit:    30,
			IsActive:            true,
		},
		{
			ID:                  "plan_contractor_premium",
			Name:                "Contractor Premium",
			Description:         "Top placement and unlimited customer leads",
			Audience:            domain.AudienceContractor,
			Tier:                3,
			MonthlyPrice:        9900,
			YearlyPrice:         99000,
			MonthlyDurationDays: 30,
			YearlyDurationDays:  365,
			MonthlyLeadLimit:    domain.UnlimitedLeads,
			IsActive:            true,
		},
		{
			ID:                  "plan_customer_premium",
			Name:                "Homeowner Premium",
			Description:         "Discounted service fees and priority booking",
			Audience:            domain.AudienceCustomer,
			Tier:                1,
			MonthlyPrice:        999,
			YearlyPrice:         9990,
			MonthlyDurationDays: 30,
			YearlyDurationDays:  365,
			IsActive:            true,
		},
	}
}

// SeedDefaultPlans seeds the default plans if they don't exist
// Idempotency: checks by _id (not by name) to prevent duplicates
func (r *MongoPlanRepository) SeedDefaultPlans(ctx context.Context) error {
	for _, plan := range DefaultPlans() {
		_, err := r.GetByID(ctx, plan.ID)
		if err == nil {
			log.Printf("[Seed] Plan %s already exists, skipping", plan.ID)
			continue
		}
		if err != domain.ErrNotFound {
			return fmt.Errorf("failed to check plan existence: %w", err)
		}

		if err := r.Create(ctx, plan); err != nil {
			return fmt.Errorf("failed to seed plan %s: %w", plan.ID, err)
		}

		log.Printf("[Seed] Created plan: %s (%s) - Monthly: %d, Yearly: %d, Leads: %d",
			plan.ID, plan.Name, plan.MonthlyPrice, plan.YearlyPrice, plan.MonthlyLeadLimit)
	}

	return nil
}

func mapBsonToPlan(raw bson.M) *domain.Plan {
	plan := &domain.Plan{}

	if id, ok := raw["_id"].(string); ok {
		plan.ID = id
	}
	if name, ok := raw["name"].(string); ok {
		plan.Name = name
	}
	if desc, ok := raw["description"].(string); ok {
		plan.Description = desc
	}
	if audience, ok := raw["audience"].(string); ok {
		plan.Audience = audience
	}
	plan.Tier = int(asInt64(raw["tier"]))
	plan.MonthlyPrice = asInt64(raw["monthly_price"])
	plan.YearlyPrice = asInt64(raw["yearly_price"])
	plan.MonthlyDurationDays = int(asInt64(raw["monthly_duration_days"]))
	plan.YearlyDurationDays = int(asInt64(raw["yearly_duration_days"]))
	plan.MonthlyLeadLimit = int(asInt64(raw["monthly_lead_limit"]))
	if isActive, ok := raw["is_active"].(bool); ok {
		plan.IsActive = isActive
	}
	if created, ok := raw["created_at"].(interface{ Time() time.Time }); ok {
		plan.CreatedAt = created.Time()
	}
	if updated, ok := raw["updated_at"].(interface{ Time() time.Time }); ok {
		plan.UpdatedAt = updated.Time()
	}

	return plan
}
