package repository

import (
	"context"
	"time"

	"github.com/handypro/membership/internal/domain"
)

// CachedPlanRepository wraps a PlanRepository with Redis caching.
// Plans are read on every webhook and rarely change.
type CachedPlanRepository struct {
	plans domain.PlanRepository
	cache domain.CacheRepository
	ttl   time.Duration
}

// NewCachedPlanRepository creates a new cached plan repository
func NewCachedPlanRepository(plans domain.PlanRepository, cache domain.CacheRepository, ttl time.Duration) *CachedPlanRepository {
	return &CachedPlanRepository{
		plans: plans,
		cache: cache,
		ttl:   ttl,
	}
}

// GetByID retrieves a plan with caching
func (r *CachedPlanRepository) GetByID(ctx context.Context, id string) (*domain.Plan, error) {
	key := planByIDKeyPrefix + id

	// Try cache first
	var plan domain.Plan
	if err := r.cache.Get(ctx, key, &plan); err == nil {
		return &plan, nil
	}

	// Cache miss - fetch from MongoDB
	result, err := r.plans.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Store in cache (ignore cache errors)
	_ = r.cache.Set(ctx, key, result, r.ttl)

	return result, nil
}

// GetActivePlans retrieves the purchasable catalogue with caching
func (r *CachedPlanRepository) GetActivePlans(ctx context.Context) ([]*domain.Plan, error) {
	var plans []*domain.Plan
	if err := r.cache.Get(ctx, activePlansKey, &plans); err == nil {
		return plans, nil
	}

	result, err := r.plans.GetActivePlans(ctx)
	if err != nil {
		return nil, err
	}

	_ = r.cache.Set(ctx, activePlansKey, result, r.ttl)

	return result, nil
}

// Create creates a plan and invalidates the catalogue
func (r *CachedPlanRepository) Create(ctx context.Context, plan *domain.Plan) error {
	if err := r.plans.Create(ctx, plan); err != nil {
		return err
	}

	_ = r.cache.Delete(ctx, activePlansKey)
	return nil
}

// Update updates a plan and invalidates caches
func (r *CachedPlanRepository) Update(ctx context.Context, plan *domain.Plan) error {
	if err := r.plans.Update(ctx, plan); err != nil {
		return err
	}

	_ = r.cache.Delete(ctx, planByIDKeyPrefix+plan.ID, activePlansKey)
	return nil
}
