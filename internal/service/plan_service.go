package service

import (
	"context"

	"github.com/handypro/membership/internal/domain"
)

// PlanService manages the plan catalogue
type PlanService struct {
	plans domain.PlanRepository
}

// NewPlanService creates a new PlanService
func NewPlanService(plans domain.PlanRepository) *PlanService {
	return &PlanService{plans: plans}
}

// ListPlans returns active plans, optionally filtered by audience
func (s *PlanService) ListPlans(ctx context.Context, audience string) ([]*domain.Plan, error) {
	plans, err := s.plans.GetActivePlans(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]*domain.Plan, 0, len(plans))
	for _, p := range plans {
		if audience == "" || p.Audience == audience {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

// CreatePlan validates and stores a new plan
func (s *PlanService) CreatePlan(ctx context.Context, plan *domain.Plan) error {
	if err := plan.Validate(); err != nil {
		return err
	}
	return s.plans.Create(ctx, plan)
}

// UpdatePlan validates and replaces an existing plan.
// Existing terms keep their dates; only later purchases see the change.
func (s *PlanService) UpdatePlan(ctx context.Context, plan *domain.Plan) error {
	if err := plan.Validate(); err != nil {
		return err
	}
	return s.plans.Update(ctx, plan)
}
