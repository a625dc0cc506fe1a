package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/handypro/membership/internal/domain"
	"github.com/handypro/membership/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

const activeMembershipKeyPrefix = "membership:active:"

func activeMembershipKey(userID string) string {
	return activeMembershipKeyPrefix + userID
}

// MembershipServiceConfig tunes write retries and read caching
type MembershipServiceConfig struct {
	// MaxWriteAttempts bounds how often a conflicting write is re-read and retried.
	MaxWriteAttempts int
	ActiveCacheTTL   time.Duration
}

// MembershipService applies purchases to membership terms and serves membership reads.
// Writes always read the current term from the store; the cache only serves
// GetActiveMembership and is invalidated after every write.
type MembershipService struct {
	memberships domain.MembershipRepository
	plans       domain.PlanRepository
	cache       domain.CacheRepository
	publisher   domain.EventPublisher
	metrics     *telemetry.MembershipMetrics
	cfg         MembershipServiceConfig
	now         func() time.Time
}

// NewMembershipService creates a new MembershipService.
// cache, publisher and metrics may be nil.
func NewMembershipService(
	memberships domain.MembershipRepository,
	plans domain.PlanRepository,
	cache domain.CacheRepository,
	publisher domain.EventPublisher,
	metrics *telemetry.MembershipMetrics,
	cfg MembershipServiceConfig,
) *MembershipService {
	if cfg.MaxWriteAttempts < 1 {
		cfg.MaxWriteAttempts = 1
	}
	return &MembershipService{
		memberships: memberships,
		plans:       plans,
		cache:       cache,
		publisher:   publisher,
		metrics:     metrics,
		cfg:         cfg,
		now:         time.Now,
	}
}

// SetClock replaces the time source
func (s *MembershipService) SetClock(now func() time.Time) {
	s.now = now
}

// UpgradeQuote describes the term a purchase would produce right now
type UpgradeQuote struct {
	Plan            *domain.Plan         `json:"plan"`
	BillingPeriod   domain.BillingPeriod `json:"billing_period"`
	Price           int64                `json:"price"`
	IsUpgrade       bool                 `json:"is_upgrade"`
	CurrentPlanID   string               `json:"current_plan_id,omitempty"`
	CarriedOverDays int                  `json:"carried_over_days"`
	PeriodDays      int                  `json:"period_days"`
	StartDate       time.Time            `json:"start_date"`
	EndDate         time.Time            `json:"end_date"`
}

// LeadAllowance is the contractor's lead usage after a lead is consumed.
// Remaining is -1 for unlimited plans.
type LeadAllowance struct {
	Used      int `json:"used"`
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
}

// MembershipOverview is the member-facing summary of the current term
type MembershipOverview struct {
	Membership         *domain.Membership `json:"membership"`
	Plan               *domain.Plan       `json:"plan"`
	RemainingDays      int                `json:"remaining_days"`
	LeadsUsedThisMonth int                `json:"leads_used_this_month"`
	HistoryCount       int                `json:"history_count"`
}

// ProcessPurchase applies a decoded checkout. An upgrade whose referenced term
// can no longer be upgraded is applied as a fresh purchase of the target plan.
func (s *MembershipService) ProcessPurchase(ctx context.Context, purchase domain.Purchase) (*domain.Membership, error) {
	switch p := purchase.(type) {
	case domain.FreshPurchase:
		return s.CreateNewMembership(ctx, p)
	case domain.UpgradePurchase:
		m, err := s.UpgradeMembership(ctx, p)
		if errors.Is(err, domain.ErrPreconditionViolation) {
			log.Printf("[Membership] Upgrade of %s for user %s not applicable (%v), applying as fresh purchase",
				p.CurrentMembershipID, p.UserID, err)
			return s.CreateNewMembership(ctx, p.AsFresh())
		}
		return m, err
	default:
		return nil, fmt.Errorf("%w: unsupported purchase type %T", domain.ErrInvalidPurchase, purchase)
	}
}

// CreateNewMembership activates a purchased plan for a user. If the user still
// holds an unexpired active term the purchase accumulates onto it exactly like
// an upgrade; a lapsed active term is retired as expired.
func (s *MembershipService) CreateNewMembership(ctx context.Context, p domain.FreshPurchase) (*domain.Membership, error) {
	plan, err := s.plans.GetByID(ctx, p.PlanID)
	if err != nil {
		return nil, fmt.Errorf("failed to load plan %s: %w", p.PlanID, err)
	}

	var (
		next    *domain.Membership
		retired *domain.Membership
	)
	err = s.withRetry(ctx, "create", func() error {
		now := s.now().UTC()
		next, retired = nil, nil

		current, err := s.memberships.GetActiveByUserID(ctx, p.UserID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		if current == nil {
			m, err := domain.CreateFreshTerm(p.UserID, plan, p.BillingPeriod, now)
			if err != nil {
				return err
			}
			m.IsAutoRenew = p.AutoRenew
			if err := s.memberships.Create(ctx, m); err != nil {
				return err
			}
			next = m
			return nil
		}

		m, err := domain.UpgradeTerm(current, plan, p.BillingPeriod, now)
		if err != nil {
			return err
		}
		m.IsAutoRenew = m.IsAutoRenew || p.AutoRenew
		current.Status = domain.RetiredStatus(current, now)
		if err := s.memberships.Replace(ctx, current, m); err != nil {
			return err
		}
		next, retired = m, current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterReplace(ctx, retired, next)
	return next, nil
}

// UpgradeMembership replaces the referenced active term with a term on the
// target plan that keeps the original start date and carries over the days left.
func (s *MembershipService) UpgradeMembership(ctx context.Context, p domain.UpgradePurchase) (*domain.Membership, error) {
	plan, err := s.plans.GetByID(ctx, p.ToPlanID)
	if err != nil {
		return nil, fmt.Errorf("failed to load plan %s: %w", p.ToPlanID, err)
	}

	var next, retired *domain.Membership
	err = s.withRetry(ctx, "upgrade", func() error {
		now := s.now().UTC()
		next, retired = nil, nil

		current, err := s.memberships.GetByID(ctx, p.CurrentMembershipID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("%w: membership %s not found", domain.ErrPreconditionViolation, p.CurrentMembershipID)
			}
			return err
		}
		if current.UserID != p.UserID {
			return fmt.Errorf("%w: membership %s belongs to another user", domain.ErrPreconditionViolation, current.ID)
		}
		if p.FromPlanID != "" && current.PlanID != p.FromPlanID {
			return fmt.Errorf("%w: membership %s is on plan %s, not %s",
				domain.ErrPreconditionViolation, current.ID, current.PlanID, p.FromPlanID)
		}

		m, err := domain.UpgradeTerm(current, plan, p.BillingPeriod, now)
		if err != nil {
			return err
		}
		m.IsAutoRenew = m.IsAutoRenew || p.AutoRenew
		current.Status = domain.RetiredStatus(current, now)
		if err := s.memberships.Replace(ctx, current, m); err != nil {
			return err
		}
		next, retired = m, current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterReplace(ctx, retired, next)
	return next, nil
}

// PreviewUpgrade quotes the term a purchase of plan/period would produce now
// without writing anything.
func (s *MembershipService) PreviewUpgrade(ctx context.Context, userID, planID string, period domain.BillingPeriod) (*UpgradeQuote, error) {
	plan, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, domain.ErrPlanInactive
	}

	periodDays, err := plan.DurationDays(period)
	if err != nil {
		return nil, err
	}

	current, err := s.memberships.GetActiveByUserID(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	now := s.now().UTC()
	quote := &UpgradeQuote{
		Plan:          plan,
		BillingPeriod: period,
		Price:         plan.Price(period),
		PeriodDays:    periodDays,
	}

	var next *domain.Membership
	if current == nil {
		next, err = domain.CreateFreshTerm(userID, plan, period, now)
	} else {
		next, err = domain.UpgradeTerm(current, plan, period, now)
		quote.IsUpgrade = current.IsActiveAt(now)
		quote.CurrentPlanID = current.PlanID
		quote.CarriedOverDays = current.RemainingDays(now)
	}
	if err != nil {
		return nil, err
	}

	quote.StartDate = next.StartDate
	quote.EndDate = next.EndDate
	return quote, nil
}

// GetActiveMembership returns the user's current term. A term that has lapsed
// but not yet been swept is reported as not found.
func (s *MembershipService) GetActiveMembership(ctx context.Context, userID string) (*domain.Membership, error) {
	key := activeMembershipKey(userID)
	now := s.now()

	if s.cache != nil {
		var cached domain.Membership
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			if !cached.IsActiveAt(now) {
				return nil, domain.ErrNotFound
			}
			return &cached, nil
		}
	}

	m, err := s.memberships.GetActiveByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, m, s.cfg.ActiveCacheTTL); err != nil {
			log.Printf("[Membership] Failed to cache active membership for %s: %v", userID, err)
		}
	}

	if !m.IsActiveAt(now) {
		return nil, domain.ErrNotFound
	}
	return m, nil
}

// GetOverview loads the current term, its plan and the size of the user's history
func (s *MembershipService) GetOverview(ctx context.Context, userID string) (*MembershipOverview, error) {
	overview := &MembershipOverview{}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		m, err := s.GetActiveMembership(gCtx, userID)
		if err != nil {
			return err
		}
		overview.Membership = m
		return nil
	})

	g.Go(func() error {
		history, err := s.memberships.ListByUserID(gCtx, userID)
		if err != nil {
			return err
		}
		overview.HistoryCount = len(history)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	plan, err := s.plans.GetByID(ctx, overview.Membership.PlanID)
	if err != nil {
		return nil, fmt.Errorf("failed to load plan %s: %w", overview.Membership.PlanID, err)
	}

	now := s.now()
	overview.Plan = plan
	overview.RemainingDays = overview.Membership.RemainingDays(now)
	overview.LeadsUsedThisMonth = overview.Membership.LeadsUsedAt(now)
	return overview, nil
}

// ListMemberships returns every term the user has held, newest first
func (s *MembershipService) ListMemberships(ctx context.Context, userID string) ([]*domain.Membership, error) {
	memberships, err := s.memberships.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if memberships == nil {
		memberships = []*domain.Membership{}
	}
	return memberships, nil
}

// SetAutoRenew toggles renewal on the user's current term
func (s *MembershipService) SetAutoRenew(ctx context.Context, userID string, enabled bool) (*domain.Membership, error) {
	var updated *domain.Membership
	err := s.withRetry(ctx, "auto_renew", func() error {
		m, err := s.currentTerm(ctx, userID)
		if err != nil {
			return err
		}
		if m.IsAutoRenew == enabled {
			updated = m
			return nil
		}

		m.IsAutoRenew = enabled
		if err := s.memberships.Update(ctx, m); err != nil {
			return err
		}
		updated = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, userID)
	return updated, nil
}

// ConsumeLead charges one lead against the contractor's monthly allowance.
// The counter starts over in each calendar month (UTC).
func (s *MembershipService) ConsumeLead(ctx context.Context, userID string) (*LeadAllowance, error) {
	var (
		allowance *LeadAllowance
		planID    string
	)
	err := s.withRetry(ctx, "consume_lead", func() error {
		m, err := s.currentTerm(ctx, userID)
		if err != nil {
			return err
		}

		plan, err := s.plans.GetByID(ctx, m.PlanID)
		if err != nil {
			return fmt.Errorf("failed to load plan %s: %w", m.PlanID, err)
		}
		if !plan.HasLeadAllowance() {
			return fmt.Errorf("%w: plan %s includes no leads", domain.ErrLeadLimitReached, plan.ID)
		}

		m.RollLeadMonth(s.now())
		if plan.MonthlyLeadLimit != domain.UnlimitedLeads && m.LeadsUsedThisMonth >= plan.MonthlyLeadLimit {
			return domain.ErrLeadLimitReached
		}

		m.LeadsUsedThisMonth++
		if err := s.memberships.Update(ctx, m); err != nil {
			return err
		}

		allowance = &LeadAllowance{
			Used:      m.LeadsUsedThisMonth,
			Limit:     plan.MonthlyLeadLimit,
			Remaining: domain.UnlimitedLeads,
		}
		if plan.MonthlyLeadLimit != domain.UnlimitedLeads {
			allowance.Remaining = plan.MonthlyLeadLimit - m.LeadsUsedThisMonth
		}
		planID = plan.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, userID)
	s.metrics.RecordLeadConsumed(ctx, planID)
	return allowance, nil
}

// ListLapsedMemberships returns active terms whose end date has passed
func (s *MembershipService) ListLapsedMemberships(ctx context.Context) ([]*domain.Membership, error) {
	return s.memberships.ListLapsed(ctx, s.now().UTC())
}

// ExpireLapsedMemberships marks every lapsed active term expired and returns
// how many were retired. Terms changed by another writer meanwhile are skipped.
func (s *MembershipService) ExpireLapsedMemberships(ctx context.Context) (int, error) {
	lapsed, err := s.ListLapsedMemberships(ctx)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, m := range lapsed {
		if err := ctx.Err(); err != nil {
			return expired, err
		}

		m.Status = domain.MembershipStatusExpired
		if err := s.memberships.Update(ctx, m); err != nil {
			if errors.Is(err, domain.ErrConcurrentUpdate) {
				log.Printf("[Membership] Skipping expiry of %s: modified concurrently", m.ID)
				continue
			}
			return expired, fmt.Errorf("failed to expire membership %s: %w", m.ID, err)
		}

		expired++
		s.invalidate(ctx, m.UserID)
		s.publish(ctx, domain.EventMembershipExpired, m)
	}

	s.metrics.RecordExpired(ctx, expired)
	if expired > 0 {
		log.Printf("[Membership] Expired %d lapsed memberships", expired)
	}
	return expired, nil
}

// currentTerm reads the user's active term straight from the store
func (s *MembershipService) currentTerm(ctx context.Context, userID string) (*domain.Membership, error) {
	m, err := s.memberships.GetActiveByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !m.IsActiveAt(s.now()) {
		return nil, domain.ErrNotFound
	}
	return m, nil
}

// withRetry runs fn until it stops failing with ErrConcurrentUpdate or the
// attempts are used up. fn must re-read whatever it writes.
func (s *MembershipService) withRetry(ctx context.Context, operation string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.cfg.MaxWriteAttempts; attempt++ {
		err = fn()
		if !errors.Is(err, domain.ErrConcurrentUpdate) {
			return err
		}

		s.metrics.RecordConflict(ctx, operation)
		log.Printf("[Membership] %s lost a write race (attempt %d/%d)", operation, attempt, s.cfg.MaxWriteAttempts)

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}

func (s *MembershipService) afterReplace(ctx context.Context, retired, next *domain.Membership) {
	s.invalidate(ctx, next.UserID)

	switch {
	case retired == nil:
		s.metrics.RecordCreated(ctx, next.PlanID)
		s.publish(ctx, domain.EventMembershipCreated, next)
	case retired.Status == domain.MembershipStatusExpired:
		s.publish(ctx, domain.EventMembershipExpired, retired)
		s.metrics.RecordCreated(ctx, next.PlanID)
		s.publish(ctx, domain.EventMembershipCreated, next)
	default:
		s.metrics.RecordUpgraded(ctx, retired.PlanID, next.PlanID)
		s.publish(ctx, domain.EventMembershipUpgraded, next)
	}

	log.Printf("[Membership] User %s now on %s (%s) until %s",
		next.UserID, next.PlanID, next.ID, next.EndDate.Format(time.RFC3339))
}

func (s *MembershipService) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, activeMembershipKey(userID)); err != nil {
		log.Printf("[Membership] Failed to invalidate cache for %s: %v", userID, err)
	}
}

// publish is best effort: the term is already stored
func (s *MembershipService) publish(ctx context.Context, eventType string, m *domain.Membership) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, domain.NewMembershipEvent(eventType, m, s.now())); err != nil {
		log.Printf("[Membership] Failed to publish %s for %s: %v", eventType, m.ID, err)
	}
}
