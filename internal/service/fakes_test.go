package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/handypro/membership/internal/domain"
)

// memoryMembershipRepo mimics the Mongo repository's conditional writes and
// its one-active-term-per-user index.
type memoryMembershipRepo struct {
	mu   sync.Mutex
	byID map[string]*domain.Membership
	seq  int

	// replaceConflicts makes the next N Replace calls lose a race
	replaceConflicts int
	replaceCalls     int
}

func newMemoryMembershipRepo() *memoryMembershipRepo {
	return &memoryMembershipRepo{byID: make(map[string]*domain.Membership)}
}

func (r *memoryMembershipRepo) put(m *domain.Membership) *domain.Membership {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	m.ID = fmt.Sprintf("m%d", r.seq)
	if m.Version == 0 {
		m.Version = 1
	}
	cp := *m
	r.byID[m.ID] = &cp
	return m
}

func (r *memoryMembershipRepo) activeFor(userID string) *domain.Membership {
	for _, m := range r.byID {
		if m.UserID == userID && m.Status == domain.MembershipStatusActive {
			return m
		}
	}
	return nil
}

func (r *memoryMembershipRepo) Create(ctx context.Context, m *domain.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeFor(m.UserID) != nil {
		return domain.ErrConcurrentUpdate
	}
	r.seq++
	m.ID = fmt.Sprintf("m%d", r.seq)
	m.Version = 1
	cp := *m
	r.byID[m.ID] = &cp
	return nil
}

func (r *memoryMembershipRepo) GetByID(ctx context.Context, id string) (*domain.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *memoryMembershipRepo) GetActiveByUserID(ctx context.Context, userID string) (*domain.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.activeFor(userID)
	if m == nil {
		return nil, domain.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *memoryMembershipRepo) ListByUserID(ctx context.Context, userID string) ([]*domain.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Membership
	for i := r.seq; i >= 1; i-- {
		if m, ok := r.byID[fmt.Sprintf("m%d", i)]; ok && m.UserID == userID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memoryMembershipRepo) Replace(ctx context.Context, retired, next *domain.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replaceCalls++
	if r.replaceConflicts > 0 {
		r.replaceConflicts--
		return domain.ErrConcurrentUpdate
	}

	stored, ok := r.byID[retired.ID]
	if !ok || stored.Status != domain.MembershipStatusActive || stored.Version != retired.Version {
		return domain.ErrConcurrentUpdate
	}

	stored.Status = retired.Status
	stored.Version++
	retired.Version = stored.Version

	r.seq++
	next.ID = fmt.Sprintf("m%d", r.seq)
	next.PreviousMembershipID = retired.ID
	next.Version = 1
	cp := *next
	r.byID[next.ID] = &cp
	return nil
}

func (r *memoryMembershipRepo) Update(ctx context.Context, m *domain.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[m.ID]
	if !ok || stored.Version != m.Version {
		return domain.ErrConcurrentUpdate
	}
	m.Version++
	*stored = *m
	return nil
}

func (r *memoryMembershipRepo) ListLapsed(ctx context.Context, now time.Time) ([]*domain.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Membership
	for _, m := range r.byID {
		if m.Status == domain.MembershipStatusActive && !now.Before(m.EndDate) {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memoryMembershipRepo) countActive(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.byID {
		if m.UserID == userID && m.Status == domain.MembershipStatusActive {
			n++
		}
	}
	return n
}

type memoryPlanRepo struct {
	plans map[string]*domain.Plan
}

func newMemoryPlanRepo(plans ...*domain.Plan) *memoryPlanRepo {
	r := &memoryPlanRepo{plans: make(map[string]*domain.Plan)}
	for _, p := range plans {
		r.plans[p.ID] = p
	}
	return r
}

func (r *memoryPlanRepo) Create(ctx context.Context, plan *domain.Plan) error {
	if _, ok := r.plans[plan.ID]; ok {
		return domain.ErrInvalidPlan
	}
	r.plans[plan.ID] = plan
	return nil
}

func (r *memoryPlanRepo) GetByID(ctx context.Context, id string) (*domain.Plan, error) {
	p, ok := r.plans[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (r *memoryPlanRepo) GetActivePlans(ctx context.Context) ([]*domain.Plan, error) {
	var out []*domain.Plan
	for _, p := range r.plans {
		if p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryPlanRepo) Update(ctx context.Context, plan *domain.Plan) error {
	if _, ok := r.plans[plan.ID]; !ok {
		return domain.ErrNotFound
	}
	r.plans[plan.ID] = plan
	return nil
}

type memoryCache struct {
	data    map[string][]byte
	deletes int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string][]byte)}
}

func (c *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	b, ok := c.data[key]
	if !ok {
		return domain.ErrCacheMiss
	}
	return json.Unmarshal(b, dest)
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = b
	return nil
}

func (c *memoryCache) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c.data, k)
		c.deletes++
	}
	return nil
}

type recordingPublisher struct {
	events []domain.MembershipEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event domain.MembershipEvent) error {
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type memoryPaymentEvents struct {
	events   map[string]*domain.PaymentEvent
	released []string
}

func newMemoryPaymentEvents() *memoryPaymentEvents {
	return &memoryPaymentEvents{events: make(map[string]*domain.PaymentEvent)}
}

func (r *memoryPaymentEvents) Claim(ctx context.Context, event *domain.PaymentEvent, lease time.Duration) error {
	if _, ok := r.events[event.ID]; ok {
		return domain.ErrDuplicateEvent
	}
	event.Status = domain.PaymentEventPending
	r.events[event.ID] = event
	return nil
}

func (r *memoryPaymentEvents) Complete(ctx context.Context, eventID, membershipID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e, ok := r.events[eventID]
	if !ok {
		return domain.ErrNotFound
	}
	e.Status = domain.PaymentEventProcessed
	e.MembershipID = membershipID
	return nil
}

func (r *memoryPaymentEvents) Release(ctx context.Context, eventID string) error {
	delete(r.events, eventID)
	r.released = append(r.released, eventID)
	return nil
}

type memoryArchive struct {
	payloads map[string][]byte
}

func (a *memoryArchive) Archive(ctx context.Context, eventID string, payload []byte) error {
	if a.payloads == nil {
		a.payloads = make(map[string][]byte)
	}
	a.payloads[eventID] = payload
	return nil
}

// cancellingProcessor cancels the request context once the purchase is applied,
// as when the provider drops the connection mid-request.
type cancellingProcessor struct {
	next   PurchaseProcessor
	cancel context.CancelFunc
}

func (p *cancellingProcessor) ProcessPurchase(ctx context.Context, purchase domain.Purchase) (*domain.Membership, error) {
	m, err := p.next.ProcessPurchase(ctx, purchase)
	p.cancel()
	return m, err
}
