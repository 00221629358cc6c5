package billing

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists the catalog.
type Store interface {
	// CreateMembership returns ErrDuplicateSlug when the business already
	// has a membership with the same slug.
	CreateMembership(ctx context.Context, m *Membership) error
	GetMembership(ctx context.Context, businessID, id uuid.UUID) (*Membership, error)
	ListMemberships(ctx context.Context, businessID uuid.UUID) ([]*Membership, error)

	CreatePlan(ctx context.Context, p *Plan) error
	GetPlan(ctx context.Context, businessID, id uuid.UUID) (*Plan, error)
	UpdatePlan(ctx context.Context, p *Plan) error
	// FindPlanByPrice finds the plan a processor price belongs to, looking at
	// the plan's current price and every applied queue item.
	FindPlanByPrice(ctx context.Context, businessID uuid.UUID, priceID string) (*Plan, error)
	ListDynamicPlans(ctx context.Context) ([]*Plan, error)

	// SavePriceItem inserts an unapplied item, replacing any unapplied item
	// of the same plan and month. It returns ErrPriceAlreadyApplied when the
	// month's price has been applied.
	SavePriceItem(ctx context.Context, it *PriceQueueItem) error
	// ApplyPriceItem flags the item applied with p.StripePrice and saves p
	// in one step. On error neither the item nor the plan changes.
	ApplyPriceItem(ctx context.Context, id uuid.UUID, p *Plan, at time.Time) error
	// ListPriceItems returns a plan's queue ordered by effective date.
	ListPriceItems(ctx context.Context, planID uuid.UUID) ([]*PriceQueueItem, error)
}

// MemoryStore is a Store kept in process memory.
type MemoryStore struct {
	mu          sync.RWMutex
	memberships map[uuid.UUID]*Membership
	plans       map[uuid.UUID]*Plan
	items       map[uuid.UUID]*PriceQueueItem
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		memberships: make(map[uuid.UUID]*Membership),
		plans:       make(map[uuid.UUID]*Plan),
		items:       make(map[uuid.UUID]*PriceQueueItem),
	}
}

func (s *MemoryStore) CreateMembership(_ context.Context, m *Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.memberships {
		if it.BusinessID == m.BusinessID && it.Slug == m.Slug {
			return ErrDuplicateSlug
		}
	}
	cp := *m
	s.memberships[m.ID] = &cp
	return nil
}

func (s *MemoryStore) GetMembership(_ context.Context, businessID, id uuid.UUID) (*Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memberships[id]
	if !ok || m.BusinessID != businessID {
		return nil, ErrMembershipNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) ListMemberships(_ context.Context, businessID uuid.UUID) ([]*Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Membership
	for _, m := range s.memberships {
		if m.BusinessID == businessID {
			cp := *m
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *Membership) int { return strings.Compare(a.Slug, b.Slug) })
	return out, nil
}

func (s *MemoryStore) CreatePlan(_ context.Context, p *Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.plans[p.ID] = &cp
	return nil
}

func (s *MemoryStore) GetPlan(_ context.Context, businessID, id uuid.UUID) (*Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[id]
	if !ok || p.BusinessID != businessID {
		return nil, ErrPlanNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) UpdatePlan(_ context.Context, p *Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[p.ID]; !ok {
		return ErrPlanNotFound
	}
	cp := *p
	s.plans[p.ID] = &cp
	return nil
}

func (s *MemoryStore) FindPlanByPrice(_ context.Context, businessID uuid.UUID, priceID string) (*Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if priceID == "" {
		return nil, ErrPlanNotFound
	}
	for _, p := range s.plans {
		if p.BusinessID == businessID && p.StripePrice == priceID {
			cp := *p
			return &cp, nil
		}
	}
	for _, it := range s.items {
		if it.StripePrice != priceID {
			continue
		}
		if p, ok := s.plans[it.PlanID]; ok && p.BusinessID == businessID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrPlanNotFound
}

func (s *MemoryStore) ListDynamicPlans(_ context.Context) ([]*Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Plan
	for _, p := range s.plans {
		if p.PricingType == PricingDynamic {
			cp := *p
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *Plan) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (s *MemoryStore) SavePriceItem(_ context.Context, it *PriceQueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cur := range s.items {
		if cur.PlanID != it.PlanID || !cur.EffectiveAt.Equal(it.EffectiveAt) {
			continue
		}
		if cur.Applied {
			return ErrPriceAlreadyApplied
		}
		delete(s.items, id)
	}
	cp := *it
	s.items[it.ID] = &cp
	return nil
}

func (s *MemoryStore) ApplyPriceItem(_ context.Context, id uuid.UUID, p *Plan, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok || it.PlanID != p.ID {
		return ErrPriceItemNotFound
	}
	if _, ok := s.plans[p.ID]; !ok {
		return ErrPlanNotFound
	}
	it.Applied = true
	it.StripePrice = p.StripePrice
	it.AppliedAt = &at
	cp := *p
	s.plans[p.ID] = &cp
	return nil
}

func (s *MemoryStore) ListPriceItems(_ context.Context, planID uuid.UUID) ([]*PriceQueueItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*PriceQueueItem
	for _, it := range s.items {
		if it.PlanID == planID {
			cp := *it
			out = append(out, &cp)
		}
	}
	SortQueue(out)
	return out, nil
}
