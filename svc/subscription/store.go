package subscription

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Store persists PlanSubscription rows.
type Store interface {
	// Create returns ErrDuplicateSubscription when a row with the same
	// StripeSubscriptionID exists.
	Create(ctx context.Context, s *PlanSubscription) error
	Get(ctx context.Context, businessID, id uuid.UUID) (*PlanSubscription, error)
	GetByStripeID(ctx context.Context, stripeSubscriptionID string) (*PlanSubscription, error)
	// Update overwrites the row unless the stored LastSyncedAt is newer.
	Update(ctx context.Context, s *PlanSubscription) error
	// FindLive returns a live subscription to planID held by the customer,
	// matched by email or processor customer id.
	FindLive(ctx context.Context, businessID, planID uuid.UUID, email, customerID string) (*PlanSubscription, error)
	ListByBusiness(ctx context.Context, businessID uuid.UUID) ([]*PlanSubscription, error)
	// CountMembers counts distinct customers with a live subscription.
	CountMembers(ctx context.Context, businessID uuid.UUID) (int, error)
}

// MemoryStore is a Store kept in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]*PlanSubscription
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[uuid.UUID]*PlanSubscription)}
}

func (m *MemoryStore) Create(_ context.Context, s *PlanSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.StripeSubscriptionID == s.StripeSubscriptionID {
			return ErrDuplicateSubscription
		}
	}
	m.rows[s.ID] = s.clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, businessID, id uuid.UUID) (*PlanSubscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rows[id]
	if !ok || r.BusinessID != businessID {
		return nil, ErrSubscriptionNotFound
	}
	return r.clone(), nil
}

func (m *MemoryStore) GetByStripeID(_ context.Context, stripeSubscriptionID string) (*PlanSubscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rows {
		if r.StripeSubscriptionID == stripeSubscriptionID {
			return r.clone(), nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (m *MemoryStore) Update(_ context.Context, s *PlanSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[s.ID]
	if !ok {
		return ErrSubscriptionNotFound
	}
	if r.LastSyncedAt.After(s.LastSyncedAt) {
		return nil
	}
	cp := s.clone()
	cp.StripeSubscriptionID = r.StripeSubscriptionID
	cp.CreatedAt = r.CreatedAt
	m.rows[s.ID] = cp
	return nil
}

func (m *MemoryStore) FindLive(_ context.Context, businessID, planID uuid.UUID, email, customerID string) (*PlanSubscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rows {
		if r.BusinessID != businessID || r.PlanID != planID || !r.Status.Live() {
			continue
		}
		if (email != "" && strings.EqualFold(r.CustomerEmail, email)) || (customerID != "" && r.StripeCustomerID == customerID) {
			return r.clone(), nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (m *MemoryStore) ListByBusiness(_ context.Context, businessID uuid.UUID) ([]*PlanSubscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*PlanSubscription
	for _, r := range m.rows {
		if r.BusinessID == businessID {
			out = append(out, r.clone())
		}
	}
	slices.SortFunc(out, func(a, b *PlanSubscription) int {
		return strings.Compare(a.StripeSubscriptionID, b.StripeSubscriptionID)
	})
	return out, nil
}

func (m *MemoryStore) CountMembers(_ context.Context, businessID uuid.UUID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := map[string]struct{}{}
	for _, r := range m.rows {
		if r.BusinessID == businessID && r.Status.Live() {
			seen[memberKey(r)] = struct{}{}
		}
	}
	return len(seen), nil
}

// memberKey identifies a member by email, falling back to the customer id.
func memberKey(r *PlanSubscription) string {
	if r.CustomerEmail != "" {
		return strings.ToLower(r.CustomerEmail)
	}
	return r.StripeCustomerID
}
