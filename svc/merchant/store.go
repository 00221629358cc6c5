package merchant

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Store persists businesses. Implementations return ErrBusinessNotFound
// for missing rows and ErrDuplicateSlug when a slug is taken.
type Store interface {
	Create(ctx context.Context, b *Business) error
	Get(ctx context.Context, id uuid.UUID) (*Business, error)
	GetBySlug(ctx context.Context, slug string) (*Business, error)
	GetByAccountID(ctx context.Context, accountID string) (*Business, error)
	// Update saves b. Slug and creation time are never changed.
	Update(ctx context.Context, b *Business) error
	// ListConnected returns businesses that have a connected account.
	ListConnected(ctx context.Context) ([]*Business, error)
}

// MemoryStore is a Store kept in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*Business
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[uuid.UUID]*Business)}
}

func (m *MemoryStore) Create(_ context.Context, b *Business) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.Slug == b.Slug {
			return ErrDuplicateSlug
		}
	}
	m.items[b.ID] = b.clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Business, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.items[id]
	if !ok {
		return nil, ErrBusinessNotFound
	}
	return b.clone(), nil
}

func (m *MemoryStore) GetBySlug(_ context.Context, slug string) (*Business, error) {
	return m.find(func(b *Business) bool { return b.Slug == slug })
}

func (m *MemoryStore) GetByAccountID(_ context.Context, accountID string) (*Business, error) {
	if accountID == "" {
		return nil, ErrBusinessNotFound
	}
	return m.find(func(b *Business) bool { return b.StripeAccountID == accountID })
}

func (m *MemoryStore) find(match func(*Business) bool) (*Business, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.items {
		if match(b) {
			return b.clone(), nil
		}
	}
	return nil, ErrBusinessNotFound
}

func (m *MemoryStore) Update(_ context.Context, b *Business) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[b.ID]
	if !ok {
		return ErrBusinessNotFound
	}
	next := b.clone()
	next.Slug = cur.Slug
	next.CreatedAt = cur.CreatedAt
	m.items[b.ID] = next
	return nil
}

func (m *MemoryStore) ListConnected(_ context.Context) ([]*Business, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Business
	for _, b := range m.items {
		if b.Connected() {
			out = append(out, b.clone())
		}
	}
	slices.SortFunc(out, func(a, b *Business) int { return strings.Compare(a.Slug, b.Slug) })
	return out, nil
}
