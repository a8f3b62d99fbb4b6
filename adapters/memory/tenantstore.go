package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/artpar/fetchvault/ports"
)

// ErrTenantNotFound is returned for unknown tenant lookups.
var ErrTenantNotFound = errors.New("tenant not found")

// TenantStore is an in-memory implementation of ports.TenantStore.
type TenantStore struct {
	mu       sync.RWMutex
	tenants  map[string]ports.Tenant
	byStripe map[string]string // stripe customer id → tenant id
}

// NewTenantStore creates a new in-memory tenant store.
func NewTenantStore() *TenantStore {
	return &TenantStore{
		tenants:  make(map[string]ports.Tenant),
		byStripe: make(map[string]string),
	}
}

// Get retrieves a tenant by ID.
func (s *TenantStore) Get(ctx context.Context, id string) (ports.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tenants[id]
	if !ok {
		return ports.Tenant{}, ErrTenantNotFound
	}
	return t, nil
}

// GetByStripeID retrieves a tenant by payment provider customer id.
func (s *TenantStore) GetByStripeID(ctx context.Context, customerID string) (ports.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byStripe[customerID]
	if !ok {
		return ports.Tenant{}, ErrTenantNotFound
	}
	return s.tenants[id], nil
}

// Create stores a new tenant.
func (s *TenantStore) Create(ctx context.Context, t ports.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tenants[t.ID]; exists {
		return errors.New("tenant already exists: " + t.ID)
	}
	s.tenants[t.ID] = t
	if t.StripeID != "" {
		s.byStripe[t.StripeID] = t.ID
	}
	return nil
}

// Update modifies an existing tenant.
func (s *TenantStore) Update(ctx context.Context, t ports.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.tenants[t.ID]
	if !ok {
		return ErrTenantNotFound
	}
	if old.StripeID != "" && old.StripeID != t.StripeID {
		delete(s.byStripe, old.StripeID)
	}
	s.tenants[t.ID] = t
	if t.StripeID != "" {
		s.byStripe[t.StripeID] = t.ID
	}
	return nil
}

// List returns all tenants ordered by id.
func (s *TenantStore) List(ctx context.Context) ([]ports.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ports.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Ensure interface compliance.
var _ ports.TenantStore = (*TenantStore)(nil)
