package tenant

import (
	"context"
	"slices"
	"strings"
	"sync"

	"bgv/internal/tenant/models"
	id "bgv/pkg/domain"
	"bgv/pkg/platform/sentinel"
)

// InMemory is a process-local tenant registry.
type InMemory struct {
	mu      sync.RWMutex
	tenants map[id.TenantID]*models.Tenant
}

func NewInMemory() *InMemory {
	return &InMemory{tenants: make(map[id.TenantID]*models.Tenant)}
}

// CreateIfNameAvailable stores t unless another tenant already uses its name,
// compared case-insensitively.
func (s *InMemory) CreateIfNameAvailable(_ context.Context, t *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tenants {
		if strings.EqualFold(existing.Name, t.Name) {
			return sentinel.ErrConflict
		}
	}
	if _, ok := s.tenants[t.ID]; ok {
		return sentinel.ErrConflict
	}
	cp := *t
	s.tenants[t.ID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *InMemory) FindByName(_ context.Context, name string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tenants {
		if strings.EqualFold(t.Name, name) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// ListByStatus returns tenants in status, ordered by name.
func (s *InMemory) ListByStatus(_ context.Context, status models.TenantStatus) ([]models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Tenant
	for _, t := range s.tenants {
		if t.Status == status {
			out = append(out, *t)
		}
	}
	slices.SortFunc(out, func(a, b models.Tenant) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

// Execute validates then mutates the tenant while holding the write lock.
func (s *InMemory) Execute(_ context.Context, tenantID id.TenantID, validate func(*models.Tenant) error, mutate func(*models.Tenant)) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *t
	if err := validate(&cp); err != nil {
		return nil, err
	}
	mutate(&cp)
	s.tenants[tenantID] = &cp
	out := cp
	return &out, nil
}
