package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bgv/internal/tenant/models"
	id "bgv/pkg/domain"
	dErrors "bgv/pkg/domain-errors"
	"bgv/pkg/platform/sentinel"
)

type TenantStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func (s *TenantStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestTenantStoreSuite(t *testing.T) {
	suite.Run(t, new(TenantStoreSuite))
}

func (s *TenantStoreSuite) newTenant(name string) *models.Tenant {
	t, err := models.NewTenant(id.NewTenantID(), name, time.Now())
	s.Require().NoError(err)
	return t
}

func (s *TenantStoreSuite) TestCreationAndLookups() {
	s.Run("creates and finds tenant by ID", func() {
		tenant := s.newTenant("Lookup Tenant")
		s.Require().NoError(s.store.CreateIfNameAvailable(s.ctx, tenant))

		found, err := s.store.FindByID(s.ctx, tenant.ID)
		s.Require().NoError(err)
		s.Equal(tenant.Name, found.Name)
	})

	s.Run("returns ErrNotFound for unknown ID", func() {
		_, err := s.store.FindByID(s.ctx, id.NewTenantID())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("returned tenants are copies", func() {
		tenant := s.newTenant("Copy Tenant")
		s.Require().NoError(s.store.CreateIfNameAvailable(s.ctx, tenant))
		found, err := s.store.FindByID(s.ctx, tenant.ID)
		s.Require().NoError(err)
		found.Status = models.TenantStatusInactive

		again, err := s.store.FindByID(s.ctx, tenant.ID)
		s.Require().NoError(err)
		s.True(again.IsActive())
	})
}

func (s *TenantStoreSuite) TestNameUniqueness() {
	s.Run("enforces case-insensitive uniqueness", func() {
		s.Require().NoError(s.store.CreateIfNameAvailable(s.ctx, s.newTenant("MyTenant")))
		err := s.store.CreateIfNameAvailable(s.ctx, s.newTenant("MYTENANT"))
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("finds by name case-insensitively", func() {
		tenant := s.newTenant("CaseSensitive")
		s.Require().NoError(s.store.CreateIfNameAvailable(s.ctx, tenant))

		found, err := s.store.FindByName(s.ctx, "casesensitive")
		s.Require().NoError(err)
		s.Equal(tenant.ID, found.ID)
	})
}

func (s *TenantStoreSuite) TestExecute() {
	tenant := s.newTenant("Execute Tenant")
	s.Require().NoError(s.store.CreateIfNameAvailable(s.ctx, tenant))
	now := time.Now()

	s.Run("applies mutation after validation", func() {
		updated, err := s.store.Execute(s.ctx, tenant.ID, (*models.Tenant).CanDeactivate, func(t *models.Tenant) {
			t.ApplyDeactivation(now)
		})
		s.Require().NoError(err)
		s.False(updated.IsActive())
	})

	s.Run("validation failure leaves the tenant alone", func() {
		_, err := s.store.Execute(s.ctx, tenant.ID, (*models.Tenant).CanDeactivate, func(t *models.Tenant) {
			t.Name = "changed"
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))

		found, err := s.store.FindByID(s.ctx, tenant.ID)
		s.Require().NoError(err)
		s.Equal("Execute Tenant", found.Name)
	})

	s.Run("unknown tenant", func() {
		_, err := s.store.Execute(s.ctx, id.NewTenantID(), (*models.Tenant).CanDeactivate, func(*models.Tenant) {})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *TenantStoreSuite) TestListByStatus() {
	for _, name := range []string{"Zeta", "Alpha", "Mid"} {
		s.Require().NoError(s.store.CreateIfNameAvailable(s.ctx, s.newTenant(name)))
	}
	mid, err := s.store.FindByName(s.ctx, "mid")
	s.Require().NoError(err)
	_, err = s.store.Execute(s.ctx, mid.ID, (*models.Tenant).CanDeactivate, func(t *models.Tenant) {
		t.ApplyDeactivation(time.Now())
	})
	s.Require().NoError(err)

	active, err := s.store.ListByStatus(s.ctx, models.TenantStatusActive)
	s.Require().NoError(err)
	s.Require().Len(active, 2)
	s.Equal("Alpha", active[0].Name)
	s.Equal("Zeta", active[1].Name)
}
