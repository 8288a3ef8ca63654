//go:build integration

package tenant_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"bgv/internal/tenant/models"
	"bgv/internal/tenant/store/tenant"
	id "bgv/pkg/domain"
	"bgv/pkg/platform/sentinel"
	"bgv/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *tenant.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = tenant.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "tenants"))
}

func newTestTenant(name string) *models.Tenant {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Tenant{
		ID:        id.NewTenantID(),
		Name:      name,
		Status:    models.TenantStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Concurrent creation with one name yields exactly one tenant.
func (s *PostgresStoreSuite) TestConcurrentUniqueNameViolation() {
	ctx := context.Background()
	name := "Concurrent " + uuid.NewString()
	const goroutines = 20

	var wg sync.WaitGroup
	var created, conflicts atomic.Int32
	for range goroutines {
		wg.Go(func() {
			err := s.store.CreateIfNameAvailable(ctx, newTestTenant(name))
			switch {
			case err == nil:
				created.Add(1)
			case err == sentinel.ErrConflict:
				conflicts.Add(1)
			}
		})
	}
	wg.Wait()

	s.Equal(int32(1), created.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())
}

func (s *PostgresStoreSuite) TestCaseInsensitiveUniqueness() {
	ctx := context.Background()
	s.Require().NoError(s.store.CreateIfNameAvailable(ctx, newTestTenant("Acme Screening")))
	s.ErrorIs(s.store.CreateIfNameAvailable(ctx, newTestTenant("ACME SCREENING")), sentinel.ErrConflict)

	found, err := s.store.FindByName(ctx, "acme screening")
	s.Require().NoError(err)
	s.Equal("Acme Screening", found.Name)
}

func (s *PostgresStoreSuite) TestExecuteSerializesUpdates() {
	ctx := context.Background()
	t := newTestTenant("Serialized")
	s.Require().NoError(s.store.CreateIfNameAvailable(ctx, t))

	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for range 10 {
		wg.Go(func() {
			_, err := s.store.Execute(ctx, t.ID, (*models.Tenant).CanDeactivate, func(t *models.Tenant) {
				t.ApplyDeactivation(time.Now())
			})
			if err == nil {
				succeeded.Add(1)
			}
		})
	}
	wg.Wait()
	s.Equal(int32(1), succeeded.Load())

	inactive, err := s.store.ListByStatus(ctx, models.TenantStatusInactive)
	s.Require().NoError(err)
	s.Require().Len(inactive, 1)
	s.Equal(t.ID, inactive[0].ID)
}

func (s *PostgresStoreSuite) TestNotFound() {
	_, err := s.store.FindByID(context.Background(), id.NewTenantID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}
