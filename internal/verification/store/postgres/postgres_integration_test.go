//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"bgv/internal/verification/models"
	"bgv/internal/verification/store/postgres"
	id "bgv/pkg/domain"
	"bgv/pkg/platform/sentinel"
	"bgv/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
	ctx      context.Context
	now      time.Time
	kase     models.Case
	checks   []models.Check
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = postgres.New(s.postgres.DB)
	s.ctx = context.Background()
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx,
		"outbox", "timeline_entries", "risk_scores", "documents", "checks", "cases"))

	s.now = time.Now().UTC().Truncate(time.Millisecond)
	s.kase = models.Case{
		ID:            id.NewCaseID(),
		TenantID:      id.NewTenantID(),
		Package:       models.PackageBasic,
		OverallStatus: models.CasePending,
		InitiatedAt:   s.now,
		Deadline:      s.now.AddDate(0, 0, 7),
		SLAStatus:     models.SLAOnTrack,
		Version:       1,
		UpdatedAt:     s.now,
	}
	s.checks = []models.Check{
		models.NewCheck(s.kase.ID, s.kase.TenantID, models.CheckTypeIdentity, nil, s.now),
		models.NewCheck(s.kase.ID, s.kase.TenantID, models.CheckTypeCriminal, nil, s.now),
	}
	s.Require().NoError(s.store.CreateCase(s.ctx, &s.kase, s.checks))
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	got, err := s.store.FindCase(s.ctx, s.kase.TenantID, s.kase.ID)
	s.Require().NoError(err)
	s.Equal(s.kase.ID, got.ID)
	s.Equal(models.PackageBasic, got.Package)

	checks, err := s.store.ListChecks(s.ctx, s.kase.TenantID, s.kase.ID)
	s.Require().NoError(err)
	s.Require().Len(checks, 2)
	s.Equal(models.CheckTypeIdentity, checks[0].Type)

	s.Run("duplicate case conflicts", func() {
		s.ErrorIs(s.store.CreateCase(s.ctx, &s.kase, nil), sentinel.ErrConflict)
	})

	s.Run("other tenant cannot see the case", func() {
		_, err := s.store.FindCase(s.ctx, id.NewTenantID(), s.kase.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PostgresStoreSuite) TestOptimisticConcurrency() {
	a, err := s.store.FindCheck(s.ctx, s.kase.TenantID, s.checks[0].ID)
	s.Require().NoError(err)
	b := *a

	a.Status = models.CheckInProgress
	s.Require().NoError(s.store.UpdateCheck(s.ctx, a))
	s.Equal(2, a.Version)

	b.Status = models.CheckAssigned
	s.ErrorIs(s.store.UpdateCheck(s.ctx, &b), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestClosedCaseIsImmutable() {
	c, err := s.store.FindCase(s.ctx, s.kase.TenantID, s.kase.ID)
	s.Require().NoError(err)
	c.IsClosed = true
	c.IsImmutable = true
	s.Require().NoError(s.store.UpdateCase(s.ctx, c))

	ch, err := s.store.FindCheck(s.ctx, s.kase.TenantID, s.checks[0].ID)
	s.Require().NoError(err)
	ch.Status = models.CheckInProgress
	s.ErrorIs(s.store.UpdateCheck(s.ctx, ch), sentinel.ErrImmutable)

	r := models.NewRiskScore(s.kase.ID, s.kase.TenantID, s.now)
	s.ErrorIs(s.store.SaveRiskScore(s.ctx, &r), sentinel.ErrImmutable)

	open, err := s.store.ListOpenCases(s.ctx, s.kase.TenantID)
	s.Require().NoError(err)
	s.Empty(open)
}

func (s *PostgresStoreSuite) TestRiskScoreVersioning() {
	r := models.NewRiskScore(s.kase.ID, s.kase.TenantID, s.now)
	s.Require().NoError(s.store.SaveRiskScore(s.ctx, &r))

	dup := models.NewRiskScore(s.kase.ID, s.kase.TenantID, s.now)
	s.ErrorIs(s.store.SaveRiskScore(s.ctx, &dup), sentinel.ErrConflict)

	r.TotalRiskScore = 23
	r.RiskLevel = models.RiskModerate
	s.Require().NoError(s.store.SaveRiskScore(s.ctx, &r))

	got, err := s.store.FindRiskScore(s.ctx, s.kase.TenantID, s.kase.ID)
	s.Require().NoError(err)
	s.Equal(23, got.TotalRiskScore)
	s.Equal(2, got.Version)
}

func (s *PostgresStoreSuite) TestTimelineIsAppendOnly() {
	entry := models.TimelineEntry{
		ID:         id.NewEntryID(),
		TenantID:   s.kase.TenantID,
		CaseID:     s.kase.ID,
		Action:     models.ActionCaseInitiated,
		Visibility: models.VisibilityInternal,
		CreatedAt:  s.now,
	}
	s.Require().NoError(s.store.Append(s.ctx, entry))

	got, err := s.store.List(s.ctx, s.kase.TenantID, s.kase.ID)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.True(got[0].CheckID.IsNil())

	_, err = s.postgres.DB.ExecContext(s.ctx, `DELETE FROM timeline_entries WHERE id = $1`, uuid.UUID(entry.ID))
	s.Error(err)

	pending, err := s.store.Pending(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Require().NoError(s.store.MarkPublished(s.ctx, []uuid.UUID{pending[0].ID}, s.now))
	pending, err = s.store.Pending(s.ctx, 10)
	s.Require().NoError(err)
	s.Empty(pending)
}
