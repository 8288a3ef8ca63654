package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"bgv/internal/verification/models"
	"bgv/internal/verification/store/memory"
	id "bgv/pkg/domain"
	"bgv/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	store  *memory.Store
	ctx    context.Context
	now    time.Time
	kase   models.Case
	checks []models.Check
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = memory.New()
	s.ctx = context.Background()
	s.now = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	s.kase = models.Case{
		ID:            id.NewCaseID(),
		TenantID:      id.NewTenantID(),
		Package:       models.PackageBasic,
		OverallStatus: models.CasePending,
		Version:       1,
	}
	s.checks = []models.Check{
		models.NewCheck(s.kase.ID, s.kase.TenantID, models.CheckTypeIdentity, nil, s.now),
		models.NewCheck(s.kase.ID, s.kase.TenantID, models.CheckTypeAddress, nil, s.now),
	}
	s.Require().NoError(s.store.CreateCase(s.ctx, &s.kase, s.checks))
}

func (s *MemoryStoreSuite) TestCreateAndFind() {
	s.Run("duplicate case conflicts", func() {
		err := s.store.CreateCase(s.ctx, &s.kase, nil)
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("tenant scoping hides other tenants' cases", func() {
		_, err := s.store.FindCase(s.ctx, id.NewTenantID(), s.kase.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("checks are listed in initiation order", func() {
		got, err := s.store.ListChecks(s.ctx, s.kase.TenantID, s.kase.ID)
		s.Require().NoError(err)
		s.Require().Len(got, 2)
		s.Equal(models.CheckTypeIdentity, got[0].Type)
		s.Equal(models.CheckTypeAddress, got[1].Type)
	})

	s.Run("returned snapshots do not alias stored state", func() {
		got, err := s.store.FindCase(s.ctx, s.kase.TenantID, s.kase.ID)
		s.Require().NoError(err)
		got.RemindersSent = append(got.RemindersSent, 50)
		again, err := s.store.FindCase(s.ctx, s.kase.TenantID, s.kase.ID)
		s.Require().NoError(err)
		s.Empty(again.RemindersSent)
	})
}

func (s *MemoryStoreSuite) TestOptimisticVersioning() {
	first, err := s.store.FindCheck(s.ctx, s.kase.TenantID, s.checks[0].ID)
	s.Require().NoError(err)
	stale := *first

	first.Status = models.CheckInProgress
	s.Require().NoError(s.store.UpdateCheck(s.ctx, first))
	s.Equal(2, first.Version)

	stale.Status = models.CheckAssigned
	s.ErrorIs(s.store.UpdateCheck(s.ctx, &stale), sentinel.ErrConflict)
}

func (s *MemoryStoreSuite) TestImmutableCaseRejectsWrites() {
	c, err := s.store.FindCase(s.ctx, s.kase.TenantID, s.kase.ID)
	s.Require().NoError(err)
	c.IsClosed = true
	c.IsImmutable = true
	s.Require().NoError(s.store.UpdateCase(s.ctx, c))

	s.Run("case", func() {
		s.ErrorIs(s.store.UpdateCase(s.ctx, c), sentinel.ErrImmutable)
	})

	s.Run("check", func() {
		ch, err := s.store.FindCheck(s.ctx, s.kase.TenantID, s.checks[0].ID)
		s.Require().NoError(err)
		ch.Status = models.CheckInProgress
		s.ErrorIs(s.store.UpdateCheck(s.ctx, ch), sentinel.ErrImmutable)
	})

	s.Run("document", func() {
		doc := &models.Document{ID: id.NewDocumentID(), TenantID: s.kase.TenantID, CaseID: s.kase.ID, CheckID: s.checks[0].ID}
		s.ErrorIs(s.store.CreateDocument(s.ctx, doc), sentinel.ErrImmutable)
	})

	s.Run("risk score", func() {
		r := models.NewRiskScore(s.kase.ID, s.kase.TenantID, s.now)
		s.ErrorIs(s.store.SaveRiskScore(s.ctx, &r), sentinel.ErrImmutable)
	})

	s.Run("timeline still appends", func() {
		s.NoError(s.store.Append(s.ctx, models.TimelineEntry{ID: id.NewEntryID(), TenantID: s.kase.TenantID, CaseID: s.kase.ID}))
	})

	s.Run("closed cases leave the sweep set", func() {
		open, err := s.store.ListOpenCases(s.ctx, s.kase.TenantID)
		s.Require().NoError(err)
		s.Empty(open)
		tenants, err := s.store.ActiveTenants(s.ctx)
		s.Require().NoError(err)
		s.Empty(tenants)
	})
}

func (s *MemoryStoreSuite) TestRiskScoreVersioning() {
	r := models.NewRiskScore(s.kase.ID, s.kase.TenantID, s.now)
	s.Require().NoError(s.store.SaveRiskScore(s.ctx, &r))
	s.Equal(1, r.Version)

	fresh := models.NewRiskScore(s.kase.ID, s.kase.TenantID, s.now)
	s.ErrorIs(s.store.SaveRiskScore(s.ctx, &fresh), sentinel.ErrConflict)

	r.TotalRiskScore = 20
	s.Require().NoError(s.store.SaveRiskScore(s.ctx, &r))
	got, err := s.store.FindRiskScore(s.ctx, s.kase.TenantID, s.kase.ID)
	s.Require().NoError(err)
	s.Equal(20, got.TotalRiskScore)
	s.Equal(2, got.Version)
}

func (s *MemoryStoreSuite) TestDocumentsListedInUploadOrder() {
	for _, typ := range []models.DocumentType{models.DocPayslip, models.DocExperienceLetter} {
		doc := &models.Document{ID: id.NewDocumentID(), TenantID: s.kase.TenantID, CaseID: s.kase.ID, CheckID: s.checks[0].ID, Type: typ, Version: 1}
		s.Require().NoError(s.store.CreateDocument(s.ctx, doc))
	}
	docs, err := s.store.ListDocuments(s.ctx, s.kase.TenantID, s.checks[0].ID)
	s.Require().NoError(err)
	s.Require().Len(docs, 2)
	s.Equal(models.DocPayslip, docs[0].Type)

	docs[0].SoftDelete(id.NewUserID(), s.now)
	s.Require().NoError(s.store.UpdateDocument(s.ctx, &docs[0]))
	got, err := s.store.FindDocument(s.ctx, s.kase.TenantID, docs[0].ID)
	s.Require().NoError(err)
	s.True(got.Deleted)
}

func (s *MemoryStoreSuite) TestTimelineOutbox() {
	for range 3 {
		s.Require().NoError(s.store.Append(s.ctx, models.TimelineEntry{
			ID:       id.NewEntryID(),
			TenantID: s.kase.TenantID,
			CaseID:   s.kase.ID,
			Action:   models.ActionStatusChanged,
		}))
	}

	entries, err := s.store.List(s.ctx, s.kase.TenantID, s.kase.ID)
	s.Require().NoError(err)
	s.Len(entries, 3)

	pending, err := s.store.Pending(s.ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Require().NoError(s.store.MarkPublished(s.ctx, []uuid.UUID{pending[0].ID, pending[1].ID}, s.now))

	pending, err = s.store.Pending(s.ctx, 10)
	s.Require().NoError(err)
	s.Len(pending, 1)
}
