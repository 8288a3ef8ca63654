package aggregate_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bgv/internal/verification/aggregate"
	"bgv/internal/verification/models"
	id "bgv/pkg/domain"
	dErrors "bgv/pkg/domain-errors"
)

type AggregateSuite struct {
	suite.Suite
	now  time.Time
	kase models.Case
}

func TestAggregateSuite(t *testing.T) {
	suite.Run(t, new(AggregateSuite))
}

func (s *AggregateSuite) SetupTest() {
	s.now = time.Date(2026, 7, 1, 15, 0, 0, 0, time.UTC)
	s.kase = models.Case{
		ID:            id.NewCaseID(),
		TenantID:      id.NewTenantID(),
		Package:       models.PackageStandard,
		OverallStatus: models.CaseInProgress,
		InitiatedAt:   s.now.Add(-72 * time.Hour),
		Version:       3,
	}
}

func (s *AggregateSuite) checks(statuses ...models.CheckStatus) []models.Check {
	out := make([]models.Check, len(statuses))
	for i, st := range statuses {
		c := models.NewCheck(s.kase.ID, s.kase.TenantID, models.AllCheckTypes[i%len(models.AllCheckTypes)], nil, s.now)
		c.Status = st
		out[i] = c
	}
	return out
}

func (s *AggregateSuite) TestDeriveStatus() {
	tests := []struct {
		name     string
		statuses []models.CheckStatus
		want     models.CaseStatus
	}{
		{"no checks", nil, models.CasePending},
		{"all not started", []models.CheckStatus{models.CheckNotStarted, models.CheckNotStarted}, models.CasePending},
		{"one started", []models.CheckStatus{models.CheckNotStarted, models.CheckAssigned}, models.CaseInProgress},
		{"failed wins", []models.CheckStatus{models.CheckVerified, models.CheckFailed, models.CheckInProgress}, models.CaseFailed},
		{"all verified", []models.CheckStatus{models.CheckVerified, models.CheckVerified}, models.CaseVerified},
		{"under verification", []models.CheckStatus{models.CheckVerified, models.CheckUnderVerification}, models.CaseInProgress},
		{"escalated check", []models.CheckStatus{models.CheckEscalated, models.CheckVerified}, models.CaseInProgress},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.Equal(tt.want, aggregate.DeriveStatus(s.checks(tt.statuses...)))
		})
	}
}

func (s *AggregateSuite) TestDeriveStatusDiscrepancies() {
	s.Run("discrepancy flag", func() {
		checks := s.checks(models.CheckVerified, models.CheckVerified)
		checks[1].HasDiscrepancy = true
		s.Equal(models.CaseVerifiedWithDiscrepancies, aggregate.DeriveStatus(checks))
	})

	s.Run("internal remark", func() {
		checks := s.checks(models.CheckVerified, models.CheckVerified)
		checks[0].InternalRemarks = "employer confirmed by phone only"
		s.Equal(models.CaseVerifiedWithDiscrepancies, aggregate.DeriveStatus(checks))
	})
}

func (s *AggregateSuite) TestClosedChecksCountAsOutcome() {
	checks := s.checks(models.CheckClosed, models.CheckVerified)
	checks[0].Outcome = models.CheckVerified
	s.Equal(models.CaseVerified, aggregate.DeriveStatus(checks))

	checks[0].Outcome = models.CheckFailed
	s.Equal(models.CaseFailed, aggregate.DeriveStatus(checks))
}

func (s *AggregateSuite) TestRecompute() {
	s.Run("status follows checks", func() {
		next, changed := aggregate.Recompute(s.kase, s.checks(models.CheckVerified), s.now)
		s.True(changed)
		s.Equal(models.CaseVerified, next.OverallStatus)
		s.Equal(s.now, next.UpdatedAt)
		s.Equal(models.CaseInProgress, s.kase.OverallStatus)
	})

	s.Run("no change", func() {
		_, changed := aggregate.Recompute(s.kase, s.checks(models.CheckInProgress), s.now)
		s.False(changed)
	})

	s.Run("escalation held until settled", func() {
		kase := s.kase
		kase.OverallStatus = models.CaseEscalated
		kase.EscalationLevel = 1
		next, changed := aggregate.Recompute(kase, s.checks(models.CheckInProgress), s.now)
		s.False(changed)
		s.Equal(models.CaseEscalated, next.OverallStatus)

		next, changed = aggregate.Recompute(kase, s.checks(models.CheckFailed), s.now)
		s.True(changed)
		s.Equal(models.CaseFailed, next.OverallStatus)
	})

	s.Run("prior status is not an input", func() {
		kase := s.kase
		kase.OverallStatus = models.CaseEscalated
		next, changed := aggregate.Recompute(kase, s.checks(models.CheckInProgress), s.now)
		s.True(changed)
		s.Equal(models.CaseInProgress, next.OverallStatus)

		kase.OverallStatus = models.CaseInProgress
		kase.EscalationLevel = 2
		next, changed = aggregate.Recompute(kase, s.checks(models.CheckInProgress), s.now)
		s.True(changed)
		s.Equal(models.CaseEscalated, next.OverallStatus)
	})
}

func (s *AggregateSuite) TestDeriveIsDeterministic() {
	statuses := [][]models.CheckStatus{
		{models.CheckInProgress, models.CheckVerified},
		{models.CheckVerified, models.CheckVerified},
		{models.CheckFailed},
		{models.CheckNotStarted},
	}
	priors := []models.CaseStatus{models.CasePending, models.CaseInProgress, models.CaseEscalated, models.CaseVerified}
	for _, st := range statuses {
		checks := s.checks(st...)
		for _, level := range []int{0, 1} {
			want := s.kase
			want.EscalationLevel = level
			expected := aggregate.Derive(want, checks)
			for _, prior := range priors {
				kase := want
				kase.OverallStatus = prior
				next, _ := aggregate.Recompute(kase, checks, s.now)
				s.Equal(expected, next.OverallStatus, "statuses=%v level=%d prior=%s", st, level, prior)
			}
		}
	}
}

func (s *AggregateSuite) TestCloseIncomplete() {
	actor := id.NewUserID()
	checks := s.checks(models.CheckVerified, models.CheckVerified, models.CheckVerified, models.CheckVerified, models.CheckInProgress)

	_, err := aggregate.Close(s.kase, checks, aggregate.Closure{Decision: models.DecisionApproved, Actor: actor}, s.now)
	de, ok := dErrors.As(err)
	s.Require().True(ok)
	s.Equal(dErrors.CodeIncompleteChecks, de.Code)
	s.Equal([]string{checks[4].ID.String()}, de.Details["check_ids"])

	for _, final := range []models.CheckStatus{models.CheckVerified, models.CheckFailed} {
		checks[4].Status = final
		closed, err := aggregate.Close(s.kase, checks, aggregate.Closure{Decision: models.DecisionApproved, Actor: actor, Remarks: "ok"}, s.now)
		s.Require().NoError(err)
		s.True(closed.IsClosed)
		s.True(closed.IsImmutable)
		s.Equal(models.CaseClosed, closed.OverallStatus)
		s.Equal(actor, closed.ClosedBy)
		s.Equal(models.DecisionApproved, closed.ClosureDecision)
		s.Require().NotNil(closed.ClosedAt)
		s.Equal(s.now, *closed.ClosedAt)
	}
}

// Closure is accepted iff every check is final, for every status mix.
func (s *AggregateSuite) TestCloseProperty() {
	actor := id.NewUserID()
	for _, a := range models.AllCheckStatuses {
		for _, b := range models.AllCheckStatuses {
			_, err := aggregate.Close(s.kase, s.checks(a, b), aggregate.Closure{Decision: models.DecisionRejected, Actor: actor}, s.now)
			if a.IsFinal() && b.IsFinal() {
				s.NoError(err, "%s/%s", a, b)
			} else {
				s.True(dErrors.HasCode(err, dErrors.CodeIncompleteChecks), "%s/%s", a, b)
			}
		}
	}
}

func (s *AggregateSuite) TestCloseAlreadyClosed() {
	kase := s.kase
	kase.IsClosed = true
	_, err := aggregate.Close(kase, s.checks(models.CheckVerified), aggregate.Closure{Decision: models.DecisionApproved, Actor: id.NewUserID()}, s.now)
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyClosed))
}

func (s *AggregateSuite) TestRecheckRequiredKeepsCaseOpen() {
	actor := id.NewUserID()
	checks := s.checks(models.CheckVerified, models.CheckFailed)

	recheck, err := aggregate.Close(s.kase, checks, aggregate.Closure{Decision: models.DecisionRecheckRequired, Actor: actor, Remarks: "re-run criminal"}, s.now)
	s.Require().NoError(err)
	s.False(recheck.IsClosed)
	s.False(recheck.IsImmutable)
	s.Nil(recheck.ClosedAt)
	s.Equal(models.DecisionRecheckRequired, recheck.ClosureDecision)
	s.Require().NotNil(recheck.DecidedAt)

	final, err := aggregate.Close(recheck, checks, aggregate.Closure{Decision: models.DecisionRejected, Actor: actor}, s.now.Add(time.Hour))
	s.Require().NoError(err)
	s.True(final.IsClosed)
	s.Equal(models.DecisionRejected, final.ClosureDecision)
}

func (s *AggregateSuite) TestCloseValidatesInput() {
	checks := s.checks(models.CheckVerified)
	_, err := aggregate.Close(s.kase, checks, aggregate.Closure{Decision: "MAYBE", Actor: id.NewUserID()}, s.now)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = aggregate.Close(s.kase, checks, aggregate.Closure{Decision: models.DecisionApproved}, s.now)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
