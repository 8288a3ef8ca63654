package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"bgv/internal/verification/evidence"
	"bgv/internal/verification/metrics"
	"bgv/internal/verification/models"
	"bgv/internal/verification/ports"
	"bgv/internal/verification/ports/mocks"
	"bgv/internal/verification/risk"
	"bgv/internal/verification/service"
	"bgv/internal/verification/store/memory"
	id "bgv/pkg/domain"
	dErrors "bgv/pkg/domain-errors"
	"bgv/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	store    *memory.Store
	notifier *mocks.MockNotifier
	storage  *mocks.MockEvidenceStorage
	svc      *service.Service

	t0      time.Time
	ctx     context.Context
	tenant  id.TenantID
	maker   id.UserID
	checker id.UserID

	mu       sync.Mutex
	notified []ports.NotificationKind
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = memory.New()
	s.notifier = mocks.NewMockNotifier(s.ctrl)
	s.storage = mocks.NewMockEvidenceStorage(s.ctrl)
	s.t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.t0)
	s.tenant = id.NewTenantID()
	s.maker = id.NewUserID()
	s.checker = id.NewUserID()
	s.notified = nil

	svc, err := service.New(s.store, s.store,
		service.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		service.WithMetrics(metrics.NewWith(prometheus.NewRegistry())),
		service.WithNotifier(s.notifier),
		service.WithEvidenceStorage(s.storage),
	)
	s.Require().NoError(err)
	s.svc = svc
}

func (s *ServiceSuite) at(d time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), s.t0.Add(d))
}

// recordNotifications accepts every notification and remembers its kind.
func (s *ServiceSuite) recordNotifications() {
	s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, n ports.Notification) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.notified = append(s.notified, n.Kind)
			return nil
		}).AnyTimes()
}

func (s *ServiceSuite) count(kind ports.NotificationKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, k := range s.notified {
		if k == kind {
			n++
		}
	}
	return n
}

func (s *ServiceSuite) initiate(pkg models.Package, slaDays int, autoEscalate bool) *models.Case {
	c, err := s.svc.InitiateCase(s.ctx, s.tenant, "CAND-1001", pkg, slaDays, service.InitiateOptions{
		Actor:        s.maker,
		AutoEscalate: autoEscalate,
	})
	s.Require().NoError(err)
	return c
}

func (s *ServiceSuite) checkOf(c *models.Case, t models.CheckType) models.Check {
	checks, err := s.store.ListChecks(s.ctx, s.tenant, c.ID)
	s.Require().NoError(err)
	for _, ch := range checks {
		if ch.Type == t {
			return ch
		}
	}
	s.FailNow("check type not found", string(t))
	return models.Check{}
}

func (s *ServiceSuite) move(checkID id.CheckID, statuses ...models.CheckStatus) *models.Check {
	var out *models.Check
	for _, st := range statuses {
		var err error
		out, err = s.svc.RequestTransition(s.ctx, s.tenant, checkID, st, s.maker)
		s.Require().NoError(err, "move to %s", st)
	}
	return out
}

func (s *ServiceSuite) upload(checkID id.CheckID, t models.DocumentType) *evidence.Result {
	res, err := s.svc.RecordEvidence(s.ctx, s.tenant, checkID, service.DocumentUpload{
		Type:       t,
		FileName:   strings.ToLower(string(t)) + ".pdf",
		StorageKey: "tenants/" + s.tenant.String() + "/" + string(t),
		SizeBytes:  2048,
		Actor:      s.maker,
	})
	s.Require().NoError(err)
	return res
}

func (s *ServiceSuite) forceStatus(ch models.Check, status models.CheckStatus) {
	ch.Status = status
	if status == models.CheckVerified || status == models.CheckFailed {
		ch.Outcome = status
	}
	s.Require().NoError(s.store.UpdateCheck(s.ctx, &ch))
}

func (s *ServiceSuite) actions(caseID id.CaseID) []models.TimelineAction {
	entries, err := s.svc.GetTimeline(s.ctx, s.tenant, caseID, models.VisibilityInternal)
	s.Require().NoError(err)
	out := make([]models.TimelineAction, len(entries))
	for i, e := range entries {
		out[i] = e.Action
	}
	return out
}

func (s *ServiceSuite) TestNewRequiresRepositories() {
	_, err := service.New(nil, s.store)
	s.Require().Error(err)
	s.Contains(err.Error(), "repository is required")

	_, err = service.New(s.store, nil)
	s.Require().Error(err)
	s.Contains(err.Error(), "timeline repository is required")
}

func (s *ServiceSuite) TestInitiateStandardCase() {
	c := s.initiate(models.PackageStandard, 7, false)

	s.Equal(models.CasePending, c.OverallStatus)
	s.Equal(s.t0.AddDate(0, 0, 7), c.Deadline)
	s.Equal(models.SLAOnTrack, c.SLAStatus)

	view, err := s.svc.GetCase(s.ctx, s.tenant, c.ID)
	s.Require().NoError(err)
	s.Len(view.Checks, 5)
	for _, ch := range view.Checks {
		s.Equal(models.CheckNotStarted, ch.Status)
	}
	s.Equal(models.RiskClear, view.Risk.RiskLevel)
	s.Equal(models.RecommendApprove, view.Recommendation)
	s.Contains(s.actions(c.ID), models.ActionCaseInitiated)
}

func (s *ServiceSuite) TestInitiateValidation() {
	s.Run("unknown package", func() {
		_, err := s.svc.InitiateCase(s.ctx, s.tenant, "CAND-1", models.Package("PLATINUM"), 7, service.InitiateOptions{})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
	s.Run("non-positive sla", func() {
		_, err := s.svc.InitiateCase(s.ctx, s.tenant, "CAND-1", models.PackageBasic, 0, service.InitiateOptions{})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
	s.Run("blank subject", func() {
		_, err := s.svc.InitiateCase(s.ctx, s.tenant, "  ", models.PackageBasic, 7, service.InitiateOptions{})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestUnknownCheckIsNotFound() {
	_, err := s.svc.RequestTransition(s.ctx, s.tenant, id.NewCheckID(), models.CheckAssigned, s.maker)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestInvalidTransitionListsAllowed() {
	c := s.initiate(models.PackageBasic, 7, false)
	ch := s.checkOf(c, models.CheckTypeIdentity)

	_, err := s.svc.RequestTransition(s.ctx, s.tenant, ch.ID, models.CheckVerified, s.maker)
	s.Require().True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	de, _ := dErrors.As(err)
	s.Equal([]string{"ASSIGNED", "DOCUMENTS_PENDING"}, de.Details["allowed"])
}

func (s *ServiceSuite) TestEvidenceGateAndMakerChecker() {
	c := s.initiate(models.PackageStandard, 7, false)
	edu := s.checkOf(c, models.CheckTypeEducation)

	_, err := s.svc.AssignCheck(s.ctx, s.tenant, edu.ID, s.maker, s.checker, s.maker)
	s.Require().NoError(err)
	s.move(edu.ID, models.CheckInProgress, models.CheckUnderVerification)

	res := s.upload(edu.ID, models.DocDegreeCertificate)
	s.False(res.HasRequiredEvidence)
	s.Equal(50, res.EvidenceCompleteness)
	s.Equal([]models.DocumentType{models.DocMarksheet}, res.MissingDocumentTypes)

	_, err = s.svc.RequestTransition(s.ctx, s.tenant, edu.ID, models.CheckUnderReview, s.maker)
	s.Require().True(dErrors.HasCode(err, dErrors.CodeEvidenceMissing))
	de, _ := dErrors.As(err)
	s.Equal([]string{"MARKSHEET"}, de.Details["missing_document_types"])
	s.Equal(50, de.Details["completeness"])

	res = s.upload(edu.ID, models.DocMarksheet)
	s.True(res.HasRequiredEvidence)
	s.Equal(100, res.EvidenceCompleteness)

	docs, err := s.store.ListDocuments(s.ctx, s.tenant, edu.ID)
	s.Require().NoError(err)
	for _, d := range docs {
		_, err := s.svc.ReviewDocument(s.ctx, s.tenant, d.ID, models.DocumentAccepted, "", s.checker)
		s.Require().NoError(err)
	}
	s.move(edu.ID, models.CheckUnderReview)

	s.Run("verified without a maker submission", func() {
		_, err := s.svc.RequestTransition(s.ctx, s.tenant, edu.ID, models.CheckVerified, s.checker)
		s.True(dErrors.HasCode(err, dErrors.CodeApprovalRequired))
	})

	_, err = s.svc.SubmitForApproval(s.ctx, s.tenant, edu.ID, service.Submission{Proposed: models.CheckVerified, Notes: "degree confirmed with registrar", Actor: s.maker})
	s.Require().NoError(err)

	s.Run("verified with a submission but no decision", func() {
		_, err := s.svc.RequestTransition(s.ctx, s.tenant, edu.ID, models.CheckVerified, s.checker)
		s.True(dErrors.HasCode(err, dErrors.CodeApprovalRequired))
	})

	s.Run("maker cannot approve their own verification", func() {
		_, err := s.svc.DecideApproval(s.ctx, s.tenant, edu.ID, models.ReviewApproved, s.maker, "")
		s.True(dErrors.HasCode(err, dErrors.CodeSelfApproval))
	})

	_, err = s.svc.DecideApproval(s.ctx, s.tenant, edu.ID, models.ReviewApproved, s.checker, "")
	s.Require().NoError(err)

	verified, err := s.svc.RequestTransition(s.ctx, s.tenant, edu.ID, models.CheckVerified, s.checker)
	s.Require().NoError(err)
	s.Equal(models.CheckVerified, verified.Status)
	s.Equal(models.CheckVerified, verified.Outcome)
	s.NotNil(verified.CompletedAt)

	s.Run("an approval is final", func() {
		_, err := s.svc.DecideApproval(s.ctx, s.tenant, edu.ID, models.ReviewApproved, s.checker, "")
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyApproved))
	})

	actions := s.actions(c.ID)
	s.Contains(actions, models.ActionVerificationSubmitted)
	s.Contains(actions, models.ActionApprovalDecided)
	s.Contains(actions, models.ActionStatusChanged)
}

func (s *ServiceSuite) TestSendBackRequiresResubmission() {
	c := s.initiate(models.PackageBasic, 7, false)
	ch := s.checkOf(c, models.CheckTypeCriminal)
	s.move(ch.ID, models.CheckAssigned, models.CheckInProgress, models.CheckUnderVerification)
	s.upload(ch.ID, models.DocPoliceVerification)
	s.move(ch.ID, models.CheckUnderReview)

	_, err := s.svc.SubmitForApproval(s.ctx, s.tenant, ch.ID, service.Submission{Proposed: models.CheckVerified, Actor: s.maker})
	s.Require().NoError(err)
	_, err = s.svc.DecideApproval(s.ctx, s.tenant, ch.ID, models.ReviewSentBack, s.checker, "certificate illegible")
	s.Require().NoError(err)

	_, err = s.svc.DecideApproval(s.ctx, s.tenant, ch.ID, models.ReviewApproved, s.checker, "")
	s.True(dErrors.HasCode(err, dErrors.CodeApprovalRequired))

	_, err = s.svc.SubmitForApproval(s.ctx, s.tenant, ch.ID, service.Submission{Proposed: models.CheckVerified, Notes: "re-uploaded", Actor: s.maker})
	s.Require().NoError(err)
	approved, err := s.svc.DecideApproval(s.ctx, s.tenant, ch.ID, models.ReviewApproved, s.checker, "")
	s.Require().NoError(err)
	s.True(approved.Review.IsApproved())
}

// reviewCriminalCheck takes the CRIMINAL check of a new BASIC case to
// UNDER_REVIEW with sufficient evidence.
func (s *ServiceSuite) reviewCriminalCheck() (*models.Case, models.Check) {
	c := s.initiate(models.PackageBasic, 7, false)
	ch := s.checkOf(c, models.CheckTypeCriminal)
	s.move(ch.ID, models.CheckAssigned, models.CheckInProgress, models.CheckUnderVerification)
	s.upload(ch.ID, models.DocPoliceVerification)
	s.move(ch.ID, models.CheckUnderReview)
	return c, ch
}

func (s *ServiceSuite) approve(checkID id.CheckID, proposed models.CheckStatus) {
	_, err := s.svc.SubmitForApproval(s.ctx, s.tenant, checkID, service.Submission{Proposed: proposed, Actor: s.maker})
	s.Require().NoError(err)
	_, err = s.svc.DecideApproval(s.ctx, s.tenant, checkID, models.ReviewApproved, s.checker, "")
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestSecondReviewCycleAfterEscalation() {
	c, ch := s.reviewCriminalCheck()
	s.approve(ch.ID, models.CheckFailed)
	s.move(ch.ID, models.CheckFailed, models.CheckEscalated)

	reopened := s.move(ch.ID, models.CheckUnderReview)
	s.False(reopened.Review.IsVerificationComplete())

	_, err := s.svc.RequestTransition(s.ctx, s.tenant, ch.ID, models.CheckVerified, s.checker)
	s.True(dErrors.HasCode(err, dErrors.CodeApprovalRequired))

	s.approve(ch.ID, models.CheckVerified)
	verified, err := s.svc.RequestTransition(s.ctx, s.tenant, ch.ID, models.CheckVerified, s.checker)
	s.Require().NoError(err)
	s.Equal(models.CheckVerified, verified.Status)
	s.Equal(models.CheckVerified, verified.Outcome)

	decided := 0
	for _, a := range s.actions(c.ID) {
		if a == models.ActionApprovalDecided {
			decided++
		}
	}
	s.Equal(2, decided, "both review cycles stay on the timeline")
}

func (s *ServiceSuite) TestDiscrepancyLoopNeedsFreshApproval() {
	_, ch := s.reviewCriminalCheck()
	s.approve(ch.ID, models.CheckVerified)
	s.move(ch.ID, models.CheckDiscrepancy, models.CheckUnderReview)

	_, err := s.svc.RequestTransition(s.ctx, s.tenant, ch.ID, models.CheckVerified, s.checker)
	s.True(dErrors.HasCode(err, dErrors.CodeApprovalRequired))

	s.approve(ch.ID, models.CheckVerified)
	verified, err := s.svc.RequestTransition(s.ctx, s.tenant, ch.ID, models.CheckVerified, s.checker)
	s.Require().NoError(err)
	s.True(verified.HasDiscrepancy)
}

func (s *ServiceSuite) TestInternalRemarksFlagVerifiedCase() {
	c, ch := s.reviewCriminalCheck()
	checks, err := s.store.ListChecks(s.ctx, s.tenant, c.ID)
	s.Require().NoError(err)
	for _, other := range checks {
		if other.ID != ch.ID {
			s.forceStatus(other, models.CheckVerified)
		}
	}

	submitted, err := s.svc.SubmitForApproval(s.ctx, s.tenant, ch.ID, service.Submission{
		Proposed:        models.CheckVerified,
		Notes:           "no records found",
		InternalRemarks: "  court portal was offline; verified by phone  ",
		Actor:           s.maker,
	})
	s.Require().NoError(err)
	s.Equal("court portal was offline; verified by phone", submitted.InternalRemarks)

	_, err = s.svc.DecideApproval(s.ctx, s.tenant, ch.ID, models.ReviewApproved, s.checker, "")
	s.Require().NoError(err)
	s.move(ch.ID, models.CheckVerified)

	stored, err := s.store.FindCase(s.ctx, s.tenant, c.ID)
	s.Require().NoError(err)
	s.Equal(models.CaseVerifiedWithDiscrepancies, stored.OverallStatus)
}

func (s *ServiceSuite) TestAssignRejectsSameVerifierAndApprover() {
	c := s.initiate(models.PackageBasic, 7, false)
	ch := s.checkOf(c, models.CheckTypeAddress)

	_, err := s.svc.AssignCheck(s.ctx, s.tenant, ch.ID, s.maker, s.maker, s.checker)
	s.True(dErrors.HasCode(err, dErrors.CodeSelfApproval))
}

func (s *ServiceSuite) TestDocumentsPendingAdvancesOnSufficientEvidence() {
	c := s.initiate(models.PackageBasic, 7, false)
	ch := s.checkOf(c, models.CheckTypeIdentity)
	s.move(ch.ID, models.CheckDocumentsPending)

	res := s.upload(ch.ID, models.DocPAN)
	s.True(res.HasRequiredEvidence)

	stored, err := s.store.FindCheck(s.ctx, s.tenant, ch.ID)
	s.Require().NoError(err)
	s.Equal(models.CheckDocumentsUploaded, stored.Status)
	s.True(stored.Evidence.HasRequiredEvidence)
	s.Equal(33, stored.Evidence.Completeness)
}

func (s *ServiceSuite) TestDocumentVersioningAndSoftDelete() {
	c := s.initiate(models.PackageBasic, 7, false)
	ch := s.checkOf(c, models.CheckTypeAddress)
	s.upload(ch.ID, models.DocAddressProof)

	docs, err := s.store.ListDocuments(s.ctx, s.tenant, ch.ID)
	s.Require().NoError(err)
	first := docs[0].ID

	_, err = s.svc.RecordEvidence(s.ctx, s.tenant, ch.ID, service.DocumentUpload{
		Type:       models.DocAddressProof,
		StorageKey: "proof-v2",
		Replaces:   &first,
		Actor:      s.maker,
	})
	s.Require().NoError(err)

	docs, err = s.store.ListDocuments(s.ctx, s.tenant, ch.ID)
	s.Require().NoError(err)
	s.Require().Len(docs, 2)
	s.True(docs[0].Superseded)
	s.Equal(2, docs[1].Version)
	s.Equal(first, *docs[1].Replaces)

	s.Run("replacing a superseded document conflicts", func() {
		_, err := s.svc.RecordEvidence(s.ctx, s.tenant, ch.ID, service.DocumentUpload{
			Type:       models.DocAddressProof,
			StorageKey: "proof-v3",
			Replaces:   &first,
			Actor:      s.maker,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	deleted, err := s.svc.DeleteDocument(s.ctx, s.tenant, docs[1].ID, s.maker)
	s.Require().NoError(err)
	s.True(deleted.Deleted)

	stored, err := s.store.FindCheck(s.ctx, s.tenant, ch.ID)
	s.Require().NoError(err)
	s.False(stored.Evidence.HasRequiredEvidence)

	_, err = s.svc.DeleteDocument(s.ctx, s.tenant, docs[1].ID, s.maker)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestRejectedDocumentBlocksEvidence() {
	c := s.initiate(models.PackageBasic, 7, false)
	ch := s.checkOf(c, models.CheckTypeCriminal)
	s.upload(ch.ID, models.DocPoliceVerification)
	docs, err := s.store.ListDocuments(s.ctx, s.tenant, ch.ID)
	s.Require().NoError(err)

	_, err = s.svc.ReviewDocument(s.ctx, s.tenant, docs[0].ID, models.DocumentRejected, "", s.checker)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	reviewed, err := s.svc.ReviewDocument(s.ctx, s.tenant, docs[0].ID, models.DocumentRejected, "stamp missing", s.checker)
	s.Require().NoError(err)
	s.Equal("stamp missing", reviewed.RejectionReason)

	stored, err := s.store.FindCheck(s.ctx, s.tenant, ch.ID)
	s.Require().NoError(err)
	s.False(stored.Evidence.HasRequiredEvidence)
}

func (s *ServiceSuite) TestRiskScoreAndRecommendation() {
	c := s.initiate(models.PackageStandard, 7, false)
	emp := s.checkOf(c, models.CheckTypeEmployment)
	ident := s.checkOf(c, models.CheckTypeIdentity)

	_, err := s.svc.AddDiscrepancy(s.ctx, s.tenant, c.ID, service.RiskInput{
		Kind: string(risk.SalaryMismatchMajor), CheckID: emp.ID, Actor: s.maker,
	})
	s.Require().NoError(err)
	score, err := s.svc.AddDiscrepancy(s.ctx, s.tenant, c.ID, service.RiskInput{
		Kind: "name_spelling_variation", CheckID: ident.ID, Actor: s.maker,
	})
	s.Require().NoError(err)

	s.Equal(23, score.TotalRiskScore)
	s.Equal(models.RiskModerate, score.RiskLevel)
	s.Len(score.History, 2)

	rec, err := s.svc.Recommendation(s.ctx, s.tenant, c.ID)
	s.Require().NoError(err)
	s.Equal(models.RecommendApproveWithConditions, rec.Recommendation)

	stored, err := s.store.FindCheck(s.ctx, s.tenant, emp.ID)
	s.Require().NoError(err)
	s.True(stored.HasDiscrepancy)

	s.Run("green flags never offset", func() {
		score, err := s.svc.AddGreenFlag(s.ctx, s.tenant, c.ID, service.GreenFlagInput{
			Label: "strong references", Actor: s.maker,
		})
		s.Require().NoError(err)
		s.Equal(23, score.TotalRiskScore)
	})

	s.Run("unknown kinds are rejected", func() {
		_, err := s.svc.AddRedFlag(s.ctx, s.tenant, c.ID, service.RiskInput{Kind: "VIBES", Actor: s.maker})
		s.True(dErrors.HasCode(err, dErrors.CodeUnknownDiscrepancy))
	})

	s.Run("discrepancy against another case's check", func() {
		other := s.initiate(models.PackageBasic, 7, false)
		_, err := s.svc.AddDiscrepancy(s.ctx, s.tenant, other.ID, service.RiskInput{
			Kind: string(risk.NameMismatch), CheckID: emp.ID, Actor: s.maker,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("resolving removes the points", func() {
		salary := score.Discrepancies[0]
		resolved, err := s.svc.ResolveRiskItem(s.ctx, s.tenant, c.ID, salary.ID, s.checker, "payslip reissued by employer")
		s.Require().NoError(err)
		s.Equal(3, resolved.TotalRiskScore)
		s.Equal(models.RiskLow, resolved.RiskLevel)
	})
}

func (s *ServiceSuite) TestSweepBreachesOnce() {
	s.recordNotifications()
	c := s.initiate(models.PackageBasic, 5, true)

	critical := s.at(108 * time.Hour)
	summary, err := s.svc.SweepSLAs(critical, s.tenant)
	s.Require().NoError(err)
	s.Equal(service.SweepSummary{Checked: 1, Reminders: 2}, summary)

	stored, err := s.store.FindCase(s.ctx, s.tenant, c.ID)
	s.Require().NoError(err)
	s.Equal(models.SLACritical, stored.SLAStatus)
	s.Equal([]int{50, 80}, stored.RemindersSent)

	breached := s.at(132 * time.Hour)
	summary, err = s.svc.SweepSLAs(breached, s.tenant)
	s.Require().NoError(err)
	s.Equal(service.SweepSummary{Checked: 1, Breached: 1, Escalated: 1, Reminders: 1}, summary)

	summary, err = s.svc.SweepSLAs(breached, s.tenant)
	s.Require().NoError(err)
	s.Equal(service.SweepSummary{Checked: 1}, summary)

	stored, err = s.store.FindCase(s.ctx, s.tenant, c.ID)
	s.Require().NoError(err)
	s.True(stored.SLABreached)
	s.Equal(models.SLABreached, stored.SLAStatus)
	s.Equal(models.CaseEscalated, stored.OverallStatus)
	s.Equal(1, stored.EscalationLevel)

	s.Equal(3, s.count(ports.NotifySLAReminder))
	s.Equal(1, s.count(ports.NotifySLABreach))
	s.Equal(1, s.count(ports.NotifyEscalation))

	actions := s.actions(c.ID)
	s.Contains(actions, models.ActionSLABreached)
	s.Contains(actions, models.ActionCaseEscalated)
	s.Contains(actions, models.ActionReminderSent)
}

func (s *ServiceSuite) TestSweepRecordsFailedReminders() {
	s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(errors.New("smtp down")).Times(1)
	c := s.initiate(models.PackageBasic, 10, false)

	summary, err := s.svc.SweepSLAs(s.at(6*24*time.Hour), s.tenant)
	s.Require().NoError(err)
	s.Equal(1, summary.Reminders)
	s.Contains(s.actions(c.ID), models.ActionReminderFailed)

	summary, err = s.svc.SweepSLAs(s.at(6*24*time.Hour), s.tenant)
	s.Require().NoError(err)
	s.Zero(summary.Reminders)
}

func (s *ServiceSuite) TestSweepSkipsClosedCases() {
	s.recordNotifications()
	c := s.initiate(models.PackageBasic, 1, false)
	checks, err := s.store.ListChecks(s.ctx, s.tenant, c.ID)
	s.Require().NoError(err)
	for _, ch := range checks {
		s.forceStatus(ch, models.CheckVerified)
	}
	_, err = s.svc.CloseCase(s.ctx, s.tenant, c.ID, models.DecisionApproved, s.checker, "")
	s.Require().NoError(err)

	summary, err := s.svc.SweepSLAs(s.at(72*time.Hour), s.tenant)
	s.Require().NoError(err)
	s.Equal(service.SweepSummary{}, summary)
}

func (s *ServiceSuite) TestSweepAllVisitsTenants() {
	s.recordNotifications()
	other := id.NewTenantID()
	tenants := mocks.NewMockTenantDirectory(s.ctrl)
	tenants.EXPECT().ActiveTenants(gomock.Any()).Return([]id.TenantID{s.tenant, other}, nil)

	svc, err := service.New(s.store, s.store,
		service.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		service.WithNotifier(s.notifier),
		service.WithTenantDirectory(tenants),
		service.WithSweepConcurrency(2),
	)
	s.Require().NoError(err)

	s.initiate(models.PackageBasic, 5, false)
	_, err = svc.InitiateCase(s.ctx, other, "CAND-2002", models.PackageBasic, 5, service.InitiateOptions{})
	s.Require().NoError(err)

	summary, err := svc.SweepAll(s.at(24 * time.Hour))
	s.Require().NoError(err)
	s.Equal(2, summary.Checked)
	s.Zero(summary.Failed)
}

func (s *ServiceSuite) TestCloseCase() {
	s.recordNotifications()
	c := s.initiate(models.PackageStandard, 7, false)
	checks, err := s.store.ListChecks(s.ctx, s.tenant, c.ID)
	s.Require().NoError(err)
	for _, ch := range checks[:4] {
		s.forceStatus(ch, models.CheckVerified)
	}
	pending := checks[4]
	s.forceStatus(pending, models.CheckInProgress)

	_, err = s.svc.CloseCase(s.ctx, s.tenant, c.ID, models.DecisionApproved, s.checker, "")
	s.Require().True(dErrors.HasCode(err, dErrors.CodeIncompleteChecks))
	de, _ := dErrors.As(err)
	s.Equal([]string{pending.ID.String()}, de.Details["check_ids"])

	reloaded, err := s.store.FindCheck(s.ctx, s.tenant, pending.ID)
	s.Require().NoError(err)
	s.forceStatus(*reloaded, models.CheckFailed)

	closed, err := s.svc.CloseCase(s.ctx, s.tenant, c.ID, models.DecisionRejected, s.checker, "criminal record")
	s.Require().NoError(err)
	s.True(closed.IsClosed)
	s.True(closed.IsImmutable)
	s.Equal(models.CaseClosed, closed.OverallStatus)
	s.Equal(s.checker, closed.ClosedBy)
	s.Equal(1, s.count(ports.NotifyCaseClosed))

	s.Run("closed cases refuse further work", func() {
		_, err := s.svc.RequestTransition(s.ctx, s.tenant, pending.ID, models.CheckEscalated, s.checker)
		s.True(dErrors.HasCode(err, dErrors.CodeImmutableCase))

		_, err = s.svc.AddRedFlag(s.ctx, s.tenant, c.ID, service.RiskInput{Kind: string(risk.FakeDegree), Actor: s.maker})
		s.True(dErrors.HasCode(err, dErrors.CodeImmutableCase))

		_, err = s.svc.CloseCase(s.ctx, s.tenant, c.ID, models.DecisionApproved, s.checker, "")
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyClosed))
	})
}

func (s *ServiceSuite) TestRecheckRequiredKeepsCaseOpen() {
	c := s.initiate(models.PackageBasic, 7, false)
	checks, err := s.store.ListChecks(s.ctx, s.tenant, c.ID)
	s.Require().NoError(err)
	for _, ch := range checks {
		s.forceStatus(ch, models.CheckVerified)
	}

	rechecked, err := s.svc.CloseCase(s.ctx, s.tenant, c.ID, models.DecisionRecheckRequired, s.checker, "address proof expired")
	s.Require().NoError(err)
	s.False(rechecked.IsClosed)
	s.Equal(models.DecisionRecheckRequired, rechecked.ClosureDecision)

	s.recordNotifications()
	closed, err := s.svc.CloseCase(s.ctx, s.tenant, c.ID, models.DecisionApproved, s.checker, "")
	s.Require().NoError(err)
	s.True(closed.IsClosed)
	s.Equal(models.DecisionApproved, closed.ClosureDecision)
}

func (s *ServiceSuite) TestEscalateCase() {
	s.recordNotifications()
	c := s.initiate(models.PackageBasic, 7, false)

	escalated, err := s.svc.EscalateCase(s.ctx, s.tenant, c.ID, s.checker, "client request")
	s.Require().NoError(err)
	s.Equal(models.CaseEscalated, escalated.OverallStatus)
	s.Equal(1, escalated.EscalationLevel)

	escalated, err = s.svc.EscalateCase(s.ctx, s.tenant, c.ID, s.checker, "no response")
	s.Require().NoError(err)
	s.Equal(2, escalated.EscalationLevel)
	s.Equal(2, s.count(ports.NotifyEscalation))
}

func (s *ServiceSuite) TestIntegrityMismatchRaisesRedFlag() {
	c := s.initiate(models.PackageBasic, 7, false)
	ch := s.checkOf(c, models.CheckTypeIdentity)
	original, err := evidence.Hash(strings.NewReader("original passport scan"))
	s.Require().NoError(err)

	_, err = s.svc.RecordEvidence(s.ctx, s.tenant, ch.ID, service.DocumentUpload{
		Type:        models.DocPassport,
		StorageKey:  "passport",
		ContentHash: original,
		Actor:       s.maker,
	})
	s.Require().NoError(err)
	docs, err := s.store.ListDocuments(s.ctx, s.tenant, ch.ID)
	s.Require().NoError(err)
	doc := docs[0]

	s.Run("matching content", func() {
		s.storage.EXPECT().Open(gomock.Any(), "passport").
			Return(io.NopCloser(strings.NewReader("original passport scan")), nil)
		res, err := s.svc.VerifyDocumentIntegrity(s.ctx, s.tenant, doc.ID, s.checker)
		s.Require().NoError(err)
		s.True(res.Match)
	})

	s.Run("tampered content", func() {
		s.storage.EXPECT().Open(gomock.Any(), "passport").
			Return(io.NopCloser(strings.NewReader("edited passport scan")), nil)
		res, err := s.svc.VerifyDocumentIntegrity(s.ctx, s.tenant, doc.ID, s.checker)
		s.Require().NoError(err)
		s.False(res.Match)

		score, err := s.store.FindRiskScore(s.ctx, s.tenant, c.ID)
		s.Require().NoError(err)
		s.Require().Len(score.RedFlags, 1)
		s.Equal(risk.DocumentTampered, score.RedFlags[0].Kind)
		s.Equal(60, score.TotalRiskScore)
		s.Equal(models.RiskCritical, score.RiskLevel)
		s.Contains(s.actions(c.ID), models.ActionIntegrityMismatch)
	})
}

func (s *ServiceSuite) TestTimelineVisibility() {
	c := s.initiate(models.PackageBasic, 7, false)
	ch := s.checkOf(c, models.CheckTypeIdentity)
	_, err := s.svc.AddRedFlag(s.ctx, s.tenant, c.ID, service.RiskInput{
		Kind: string(risk.CandidateNonCooperative), Actor: s.maker,
	})
	s.Require().NoError(err)
	s.move(ch.ID, models.CheckAssigned)

	candidate, err := s.svc.GetTimeline(s.ctx, s.tenant, c.ID, models.VisibilityCandidate)
	s.Require().NoError(err)
	for _, e := range candidate {
		s.Equal(models.VisibilityCandidate, e.Visibility)
	}

	client, err := s.svc.GetTimeline(s.ctx, s.tenant, c.ID, models.VisibilityClient)
	s.Require().NoError(err)
	internal, err := s.svc.GetTimeline(s.ctx, s.tenant, c.ID, models.VisibilityInternal)
	s.Require().NoError(err)
	s.Less(len(candidate), len(client))
	s.Less(len(client), len(internal))
}

type failingTimeline struct{}

func (failingTimeline) Append(context.Context, models.TimelineEntry) error {
	return errors.New("timeline store down")
}

func (failingTimeline) List(context.Context, id.TenantID, id.CaseID) ([]models.TimelineEntry, error) {
	return nil, nil
}

func (s *ServiceSuite) TestTimelineFailureDoesNotRollBack() {
	reg := prometheus.NewRegistry()
	m := metrics.NewWith(reg)
	svc, err := service.New(s.store, failingTimeline{},
		service.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		service.WithMetrics(m),
	)
	s.Require().NoError(err)

	c, err := svc.InitiateCase(s.ctx, s.tenant, "CAND-3003", models.PackageBasic, 7, service.InitiateOptions{})
	s.Require().NoError(err)
	checks, err := s.store.ListChecks(s.ctx, s.tenant, c.ID)
	s.Require().NoError(err)

	moved, err := svc.RequestTransition(s.ctx, s.tenant, checks[0].ID, models.CheckAssigned, s.maker)
	s.Require().NoError(err)
	s.Equal(models.CheckAssigned, moved.Status)
}
