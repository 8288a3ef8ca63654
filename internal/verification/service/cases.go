package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"bgv/internal/verification/aggregate"
	"bgv/internal/verification/models"
	"bgv/internal/verification/ports"
	"bgv/internal/verification/risk"
	"bgv/internal/verification/sla"
	"bgv/internal/verification/timeline"
	id "bgv/pkg/domain"
	dErrors "bgv/pkg/domain-errors"
	"bgv/pkg/requestcontext"
)

// InitiateOptions are the optional inputs of InitiateCase.
type InitiateOptions struct {
	Actor        id.UserID
	AutoEscalate bool
	// Profile is the candidate-declared data used for advisory cross-checks.
	Profile map[string]string
	// CheckDueDays, when positive, gives every check a due date that many
	// days after initiation.
	CheckDueDays int
}

// CaseView is a case with its checks and risk score.
type CaseView struct {
	Case           models.Case           `json:"case"`
	Checks         []models.Check        `json:"checks"`
	Risk           *models.RiskScore     `json:"risk,omitempty"`
	SLA            sla.Evaluation        `json:"sla"`
	Recommendation models.Recommendation `json:"recommendation"`
}

// InitiateCase creates a case and one NOT_STARTED check per check type of
// the package.
func (s *Service) InitiateCase(ctx context.Context, tenantID id.TenantID, subjectRef string, pkg models.Package, slaDays int, opts InitiateOptions) (_ *models.Case, err error) {
	ctx, span := s.startSpan(ctx, "InitiateCase",
		attribute.String("tenant_id", tenantID.String()),
		attribute.String("package", string(pkg)))
	defer func() { endSpan(span, err) }()
	defer s.metrics.ObserveOperation("initiate_case", time.Now())

	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "tenant_id is required")
	}
	subjectRef = strings.TrimSpace(subjectRef)
	if subjectRef == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "subject_ref is required")
	}
	if slaDays <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "sla_days must be positive")
	}
	types, ok := s.catalog.ChecksFor(pkg)
	if !ok || len(types) == 0 {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown package %q", pkg)
	}

	now := requestcontext.Now(ctx)
	c := models.Case{
		ID:            id.NewCaseID(),
		TenantID:      tenantID,
		SubjectRef:    subjectRef,
		Package:       pkg,
		OverallStatus: models.CasePending,
		InitiatedAt:   now,
		InitiatedBy:   opts.Actor,
		Profile:       opts.Profile,
		SLADays:       slaDays,
		Deadline:      sla.Deadline(now, slaDays),
		SLAStatus:     models.SLAOnTrack,
		AutoEscalate:  opts.AutoEscalate,
		Version:       1,
		UpdatedAt:     now,
	}
	var due *time.Time
	if opts.CheckDueDays > 0 {
		d := now.AddDate(0, 0, opts.CheckDueDays)
		due = &d
	}
	checks := make([]models.Check, len(types))
	for i, t := range types {
		checks[i] = models.NewCheck(c.ID, tenantID, t, due, now)
	}
	score := models.NewRiskScore(c.ID, tenantID, now)

	err = s.repo.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateCase(ctx, &c, checks); err != nil {
			return err
		}
		return s.repo.SaveRiskScore(ctx, &score)
	})
	if err != nil {
		return nil, translate(err, "case", "create case")
	}

	entry := timeline.Entry(&c, models.ActionCaseInitiated, opts.Actor, now)
	entry.NewStatus = string(c.OverallStatus)
	entry.Description = "case initiated with package " + string(pkg) + " (" + strconv.Itoa(len(checks)) + " checks)"
	entry.Visibility = models.VisibilityCandidate
	s.timeline.Record(ctx, entry)

	s.logAudit(ctx, "case_initiated",
		"tenant_id", tenantID,
		"case_id", c.ID,
		"package", pkg,
		"checks", len(checks),
	)
	return &c, nil
}

// GetCase returns a case with its checks, risk score and SLA position.
func (s *Service) GetCase(ctx context.Context, tenantID id.TenantID, caseID id.CaseID) (*CaseView, error) {
	c, err := s.repo.FindCase(ctx, tenantID, caseID)
	if err != nil {
		return nil, translate(err, "case", "load case")
	}
	checks, err := s.repo.ListChecks(ctx, tenantID, caseID)
	if err != nil {
		return nil, translate(err, "checks", "load checks")
	}
	view := &CaseView{
		Case:   *c,
		Checks: checks,
		SLA:    sla.Evaluate(*c, requestcontext.Now(ctx)),
	}
	score, err := s.loadRisk(ctx, c)
	if err != nil {
		return nil, err
	}
	view.Risk = score
	view.Recommendation = risk.Recommendation(*score)
	return view, nil
}

// GetTimeline returns a case's timeline as seen by viewer.
func (s *Service) GetTimeline(ctx context.Context, tenantID id.TenantID, caseID id.CaseID, viewer models.Visibility) ([]models.TimelineEntry, error) {
	if _, err := s.repo.FindCase(ctx, tenantID, caseID); err != nil {
		return nil, translate(err, "case", "load case")
	}
	entries, err := s.timeline.List(ctx, tenantID, caseID, viewer)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load timeline")
	}
	return entries, nil
}

// CloseCase records the closure decision. APPROVED and REJECTED close the
// case for good; RECHECK_REQUIRED keeps it open so work can resume and a
// later decision can still be recorded.
func (s *Service) CloseCase(ctx context.Context, tenantID id.TenantID, caseID id.CaseID, decision models.ClosureDecision, actor id.UserID, remarks string) (_ *models.Case, err error) {
	ctx, span := s.startSpan(ctx, "CloseCase",
		attribute.String("case_id", caseID.String()),
		attribute.String("decision", string(decision)))
	defer func() { endSpan(span, err) }()
	defer s.metrics.ObserveOperation("close_case", time.Now())

	if err := requireActor(actor); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	var (
		closed  models.Case
		entries []models.TimelineEntry
	)
	err = s.withCase(ctx, caseID, func(ctx context.Context) error {
		c, err := s.repo.FindCase(ctx, tenantID, caseID)
		if err != nil {
			return err
		}
		checks, err := s.repo.ListChecks(ctx, tenantID, caseID)
		if err != nil {
			return err
		}
		prev := c.OverallStatus
		next, err := aggregate.Close(*c, checks, aggregate.Closure{
			Decision: decision,
			Remarks:  remarks,
			Actor:    actor,
		}, now)
		if err != nil {
			return err
		}
		if err := s.repo.UpdateCase(ctx, &next); err != nil {
			return err
		}
		closed = next

		decided := timeline.Entry(&next, models.ActionClosureDecision, actor, now)
		decided.NewStatus = string(decision)
		decided.Description = "closure decision " + string(decision)
		if remarks != "" {
			decided.Description += ": " + remarks
		}
		decided.Visibility = models.VisibilityClient
		entries = append(entries, decided)
		if next.IsClosed {
			e := timeline.Entry(&next, models.ActionCaseClosed, actor, now)
			e.OldStatus = string(prev)
			e.NewStatus = string(next.OverallStatus)
			e.Description = "case closed"
			e.Visibility = models.VisibilityCandidate
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, translate(err, "case", "close case")
	}
	s.timeline.Record(ctx, entries...)

	if closed.IsClosed {
		s.notify(ctx, ports.Notification{
			TenantID: tenantID,
			CaseID:   caseID,
			Kind:     ports.NotifyCaseClosed,
			Template: "case_closed",
			Data: map[string]string{
				"decision":    string(decision),
				"subject_ref": closed.SubjectRef,
			},
		})
	}
	s.logAudit(ctx, "case_closure_decided",
		"tenant_id", tenantID,
		"case_id", caseID,
		"decision", decision,
		"closed", closed.IsClosed,
		"actor_id", actor,
	)
	return &closed, nil
}

// EscalateCase escalates a case by hand. Each call raises the escalation
// level by one.
func (s *Service) EscalateCase(ctx context.Context, tenantID id.TenantID, caseID id.CaseID, actor id.UserID, reason string) (_ *models.Case, err error) {
	ctx, span := s.startSpan(ctx, "EscalateCase", attribute.String("case_id", caseID.String()))
	defer func() { endSpan(span, err) }()

	if err := requireActor(actor); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	var (
		escalated models.Case
		prev      models.CaseStatus
	)
	err = s.withCase(ctx, caseID, func(ctx context.Context) error {
		c, err := s.repo.FindCase(ctx, tenantID, caseID)
		if err != nil {
			return err
		}
		if !c.IsOpen() {
			return dErrors.New(dErrors.CodeImmutableCase, "case is closed and can no longer change")
		}
		prev = c.OverallStatus
		next := sla.Escalate(*c, now)
		if err := s.repo.UpdateCase(ctx, &next); err != nil {
			return err
		}
		escalated = next
		return nil
	})
	if err != nil {
		return nil, translate(err, "case", "escalate case")
	}

	s.timeline.Record(ctx, escalationEntry(&escalated, prev, actor, reason, now))
	s.notify(ctx, ports.Notification{
		TenantID: tenantID,
		CaseID:   caseID,
		Kind:     ports.NotifyEscalation,
		Template: "case_escalated",
		Data: map[string]string{
			"level":  strconv.Itoa(escalated.EscalationLevel),
			"reason": reason,
		},
	})
	return &escalated, nil
}

func escalationEntry(c *models.Case, prev models.CaseStatus, actor id.UserID, reason string, now time.Time) models.TimelineEntry {
	e := timeline.Entry(c, models.ActionCaseEscalated, actor, now)
	e.OldStatus = string(prev)
	e.NewStatus = string(c.OverallStatus)
	e.Description = "case escalated to level " + strconv.Itoa(c.EscalationLevel)
	if reason != "" {
		e.Description += ": " + reason
	}
	e.Visibility = models.VisibilityClient
	return e
}

// notify delivers a notification when a notifier is configured. Delivery
// failures are logged; callers have already committed their state change.
func (s *Service) notify(ctx context.Context, n ports.Notification) bool {
	if s.notifier == nil {
		return false
	}
	err := s.notifier.Notify(ctx, n)
	s.metrics.RecordNotification(string(n.Kind), err == nil)
	if err != nil {
		s.logger.WarnContext(ctx, "notification failed",
			"error", err,
			"kind", n.Kind,
			"tenant_id", n.TenantID,
			"case_id", n.CaseID,
		)
		return false
	}
	return true
}
