package service

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"bgv/internal/verification/makerchecker"
	"bgv/internal/verification/models"
	"bgv/internal/verification/statemachine"
	"bgv/internal/verification/timeline"
	id "bgv/pkg/domain"
	dErrors "bgv/pkg/domain-errors"
	"bgv/pkg/requestcontext"
)

// checkMutation derives the next snapshot of a check. It runs under the case
// lock with freshly loaded state and must not write.
type checkMutation func(ctx context.Context, c *models.Case, ch *models.Check, now time.Time) (models.Check, []models.TimelineEntry, error)

// mutateCheck applies mutate to a check, stores the result, recomputes the
// case status and appends the resulting timeline entries once committed.
func (s *Service) mutateCheck(ctx context.Context, tenantID id.TenantID, checkID id.CheckID, actor id.UserID, action string, mutate checkMutation) (*models.Check, error) {
	found, err := s.repo.FindCheck(ctx, tenantID, checkID)
	if err != nil {
		return nil, translate(err, "check", "load check")
	}
	now := requestcontext.Now(ctx)

	var (
		out     models.Check
		entries []models.TimelineEntry
	)
	err = s.withCase(ctx, found.CaseID, func(ctx context.Context) error {
		ch, c, err := s.loadCheck(ctx, tenantID, checkID)
		if err != nil {
			return err
		}
		next, recorded, err := mutate(ctx, c, ch, now)
		if err != nil {
			return err
		}
		if err := s.repo.UpdateCheck(ctx, &next); err != nil {
			return err
		}
		entries = append(entries, recorded...)
		caseEntry, err := s.refreshCaseStatus(ctx, c, actor, now)
		if err != nil {
			return err
		}
		if caseEntry != nil {
			entries = append(entries, *caseEntry)
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, translate(err, "check", action)
	}
	s.timeline.Record(ctx, entries...)
	return &out, nil
}

// RequestTransition moves a check to target after consulting the transition
// table, the evidence gate, the approval gate and case immutability.
func (s *Service) RequestTransition(ctx context.Context, tenantID id.TenantID, checkID id.CheckID, target models.CheckStatus, actor id.UserID) (_ *models.Check, err error) {
	ctx, span := s.startSpan(ctx, "RequestTransition",
		attribute.String("check_id", checkID.String()),
		attribute.String("target", string(target)))
	defer func() { endSpan(span, err) }()
	defer s.metrics.ObserveOperation("request_transition", time.Now())

	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !target.IsDefined() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown check status %q", target)
	}

	var from models.CheckStatus
	out, err := s.mutateCheck(ctx, tenantID, checkID, actor, "transition check",
		func(ctx context.Context, c *models.Case, ch *models.Check, now time.Time) (models.Check, []models.TimelineEntry, error) {
			from = ch.Status
			res, err := s.validateEvidence(ctx, ch, now)
			if err != nil {
				return models.Check{}, nil, err
			}
			next, tr, err := s.machine.Plan(*ch, target, actor, now, statemachine.Gates{
				Evidence:      res,
				CaseImmutable: c.IsImmutable,
			})
			if err != nil {
				return models.Check{}, nil, err
			}
			return next, []models.TimelineEntry{timeline.StatusChange(c, ch.ID, tr.From, tr.To, actor, now)}, nil
		})
	if err != nil {
		if from != "" {
			s.metrics.RecordTransition(string(from), string(target), "rejected")
		}
		return nil, err
	}
	s.metrics.RecordTransition(string(from), string(target), "applied")
	s.logAudit(ctx, "check_transitioned",
		"tenant_id", tenantID,
		"check_id", checkID,
		"from", from,
		"to", target,
		"actor_id", actor,
	)
	return out, nil
}

// Submission is a maker's verification of a check.
type Submission struct {
	Proposed models.CheckStatus
	Notes    string
	// InternalRemarks are staff-only observations kept on the check. A
	// non-empty remark marks an all-verified case VERIFIED_WITH_DISCREPANCIES.
	InternalRemarks string
	Actor           id.UserID
}

// SubmitForApproval records a maker's verification proposing a verdict for
// the check. Submitting again after a rejection or send-back starts a new
// review; an approved review is final until the check re-enters UNDER_REVIEW.
func (s *Service) SubmitForApproval(ctx context.Context, tenantID id.TenantID, checkID id.CheckID, sub Submission) (_ *models.Check, err error) {
	ctx, span := s.startSpan(ctx, "SubmitForApproval",
		attribute.String("check_id", checkID.String()),
		attribute.String("proposed", string(sub.Proposed)))
	defer func() { endSpan(span, err) }()

	actor := sub.Actor
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !makerchecker.ProposableStatuses[sub.Proposed] {
		return nil, dErrors.Newf(dErrors.CodeValidation, "%s cannot be proposed for approval", sub.Proposed)
	}
	remarks := strings.TrimSpace(sub.InternalRemarks)

	return s.mutateCheck(ctx, tenantID, checkID, actor, "submit verification",
		func(_ context.Context, c *models.Case, ch *models.Check, now time.Time) (models.Check, []models.TimelineEntry, error) {
			if err := makerchecker.ValidateCompliance(*ch, actor, makerchecker.ActionVerify); err != nil {
				return models.Check{}, nil, err
			}
			if ch.Status != models.CheckUnderReview {
				return models.Check{}, nil, dErrors.Newf(dErrors.CodeInvalidTransition,
					"verification can only be submitted while the check is %s", models.CheckUnderReview).
					WithDetail("status", string(ch.Status))
			}
			if ch.Review.IsApproved() {
				return models.Check{}, nil, dErrors.New(dErrors.CodeAlreadyApproved, "check verification is already approved").
					WithDetail("check_id", ch.ID.String())
			}

			next := ch.Clone()
			verifiedAt := now
			next.Review = models.Review{
				MakerID:           actor,
				ProposedStatus:    sub.Proposed,
				VerificationNotes: strings.TrimSpace(sub.Notes),
				VerifiedAt:        &verifiedAt,
			}
			if remarks != "" {
				next.InternalRemarks = remarks
			}
			next.UpdatedAt = now

			e := timeline.Entry(c, models.ActionVerificationSubmitted, actor, now)
			e.CheckID = ch.ID
			e.NewStatus = string(sub.Proposed)
			e.Description = "verification submitted proposing " + string(sub.Proposed)
			return next, []models.TimelineEntry{e}, nil
		})
}

// DecideApproval records a checker's decision on the current verification.
// The checker must differ from the maker.
func (s *Service) DecideApproval(ctx context.Context, tenantID id.TenantID, checkID id.CheckID, decision models.ReviewDecision, actor id.UserID, comments string) (_ *models.Check, err error) {
	ctx, span := s.startSpan(ctx, "DecideApproval",
		attribute.String("check_id", checkID.String()),
		attribute.String("decision", string(decision)))
	defer func() { endSpan(span, err) }()

	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if _, err := models.ParseReviewDecision(string(decision)); err != nil {
		return nil, err
	}
	if decision != models.ReviewApproved && comments == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "comments are required when rejecting or sending back")
	}

	out, err := s.mutateCheck(ctx, tenantID, checkID, actor, "decide approval",
		func(_ context.Context, c *models.Case, ch *models.Check, now time.Time) (models.Check, []models.TimelineEntry, error) {
			if err := makerchecker.ValidateCompliance(*ch, actor, makerchecker.ActionFor(decision)); err != nil {
				return models.Check{}, nil, err
			}
			next := ch.Clone()
			decidedAt := now
			next.Review.CheckerID = actor
			next.Review.Decision = decision
			next.Review.Comments = comments
			next.Review.DecidedAt = &decidedAt
			next.UpdatedAt = now

			e := timeline.Entry(c, models.ActionApprovalDecided, actor, now)
			e.CheckID = ch.ID
			e.NewStatus = string(decision)
			e.Description = "verification " + string(decision)
			if comments != "" {
				e.Description += ": " + comments
			}
			return next, []models.TimelineEntry{e}, nil
		})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "approval_decided",
		"tenant_id", tenantID,
		"check_id", checkID,
		"decision", decision,
		"maker_id", out.Review.MakerID,
		"checker_id", actor,
	)
	return out, nil
}

// AssignCheck names the verifier and approver of a check. A NOT_STARTED
// check moves to ASSIGNED.
func (s *Service) AssignCheck(ctx context.Context, tenantID id.TenantID, checkID id.CheckID, verifier, approver, actor id.UserID) (*models.Check, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := makerchecker.ValidateAssignment(verifier, approver); err != nil {
		return nil, err
	}

	return s.mutateCheck(ctx, tenantID, checkID, actor, "assign check",
		func(_ context.Context, c *models.Case, ch *models.Check, now time.Time) (models.Check, []models.TimelineEntry, error) {
			if ch.Status.IsFinal() {
				return models.Check{}, nil, dErrors.Newf(dErrors.CodeInvalidTransition, "check is %s and can no longer be assigned", ch.Status)
			}
			next := ch.Clone()
			var entries []models.TimelineEntry
			if ch.Status == models.CheckNotStarted {
				planned, tr, err := s.machine.Plan(*ch, models.CheckAssigned, actor, now, statemachine.Gates{CaseImmutable: c.IsImmutable})
				if err != nil {
					return models.Check{}, nil, err
				}
				next = planned
				entries = append(entries, timeline.StatusChange(c, ch.ID, tr.From, tr.To, actor, now))
			}
			assignedAt := now
			next.Assignment = models.Assignment{
				VerifierID: verifier,
				ApproverID: approver,
				AssignedBy: actor,
				AssignedAt: &assignedAt,
			}
			next.UpdatedAt = now

			e := timeline.Entry(c, models.ActionCheckAssigned, actor, now)
			e.CheckID = ch.ID
			e.Description = "check assigned to verifier " + verifier.String() + " and approver " + approver.String()
			return next, append([]models.TimelineEntry{e}, entries...), nil
		})
}
