// Package aggregate derives a case's overall status from its checks and
// applies the closure rules.
package aggregate

import (
	"fmt"
	"time"

	"bgv/internal/verification/models"
	id "bgv/pkg/domain"
	dErrors "bgv/pkg/domain-errors"
)

// DeriveStatus computes the overall case status from check statuses, by
// priority: any FAILED, all VERIFIED (with or without discrepancies), all
// NOT_STARTED, otherwise IN_PROGRESS. CLOSED checks count as their outcome.
func DeriveStatus(checks []models.Check) models.CaseStatus {
	if len(checks) == 0 {
		return models.CasePending
	}

	allVerified := true
	allNotStarted := true
	flagged := false
	for i := range checks {
		c := &checks[i]
		st := c.EffectiveStatus()
		if st == models.CheckFailed {
			return models.CaseFailed
		}
		if st != models.CheckVerified {
			allVerified = false
		}
		if st != models.CheckNotStarted {
			allNotStarted = false
		}
		if c.HasDiscrepancy || c.InternalRemarks != "" {
			flagged = true
		}
	}

	switch {
	case allVerified && flagged:
		return models.CaseVerifiedWithDiscrepancies
	case allVerified:
		return models.CaseVerified
	case allNotStarted:
		return models.CasePending
	default:
		return models.CaseInProgress
	}
}

// Derive computes the case status from its checks and its escalation
// record. A case with a non-zero escalation level reports ESCALATED until
// its checks settle into a completed outcome.
func Derive(c models.Case, checks []models.Check) models.CaseStatus {
	derived := DeriveStatus(checks)
	if c.EscalationLevel > 0 && !derived.IsSettled() {
		return models.CaseEscalated
	}
	return derived
}

// Recompute refreshes c.OverallStatus from Derive. The previous overall
// status is never an input.
func Recompute(c models.Case, checks []models.Check, now time.Time) (models.Case, bool) {
	derived := Derive(c, checks)
	if c.OverallStatus == derived {
		return c, false
	}
	next := c.Clone()
	next.OverallStatus = derived
	next.UpdatedAt = now
	return next, true
}

// Closure is the input of Close.
type Closure struct {
	Decision models.ClosureDecision
	Remarks  string
	Actor    id.UserID
}

// Close records a closure decision. Every check must be final. APPROVED and
// REJECTED close the case and make it immutable; RECHECK_REQUIRED records the
// decision and leaves the case open.
func Close(c models.Case, checks []models.Check, in Closure, now time.Time) (models.Case, error) {
	if c.IsClosed {
		return models.Case{}, dErrors.New(dErrors.CodeAlreadyClosed, "case is already closed").
			WithDetail("case_id", c.ID.String())
	}
	switch in.Decision {
	case models.DecisionApproved, models.DecisionRejected, models.DecisionRecheckRequired:
	default:
		return models.Case{}, dErrors.Newf(dErrors.CodeValidation, "unknown closure decision %q", in.Decision)
	}
	if in.Actor.IsNil() {
		return models.Case{}, dErrors.New(dErrors.CodeUnauthorized, "actor is required")
	}

	if pending := IncompleteChecks(checks); len(pending) > 0 {
		ids := make([]string, len(pending))
		summary := make([]string, len(pending))
		for i, ch := range pending {
			ids[i] = ch.ID.String()
			summary[i] = fmt.Sprintf("%s:%s", ch.Type, ch.Status)
		}
		return models.Case{}, dErrors.Newf(dErrors.CodeIncompleteChecks,
			"%d check(s) are not complete", len(pending)).
			WithDetail("check_ids", ids).
			WithDetail("checks", summary)
	}

	next := c.Clone()
	at := now
	next.ClosureDecision = in.Decision
	next.ClosureRemarks = in.Remarks
	next.DecidedAt = &at
	next.UpdatedAt = now
	if in.Decision.ClosesCase() {
		closed := now
		next.OverallStatus = models.CaseClosed
		next.IsClosed = true
		next.IsImmutable = true
		next.ClosedAt = &closed
		next.ClosedBy = in.Actor
	}
	return next, nil
}

// IncompleteChecks returns the checks that block closure.
func IncompleteChecks(checks []models.Check) []models.Check {
	var out []models.Check
	for _, ch := range checks {
		if !ch.Status.IsFinal() {
			out = append(out, ch)
		}
	}
	return out
}
