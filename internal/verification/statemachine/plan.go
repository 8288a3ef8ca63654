package statemachine

import (
	"time"

	"bgv/internal/verification/evidence"
	"bgv/internal/verification/makerchecker"
	"bgv/internal/verification/models"
	id "bgv/pkg/domain"
	dErrors "bgv/pkg/domain-errors"
)

// Gates carries the caller-evaluated inputs a transition is checked against.
type Gates struct {
	// Evidence is the current validation of the check's documents. A nil
	// result blocks every evidence-gated target.
	Evidence *evidence.Result
	// CaseImmutable is the parent case's immutability flag.
	CaseImmutable bool
}

// Transition records an applied status change.
type Transition struct {
	CheckID id.CheckID         `json:"check_id"`
	From    models.CheckStatus `json:"from"`
	To      models.CheckStatus `json:"to"`
	ActorID id.UserID          `json:"actor_id"`
	At      time.Time          `json:"at"`
}

// Plan validates moving check to target and returns the updated snapshot.
// The input check is not modified. Entering UNDER_REVIEW clears the
// maker-checker review. Gates are consulted in order: table edge,
// evidence, maker-checker approval, case immutability.
func (m *Machine) Plan(check models.Check, target models.CheckStatus, actor id.UserID, now time.Time, g Gates) (models.Check, Transition, error) {
	from := check.Status

	if !m.CanTransition(from, target) {
		allowed := statusStrings(m.Allowed(from))
		return models.Check{}, Transition{}, dErrors.Newf(dErrors.CodeInvalidTransition,
			"check cannot move from %s to %s", from, target).
			WithDetail("from", string(from)).
			WithDetail("to", string(target)).
			WithDetail("allowed", allowed)
	}

	if RequiresEvidence(target) {
		if err := evidenceGate(target, g.Evidence); err != nil {
			return models.Check{}, Transition{}, err
		}
	}

	if RequiresApproval(target) {
		if err := makerchecker.RequireApproval(check, target); err != nil {
			return models.Check{}, Transition{}, err
		}
	}

	if g.CaseImmutable {
		return models.Check{}, Transition{}, dErrors.New(dErrors.CodeImmutableCase,
			"case is closed; check status cannot change").
			WithDetail("case_id", check.CaseID.String())
	}

	next := check.Clone()
	next.Status = target
	if target == models.CheckUnderReview {
		// Each entry into UNDER_REVIEW opens a new review cycle. Earlier
		// submissions and decisions remain on the timeline.
		next.Review = models.Review{}
	}
	if from == models.CheckNotStarted && next.StartedAt == nil {
		next.StartedAt = &now
	}
	if target == models.CheckVerified || target == models.CheckFailed {
		completed := now
		next.CompletedAt = &completed
		next.Outcome = target
	}
	if target == models.CheckDiscrepancy {
		next.HasDiscrepancy = true
	}
	if g.Evidence != nil {
		next.Evidence = g.Evidence.Snapshot(now)
	}
	if next.IsOverdueAt(now) {
		next.Overdue = true
	} else if target.IsFinal() {
		next.Overdue = false
	}
	next.UpdatedAt = now

	return next, Transition{
		CheckID: check.ID,
		From:    from,
		To:      target,
		ActorID: actor,
		At:      now,
	}, nil
}

func evidenceGate(target models.CheckStatus, res *evidence.Result) error {
	if res == nil {
		return dErrors.Newf(dErrors.CodeEvidenceMissing, "moving to %s requires validated evidence", target).
			WithDetail("completeness", 0)
	}
	if res.HasRequiredEvidence {
		return nil
	}
	missing := make([]string, len(res.MissingDocumentTypes))
	for i, t := range res.MissingDocumentTypes {
		missing[i] = string(t)
	}
	return dErrors.Newf(dErrors.CodeEvidenceMissing, "moving to %s requires sufficient evidence", target).
		WithDetail("missing_document_types", missing).
		WithDetail("completeness", res.EvidenceCompleteness).
		WithDetail("errors", res.ErrorMessages())
}
