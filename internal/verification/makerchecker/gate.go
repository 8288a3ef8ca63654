// Package makerchecker enforces separation of duties on check verification:
// the user who verifies a check is never the user who approves it.
package makerchecker

import (
	"bgv/internal/verification/models"
	id "bgv/pkg/domain"
	dErrors "bgv/pkg/domain-errors"
)

// Action is the role-bearing action an actor attempts on a check.
type Action string

const (
	// ActionVerify is the maker submitting a verification.
	ActionVerify Action = "VERIFY"
	// ActionApprove is the checker approving the maker's verification.
	ActionApprove Action = "APPROVE"
	// ActionReject is the checker rejecting or sending back the verification.
	ActionReject Action = "REJECT"
)

// ActionFor maps a checker decision to the action it requires.
func ActionFor(decision models.ReviewDecision) Action {
	if decision == models.ReviewApproved {
		return ActionApprove
	}
	return ActionReject
}

// ValidateCompliance decides whether actor may perform action on check.
// VERIFY is always permitted. Checker actions need a completed verification
// from a different identity and an undecided review.
func ValidateCompliance(check models.Check, actor id.UserID, action Action) error {
	if actor.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "actor is required")
	}
	switch action {
	case ActionVerify:
		return nil
	case ActionApprove, ActionReject:
		return validateChecker(check, actor)
	default:
		return dErrors.Newf(dErrors.CodeBadRequest, "unknown maker-checker action %q", action)
	}
}

func validateChecker(check models.Check, actor id.UserID) error {
	r := check.Review
	if !r.IsVerificationComplete() {
		return dErrors.New(dErrors.CodeApprovalRequired, "check has no completed verification to review").
			WithDetail("check_id", check.ID.String())
	}
	if r.MakerID == actor {
		return dErrors.New(dErrors.CodeSelfApproval, "verifier cannot approve their own verification").
			WithDetail("check_id", check.ID.String())
	}
	if r.IsApproved() {
		return dErrors.New(dErrors.CodeAlreadyApproved, "check verification is already approved").
			WithDetail("check_id", check.ID.String())
	}
	if r.IsDecided() {
		// REJECTED and SENT_BACK require a fresh submission before another decision.
		return dErrors.Newf(dErrors.CodeApprovalRequired, "verification was %s; resubmit before deciding again", r.Decision).
			WithDetail("check_id", check.ID.String())
	}
	return nil
}

// RequireApproval is the gate consulted before entering an approval-gated
// status. VERIFIED additionally requires that the approved proposal was VERIFIED.
func RequireApproval(check models.Check, target models.CheckStatus) error {
	r := check.Review
	if !r.IsVerificationComplete() {
		return dErrors.Newf(dErrors.CodeApprovalRequired, "moving to %s requires a maker verification and checker approval", target).
			WithDetail("check_id", check.ID.String())
	}
	if !r.CheckerID.IsNil() && r.CheckerID == r.MakerID {
		return dErrors.New(dErrors.CodeSelfApproval, "verification was approved by its own maker").
			WithDetail("check_id", check.ID.String())
	}
	if !r.IsApproved() {
		return dErrors.Newf(dErrors.CodeApprovalRequired, "moving to %s requires checker approval", target).
			WithDetail("check_id", check.ID.String())
	}
	if target == models.CheckVerified && r.ProposedStatus != models.CheckVerified {
		return dErrors.Newf(dErrors.CodeApprovalRequired, "approved verification proposed %s, not %s", r.ProposedStatus, target).
			WithDetail("check_id", check.ID.String())
	}
	return nil
}

// ValidateAssignment rejects assignments where maker and checker coincide.
func ValidateAssignment(verifier, approver id.UserID) error {
	if verifier.IsNil() || approver.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "verifier and approver are required")
	}
	if verifier == approver {
		return dErrors.New(dErrors.CodeSelfApproval, "verifier and approver must be different users")
	}
	return nil
}

// ProposableStatuses are the verdicts a maker may submit for approval.
var ProposableStatuses = map[models.CheckStatus]bool{
	models.CheckVerified:    true,
	models.CheckFailed:      true,
	models.CheckDiscrepancy: true,
}
