package models

import (
	"strings"

	dErrors "bgv/pkg/domain-errors"
)

// CheckStatus is the finite state of a single verification check.
type CheckStatus string

const (
	CheckNotStarted        CheckStatus = "NOT_STARTED"
	CheckAssigned          CheckStatus = "ASSIGNED"
	CheckDocumentsPending  CheckStatus = "DOCUMENTS_PENDING"
	CheckDocumentsUploaded CheckStatus = "DOCUMENTS_UPLOADED"
	CheckInProgress        CheckStatus = "IN_PROGRESS"
	CheckAwaitingResponse  CheckStatus = "AWAITING_RESPONSE"
	CheckUnderVerification CheckStatus = "UNDER_VERIFICATION"
	CheckUnderReview       CheckStatus = "UNDER_REVIEW"
	CheckDiscrepancy       CheckStatus = "DISCREPANCY"
	CheckVerified          CheckStatus = "VERIFIED"
	CheckFailed            CheckStatus = "FAILED"
	CheckEscalated         CheckStatus = "ESCALATED"
	CheckClosed            CheckStatus = "CLOSED"
)

// AllCheckStatuses lists every defined check status in workflow order.
var AllCheckStatuses = []CheckStatus{
	CheckNotStarted,
	CheckAssigned,
	CheckDocumentsPending,
	CheckDocumentsUploaded,
	CheckInProgress,
	CheckAwaitingResponse,
	CheckUnderVerification,
	CheckUnderReview,
	CheckDiscrepancy,
	CheckVerified,
	CheckFailed,
	CheckEscalated,
	CheckClosed,
}

func (s CheckStatus) String() string { return string(s) }

// IsDefined reports whether s is one of AllCheckStatuses.
func (s CheckStatus) IsDefined() bool {
	for _, known := range AllCheckStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsFinal reports whether a check in this status no longer blocks case closure.
func (s CheckStatus) IsFinal() bool {
	return s == CheckVerified || s == CheckFailed || s == CheckClosed
}

func ParseCheckStatus(s string) (CheckStatus, error) {
	status := CheckStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !status.IsDefined() {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown check status %q", s)
	}
	return status, nil
}

// CaseStatus is the overall status of a case, derived from its checks.
type CaseStatus string

const (
	CasePending                   CaseStatus = "PENDING"
	CaseInProgress                CaseStatus = "IN_PROGRESS"
	CaseVerified                  CaseStatus = "VERIFIED"
	CaseVerifiedWithDiscrepancies CaseStatus = "VERIFIED_WITH_DISCREPANCIES"
	CaseFailed                    CaseStatus = "FAILED"
	CaseEscalated                 CaseStatus = "ESCALATED"
	CaseClosed                    CaseStatus = "CLOSED"
)

func (s CaseStatus) String() string { return string(s) }

// IsSettled reports whether the derived status is a completed outcome.
func (s CaseStatus) IsSettled() bool {
	return s == CaseVerified || s == CaseVerifiedWithDiscrepancies || s == CaseFailed
}

// ClosureDecision is the final decision recorded when closing a case.
type ClosureDecision string

const (
	DecisionApproved        ClosureDecision = "APPROVED"
	DecisionRejected        ClosureDecision = "REJECTED"
	DecisionRecheckRequired ClosureDecision = "RECHECK_REQUIRED"
)

func ParseClosureDecision(s string) (ClosureDecision, error) {
	d := ClosureDecision(strings.ToUpper(strings.TrimSpace(s)))
	switch d {
	case DecisionApproved, DecisionRejected, DecisionRecheckRequired:
		return d, nil
	}
	return "", dErrors.Newf(dErrors.CodeValidation, "unknown closure decision %q", s)
}

// ClosesCase reports whether recording this decision closes the case.
func (d ClosureDecision) ClosesCase() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// SLAStatus classifies how much of the SLA budget a case has consumed.
type SLAStatus string

const (
	SLAOnTrack  SLAStatus = "ON_TRACK"
	SLAWarning  SLAStatus = "WARNING"
	SLACritical SLAStatus = "CRITICAL"
	SLABreached SLAStatus = "BREACHED"
)
