package models

import (
	"slices"
	"time"

	id "bgv/pkg/domain"
)

// Check is one verification category within a case.
type Check struct {
	ID       id.CheckID  `json:"id"`
	CaseID   id.CaseID   `json:"case_id"`
	TenantID id.TenantID `json:"tenant_id"`
	Type     CheckType   `json:"type"`
	Status   CheckStatus `json:"status"`
	// Outcome is the last completed verdict (VERIFIED or FAILED); it survives
	// the move to CLOSED.
	Outcome  CheckStatus `json:"outcome,omitempty"`

	Evidence   EvidenceSnapshot `json:"evidence"`
	Assignment Assignment       `json:"assignment"`
	Review     Review           `json:"review"`

	DueDate     *time.Time `json:"due_date,omitempty"`
	Overdue     bool       `json:"overdue"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	InternalRemarks string `json:"internal_remarks,omitempty"`
	HasDiscrepancy  bool   `json:"has_discrepancy"`

	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EvidenceSnapshot is the last evidence validation outcome stored on the check.
type EvidenceSnapshot struct {
	HasRequiredEvidence  bool           `json:"has_required_evidence"`
	Completeness         int            `json:"completeness"`
	MissingDocumentTypes []DocumentType `json:"missing_document_types"`
	ValidatedAt          *time.Time     `json:"validated_at,omitempty"`
}

// Assignment records who is expected to verify (maker) and approve (checker).
// VerifierID and ApproverID are never the same identity.
type Assignment struct {
	VerifierID id.UserID  `json:"verifier_id"`
	ApproverID id.UserID  `json:"approver_id"`
	AssignedBy id.UserID  `json:"assigned_by"`
	AssignedAt *time.Time `json:"assigned_at,omitempty"`
}

// IsOverdueAt reports whether the check's due date has passed while it is
// still blocking case closure.
func (c *Check) IsOverdueAt(now time.Time) bool {
	return c.DueDate != nil && now.After(*c.DueDate) && !c.Status.IsFinal()
}

// EffectiveStatus is the status used for case aggregation: a CLOSED check
// counts as its completed outcome.
func (c *Check) EffectiveStatus() CheckStatus {
	if c.Status == CheckClosed && c.Outcome != "" {
		return c.Outcome
	}
	return c.Status
}

// Clone returns a deep copy of the check.
func (c Check) Clone() Check {
	out := c
	out.Evidence.MissingDocumentTypes = slices.Clone(c.Evidence.MissingDocumentTypes)
	out.Evidence.ValidatedAt = cloneTime(c.Evidence.ValidatedAt)
	out.Assignment.AssignedAt = cloneTime(c.Assignment.AssignedAt)
	out.Review = c.Review.Clone()
	out.DueDate = cloneTime(c.DueDate)
	out.StartedAt = cloneTime(c.StartedAt)
	out.CompletedAt = cloneTime(c.CompletedAt)
	return out
}

// NewCheck builds a NOT_STARTED check for a freshly initiated case.
func NewCheck(caseID id.CaseID, tenantID id.TenantID, checkType CheckType, due *time.Time, now time.Time) Check {
	return Check{
		ID:        id.NewCheckID(),
		CaseID:    caseID,
		TenantID:  tenantID,
		Type:      checkType,
		Status:    CheckNotStarted,
		DueDate:   cloneTime(due),
		Version:   1,
		UpdatedAt: now,
	}
}
