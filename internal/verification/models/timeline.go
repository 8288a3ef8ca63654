package models

import (
	"strings"
	"time"

	id "bgv/pkg/domain"
	dErrors "bgv/pkg/domain-errors"
)

// Visibility scopes who may see a timeline entry.
type Visibility string

const (
	VisibilityInternal  Visibility = "INTERNAL"
	VisibilityClient    Visibility = "CLIENT"
	VisibilityCandidate Visibility = "CANDIDATE"
)

var visibilityRank = map[Visibility]int{
	VisibilityCandidate: 0,
	VisibilityClient:    1,
	VisibilityInternal:  2,
}

// VisibleTo reports whether an entry with visibility v may be shown to a viewer
// with the given audience. Internal viewers see everything, clients see client
// and candidate entries, candidates see only candidate entries.
func (v Visibility) VisibleTo(viewer Visibility) bool {
	entry, ok := visibilityRank[v]
	if !ok {
		return viewer == VisibilityInternal
	}
	return visibilityRank[viewer] >= entry
}

func ParseVisibility(s string) (Visibility, error) {
	v := Visibility(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := visibilityRank[v]; !ok {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown visibility %q", s)
	}
	return v, nil
}

// TimelineAction names what happened.
type TimelineAction string

const (
	ActionCaseInitiated         TimelineAction = "CASE_INITIATED"
	ActionStatusChanged         TimelineAction = "STATUS_CHANGED"
	ActionCheckAssigned         TimelineAction = "CHECK_ASSIGNED"
	ActionDocumentUploaded      TimelineAction = "DOCUMENT_UPLOADED"
	ActionDocumentReviewed      TimelineAction = "DOCUMENT_REVIEWED"
	ActionDocumentDeleted       TimelineAction = "DOCUMENT_DELETED"
	ActionIntegrityMismatch     TimelineAction = "INTEGRITY_MISMATCH"
	ActionVerificationSubmitted TimelineAction = "VERIFICATION_SUBMITTED"
	ActionApprovalDecided       TimelineAction = "APPROVAL_DECIDED"
	ActionDiscrepancyAdded      TimelineAction = "DISCREPANCY_ADDED"
	ActionRedFlagAdded          TimelineAction = "RED_FLAG_ADDED"
	ActionGreenFlagAdded        TimelineAction = "GREEN_FLAG_ADDED"
	ActionRiskItemResolved      TimelineAction = "RISK_ITEM_RESOLVED"
	ActionCaseStatusChanged     TimelineAction = "CASE_STATUS_CHANGED"
	ActionClosureDecision       TimelineAction = "CLOSURE_DECISION"
	ActionCaseClosed            TimelineAction = "CASE_CLOSED"
	ActionSLABreached           TimelineAction = "SLA_BREACHED"
	ActionCaseEscalated         TimelineAction = "CASE_ESCALATED"
	ActionCheckOverdue          TimelineAction = "CHECK_OVERDUE"
	ActionReminderSent          TimelineAction = "REMINDER_SENT"
	ActionReminderFailed        TimelineAction = "REMINDER_FAILED"
)

// TimelineEntry is an immutable record of one state-affecting event.
// Entries are only ever appended; they are never updated or deleted.
type TimelineEntry struct {
	ID          id.EntryID     `json:"id"`
	TenantID    id.TenantID    `json:"tenant_id"`
	CaseID      id.CaseID      `json:"case_id"`
	CheckID     id.CheckID     `json:"check_id"`
	Action      TimelineAction `json:"action"`
	ActorID     id.UserID      `json:"actor_id"`
	OldStatus   string         `json:"old_status,omitempty"`
	NewStatus   string         `json:"new_status,omitempty"`
	Description string         `json:"description"`
	Visibility  Visibility     `json:"visibility"`
	CreatedAt   time.Time      `json:"created_at"`
}

// SystemActor identifies entries written by background tasks (SLA sweep,
// hashing worker) rather than a person.
var SystemActor = id.UserID{}
