package models

import (
	"maps"
	"slices"
	"time"

	id "bgv/pkg/domain"
)

// Case is one candidate verification engagement and the aggregate root for its
// checks, documents, risk score and timeline.
//
// Invariants:
//   - OverallStatus is derived from the checks and never set by callers
//   - A case cannot be closed while any check is non-final
//   - Once IsImmutable is set, no check under the case may change status
//   - Cases are never physically deleted
type Case struct {
	ID            id.CaseID   `json:"id"`
	TenantID      id.TenantID `json:"tenant_id"`
	SubjectRef    string      `json:"subject_ref"`
	Package       Package     `json:"package"`
	OverallStatus CaseStatus  `json:"overall_status"`
	InitiatedAt   time.Time   `json:"initiated_at"`
	InitiatedBy   id.UserID   `json:"initiated_by"`
	// Profile holds the candidate-declared fields extracted documents are
	// cross-checked against.
	Profile map[string]string `json:"profile,omitempty"`

	SLADays     int        `json:"sla_days"`
	Deadline    time.Time  `json:"deadline"`
	SLAStatus   SLAStatus  `json:"sla_status"`
	SLABreached bool       `json:"sla_breached"`
	BreachedAt  *time.Time `json:"breached_at,omitempty"`

	AutoEscalate    bool       `json:"auto_escalate"`
	EscalationLevel int        `json:"escalation_level"`
	EscalatedAt     *time.Time `json:"escalated_at,omitempty"`
	// RemindersSent holds the SLA percentage thresholds already notified.
	RemindersSent []int `json:"reminders_sent"`

	ClosureDecision ClosureDecision `json:"closure_decision,omitempty"`
	ClosureRemarks  string          `json:"closure_remarks,omitempty"`
	DecidedAt       *time.Time      `json:"decided_at,omitempty"`
	ClosedAt        *time.Time      `json:"closed_at,omitempty"`
	ClosedBy        id.UserID       `json:"closed_by"`
	IsClosed        bool            `json:"is_closed"`
	IsImmutable     bool            `json:"is_immutable"`

	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReminderSent reports whether the reminder for threshold has been recorded.
func (c *Case) ReminderSent(threshold int) bool {
	return slices.Contains(c.RemindersSent, threshold)
}

// IsOpen reports whether the case still accepts workflow activity.
func (c *Case) IsOpen() bool {
	return !c.IsClosed && !c.IsImmutable
}

// Clone returns a deep copy so pure functions can derive a new snapshot
// without aliasing the stored one.
func (c Case) Clone() Case {
	out := c
	out.RemindersSent = slices.Clone(c.RemindersSent)
	out.Profile = maps.Clone(c.Profile)
	out.BreachedAt = cloneTime(c.BreachedAt)
	out.EscalatedAt = cloneTime(c.EscalatedAt)
	out.DecidedAt = cloneTime(c.DecidedAt)
	out.ClosedAt = cloneTime(c.ClosedAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}
