package sla

import (
	"slices"
	"time"

	"bgv/internal/verification/models"
	id "bgv/pkg/domain"
)

// Effects lists what applying a sweep step changed on a case.
type Effects struct {
	Evaluation     Evaluation
	StatusChanged  bool
	PreviousStatus models.SLAStatus
	NewlyBreached  bool
	Escalated      bool
	Reminders      []int
	OverdueChecks  []id.CheckID
}

// HasChanges reports whether the case snapshot needs persisting.
func (e Effects) HasChanges() bool {
	return e.StatusChanged || e.NewlyBreached || e.Escalated || len(e.Reminders) > 0 || len(e.OverdueChecks) > 0
}

// Sweep applies one sweep step to c and its checks at now. It marks the
// first breach, auto-escalates when configured, records due reminders as
// sent and flags overdue checks. Running it twice at the same instant yields
// no further effects. Closed cases are returned unchanged.
func Sweep(c models.Case, checks []models.Check, now time.Time) (models.Case, []models.Check, Effects) {
	next := c.Clone()
	nextChecks := make([]models.Check, len(checks))
	for i := range checks {
		nextChecks[i] = checks[i].Clone()
	}
	if !c.IsOpen() {
		return next, nextChecks, Effects{PreviousStatus: c.SLAStatus}
	}

	eval := Evaluate(c, now)
	eff := Effects{Evaluation: eval, PreviousStatus: c.SLAStatus}

	if next.SLAStatus != eval.Status {
		next.SLAStatus = eval.Status
		eff.StatusChanged = true
	}

	if eval.Status == models.SLABreached && !next.SLABreached {
		next.SLABreached = true
		at := now
		next.BreachedAt = &at
		eff.NewlyBreached = true
		if next.AutoEscalate {
			next = Escalate(next, now)
			eff.Escalated = true
		}
	}

	if len(eval.DueReminders) > 0 {
		eff.Reminders = eval.DueReminders
		next.RemindersSent = append(next.RemindersSent, eval.DueReminders...)
		slices.Sort(next.RemindersSent)
	}

	for i := range nextChecks {
		if nextChecks[i].IsOverdueAt(now) && !nextChecks[i].Overdue {
			nextChecks[i].Overdue = true
			nextChecks[i].UpdatedAt = now
			eff.OverdueChecks = append(eff.OverdueChecks, nextChecks[i].ID)
		}
	}

	if eff.HasChanges() {
		next.UpdatedAt = now
	}
	return next, nextChecks, eff
}

// Escalate moves a case to ESCALATED and bumps its escalation level.
func Escalate(c models.Case, now time.Time) models.Case {
	next := c.Clone()
	at := now
	next.OverallStatus = models.CaseEscalated
	next.EscalationLevel++
	next.EscalatedAt = &at
	next.UpdatedAt = now
	return next
}
