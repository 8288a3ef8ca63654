package service

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"bgv/internal/verification/models"
	"bgv/internal/verification/ports"
	"bgv/internal/verification/sla"
	"bgv/internal/verification/timeline"
	id "bgv/pkg/domain"
	dErrors "bgv/pkg/domain-errors"
	"bgv/pkg/requestcontext"
)

// SweepSummary counts what one SLA sweep did.
type SweepSummary struct {
	Checked   int `json:"checked"`
	Breached  int `json:"breached"`
	Escalated int `json:"escalated"`
	Reminders int `json:"reminders"`
	Overdue   int `json:"overdue"`
	Failed    int `json:"failed"`
}

func (s *SweepSummary) add(o SweepSummary) {
	s.Checked += o.Checked
	s.Breached += o.Breached
	s.Escalated += o.Escalated
	s.Reminders += o.Reminders
	s.Overdue += o.Overdue
	s.Failed += o.Failed
}

// SweepSLAs evaluates every open case of a tenant against its SLA. A first
// breach marks the case breached and escalates it when configured; due
// reminders are sent once per threshold; overdue checks are flagged. A
// failing case is logged and counted and the sweep moves on. Running the
// sweep again at the same instant has no further effect.
func (s *Service) SweepSLAs(ctx context.Context, tenantID id.TenantID) (summary SweepSummary, err error) {
	ctx, span := s.startSpan(ctx, "SweepSLAs", attribute.String("tenant_id", tenantID.String()))
	defer func() {
		span.SetAttributes(
			attribute.Int("checked", summary.Checked),
			attribute.Int("breached", summary.Breached),
			attribute.Int("failed", summary.Failed),
		)
		endSpan(span, err)
	}()
	defer s.metrics.ObserveSweep(time.Now())

	cases, err := s.repo.ListOpenCases(ctx, tenantID)
	if err != nil {
		return summary, translate(err, "cases", "list open cases")
	}
	now := requestcontext.Now(ctx)

	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			return summary, dErrors.Wrap(err, dErrors.CodeTimeout, "sla sweep interrupted")
		}
		summary.Checked++
		eff, err := s.sweepCase(ctx, tenantID, c.ID, now)
		if err != nil {
			summary.Failed++
			s.metrics.RecordSweepCase("failed")
			s.logger.ErrorContext(ctx, "sla sweep failed for case",
				"error", err,
				"tenant_id", tenantID,
				"case_id", c.ID,
			)
			continue
		}
		if eff.NewlyBreached {
			summary.Breached++
		}
		if eff.Escalated {
			summary.Escalated++
		}
		summary.Reminders += len(eff.Reminders)
		summary.Overdue += len(eff.OverdueChecks)
		if eff.HasChanges() {
			s.metrics.RecordSweepCase("updated")
		} else {
			s.metrics.RecordSweepCase("unchanged")
		}
	}

	if summary.Breached > 0 || summary.Failed > 0 {
		s.logger.InfoContext(ctx, "sla sweep completed",
			"tenant_id", tenantID,
			"checked", summary.Checked,
			"breached", summary.Breached,
			"escalated", summary.Escalated,
			"reminders", summary.Reminders,
			"failed", summary.Failed,
		)
	}
	return summary, nil
}

// sweepCase applies one sweep step to a case under its lock, then sends the
// notifications the step calls for.
func (s *Service) sweepCase(ctx context.Context, tenantID id.TenantID, caseID id.CaseID, now time.Time) (sla.Effects, error) {
	var (
		eff     sla.Effects
		swept   models.Case
		prev    models.CaseStatus
		entries []models.TimelineEntry
	)
	err := s.withCase(ctx, caseID, func(ctx context.Context) error {
		c, err := s.repo.FindCase(ctx, tenantID, caseID)
		if err != nil {
			return err
		}
		if !c.IsOpen() {
			return nil
		}
		checks, err := s.repo.ListChecks(ctx, tenantID, caseID)
		if err != nil {
			return err
		}
		prev = c.OverallStatus
		next, nextChecks, effects := sla.Sweep(*c, checks, now)
		eff = effects
		if !eff.HasChanges() {
			return nil
		}
		if err := s.repo.UpdateCase(ctx, &next); err != nil {
			return err
		}
		for i := range nextChecks {
			if !slices.Contains(eff.OverdueChecks, nextChecks[i].ID) {
				continue
			}
			if err := s.repo.UpdateCheck(ctx, &nextChecks[i]); err != nil {
				return err
			}
			e := timeline.Entry(&next, models.ActionCheckOverdue, models.SystemActor, now)
			e.CheckID = nextChecks[i].ID
			e.Description = string(nextChecks[i].Type) + " check is past its due date"
			entries = append(entries, e)
		}
		if eff.NewlyBreached {
			e := timeline.Entry(&next, models.ActionSLABreached, models.SystemActor, now)
			e.OldStatus = string(eff.PreviousStatus)
			e.NewStatus = string(models.SLABreached)
			e.Description = "SLA deadline " + next.Deadline.Format(time.RFC3339) + " breached"
			e.Visibility = models.VisibilityClient
			entries = append(entries, e)
		}
		if eff.Escalated {
			entries = append(entries, escalationEntry(&next, prev, models.SystemActor, "SLA breached", now))
		}
		swept = next
		return nil
	})
	if err != nil {
		return sla.Effects{}, translate(err, "case", "sweep case")
	}
	s.timeline.Record(ctx, entries...)
	if !eff.HasChanges() {
		return eff, nil
	}

	for _, threshold := range eff.Reminders {
		s.sendReminder(ctx, &swept, threshold, eff.Evaluation, models.SystemActor, now)
	}
	if eff.NewlyBreached {
		s.notify(ctx, ports.Notification{
			TenantID: tenantID,
			CaseID:   caseID,
			Kind:     ports.NotifySLABreach,
			Template: "sla_breach",
			Data: map[string]string{
				"subject_ref": swept.SubjectRef,
				"deadline":    swept.Deadline.Format(time.RFC3339),
			},
		})
	}
	if eff.Escalated {
		s.notify(ctx, ports.Notification{
			TenantID: tenantID,
			CaseID:   caseID,
			Kind:     ports.NotifyEscalation,
			Template: "case_escalated",
			Data: map[string]string{
				"level":  strconv.Itoa(swept.EscalationLevel),
				"reason": "SLA breached",
			},
		})
	}
	return eff, nil
}

// sendReminder delivers one SLA reminder and records the outcome on the
// timeline. A failed delivery is recorded, not retried.
func (s *Service) sendReminder(ctx context.Context, c *models.Case, threshold int, eval sla.Evaluation, actor id.UserID, now time.Time) bool {
	ok := s.notify(ctx, ports.Notification{
		TenantID: c.TenantID,
		CaseID:   c.ID,
		Kind:     ports.NotifySLAReminder,
		Template: "sla_reminder",
		Data: map[string]string{
			"subject_ref":     c.SubjectRef,
			"threshold":       strconv.Itoa(threshold),
			"percent_elapsed": strconv.FormatFloat(eval.PercentElapsed, 'f', 1, 64),
			"deadline":        c.Deadline.Format(time.RFC3339),
		},
	})
	action := models.ActionReminderSent
	desc := "SLA reminder sent at " + strconv.Itoa(threshold) + "% elapsed"
	if !ok {
		action = models.ActionReminderFailed
		desc = "SLA reminder at " + strconv.Itoa(threshold) + "% could not be delivered"
	}
	e := timeline.Entry(c, action, actor, now)
	e.Description = desc
	s.timeline.Record(ctx, e)
	return ok
}

// SendReminders sends an SLA reminder for a case on demand, independent of
// the automatic thresholds.
func (s *Service) SendReminders(ctx context.Context, tenantID id.TenantID, caseID id.CaseID, actor id.UserID) (bool, error) {
	if err := requireActor(actor); err != nil {
		return false, err
	}
	if s.notifier == nil {
		return false, dErrors.New(dErrors.CodeMisconfiguredWorkflow, "no notifier is configured")
	}
	c, err := s.repo.FindCase(ctx, tenantID, caseID)
	if err != nil {
		return false, translate(err, "case", "load case")
	}
	if !c.IsOpen() {
		return false, dErrors.New(dErrors.CodeImmutableCase, "case is closed")
	}
	now := requestcontext.Now(ctx)
	eval := sla.Evaluate(*c, now)
	return s.sendReminder(ctx, c, int(eval.PercentElapsed), eval, actor, now), nil
}

// SweepAll sweeps every active tenant of the directory, a bounded number at
// a time. One tenant failing does not stop the others.
func (s *Service) SweepAll(ctx context.Context) (SweepSummary, error) {
	if s.tenants == nil {
		return SweepSummary{}, dErrors.New(dErrors.CodeMisconfiguredWorkflow, "no tenant directory is configured")
	}
	tenants, err := s.tenants.ActiveTenants(ctx)
	if err != nil {
		return SweepSummary{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list active tenants")
	}

	var (
		mu    sync.Mutex
		total SweepSummary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.sweepConcurrency)
	for _, tenantID := range tenants {
		g.Go(func() error {
			summary, err := s.SweepSLAs(gctx, tenantID)
			mu.Lock()
			total.add(summary)
			mu.Unlock()
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				s.logger.ErrorContext(gctx, "sla sweep failed for tenant",
					"error", err,
					"tenant_id", tenantID,
				)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return total, dErrors.Wrap(err, dErrors.CodeTimeout, "sla sweep interrupted")
	}
	return total, nil
}
