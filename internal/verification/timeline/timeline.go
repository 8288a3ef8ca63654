// Package timeline records the append-only audit trail of a case and relays
// it to the event stream.
package timeline

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"bgv/internal/verification/metrics"
	"bgv/internal/verification/models"
	id "bgv/pkg/domain"
)

// Repository persists timeline entries. It exposes no update or delete.
type Repository interface {
	Append(ctx context.Context, entry models.TimelineEntry) error
	List(ctx context.Context, tenantID id.TenantID, caseID id.CaseID) ([]models.TimelineEntry, error)
}

// Writer appends entries on a best-effort basis: a failed append is logged
// and counted but never surfaced to the caller, so a committed state change
// is not rolled back because its audit record could not be written.
type Writer struct {
	repo    Repository
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Writer)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) {
		w.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Writer) {
		w.metrics = m
	}
}

func NewWriter(repo Repository, opts ...Option) *Writer {
	w := &Writer{repo: repo, logger: slog.Default()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Record appends entries in order, stopping nothing on failure.
func (w *Writer) Record(ctx context.Context, entries ...models.TimelineEntry) {
	for _, e := range entries {
		if e.ID == (id.EntryID{}) {
			e.ID = id.NewEntryID()
		}
		if err := w.repo.Append(ctx, e); err != nil {
			w.metrics.IncrementTimelineAppendFailed()
			w.logger.ErrorContext(ctx, "CRITICAL: timeline append failed",
				"error", err,
				"tenant_id", e.TenantID,
				"case_id", e.CaseID,
				"check_id", e.CheckID,
				"action", e.Action,
			)
		}
	}
}

// List returns a case's entries oldest first, filtered for the viewer.
func (w *Writer) List(ctx context.Context, tenantID id.TenantID, caseID id.CaseID, viewer models.Visibility) ([]models.TimelineEntry, error) {
	entries, err := w.repo.List(ctx, tenantID, caseID)
	if err != nil {
		return nil, err
	}
	return Filter(entries, viewer), nil
}

// Filter keeps the entries visible to viewer, ordered by CreatedAt.
func Filter(entries []models.TimelineEntry, viewer models.Visibility) []models.TimelineEntry {
	out := make([]models.TimelineEntry, 0, len(entries))
	for _, e := range entries {
		if e.Visibility.VisibleTo(viewer) {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b models.TimelineEntry) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}

// Entry starts a timeline entry for a case. Callers fill in the rest.
func Entry(c *models.Case, action models.TimelineAction, actor id.UserID, at time.Time) models.TimelineEntry {
	return models.TimelineEntry{
		ID:         id.NewEntryID(),
		TenantID:   c.TenantID,
		CaseID:     c.ID,
		Action:     action,
		ActorID:    actor,
		Visibility: models.VisibilityInternal,
		CreatedAt:  at,
	}
}

// StatusChange builds the entry for a check status transition.
func StatusChange(c *models.Case, checkID id.CheckID, from, to models.CheckStatus, actor id.UserID, at time.Time) models.TimelineEntry {
	e := Entry(c, models.ActionStatusChanged, actor, at)
	e.CheckID = checkID
	e.OldStatus = string(from)
	e.NewStatus = string(to)
	e.Description = "check status changed from " + string(from) + " to " + string(to)
	e.Visibility = models.VisibilityClient
	return e
}

// CaseStatusChange builds the entry for a derived case status change.
func CaseStatusChange(c *models.Case, from models.CaseStatus, actor id.UserID, at time.Time) models.TimelineEntry {
	e := Entry(c, models.ActionCaseStatusChanged, actor, at)
	e.OldStatus = string(from)
	e.NewStatus = string(c.OverallStatus)
	e.Description = "case status changed from " + string(from) + " to " + string(c.OverallStatus)
	e.Visibility = models.VisibilityCandidate
	return e
}
