package timeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"bgv/internal/verification/metrics"
)

// Outbox is the pending side of the timeline outbox.
type Outbox interface {
	Pending(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

type Publisher interface {
	Publish(ctx context.Context, records ...OutboxRecord) error
}

// Relay moves outbox records to the event stream. Delivery is at least once:
// a batch is only marked published after the broker acknowledged all of it.
type Relay struct {
	outbox    Outbox
	publisher Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	batchSize int
	interval  time.Duration
}

type RelayOption func(*Relay)

func WithRelayLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithRelayMetrics(m *metrics.Metrics) RelayOption {
	return func(r *Relay) {
		r.metrics = m
	}
}

func WithBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func NewRelay(outbox Outbox, publisher Publisher, opts ...RelayOption) *Relay {
	r := &Relay{
		outbox:    outbox,
		publisher: publisher,
		logger:    slog.Default(),
		batchSize: 100,
		interval:  time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOnce publishes at most one batch and returns how many records it relayed.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	pending, err := r.outbox.Pending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}
	if err := r.publisher.Publish(ctx, pending...); err != nil {
		r.metrics.RecordTimelinePublished(false)
		return 0, err
	}
	ids := make([]uuid.UUID, len(pending))
	for i, rec := range pending {
		ids[i] = rec.ID
	}
	if err := r.outbox.MarkPublished(ctx, ids, time.Now()); err != nil {
		return 0, err
	}
	for range pending {
		r.metrics.RecordTimelinePublished(true)
	}
	return len(pending), nil
}

// Run relays until ctx is cancelled. Full batches are drained immediately;
// otherwise the relay waits for the next tick.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		n, err := r.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.WarnContext(ctx, "timeline relay batch failed", "error", err)
		}
		if err == nil && n == r.batchSize {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
