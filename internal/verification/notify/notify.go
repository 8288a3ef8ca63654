// Package notify provides Notifier implementations: a structured-log notifier
// for deployments without a delivery service, and a circuit-breaking wrapper
// around any delivery backend.
package notify

import (
	"context"
	"log/slog"
	"time"

	"bgv/internal/verification/ports"
	dErrors "bgv/pkg/domain-errors"
	"bgv/pkg/platform/circuit"
)

// LogNotifier writes notifications to the log instead of delivering them.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, msg ports.Notification) error {
	n.logger.InfoContext(ctx, "notification",
		"kind", msg.Kind,
		"template", msg.Template,
		"tenant_id", msg.TenantID,
		"case_id", msg.CaseID,
		"recipient", msg.Recipient,
	)
	return nil
}

// BreakerNotifier stops calling an unhealthy backend after repeated failures
// and fails fast with CodeNotificationFailed until the cooldown elapses.
type BreakerNotifier struct {
	next    ports.Notifier
	breaker *circuit.Breaker
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*BreakerNotifier)

func WithLogger(logger *slog.Logger) Option {
	return func(b *BreakerNotifier) {
		b.logger = logger
	}
}

func WithBreaker(br *circuit.Breaker) Option {
	return func(b *BreakerNotifier) {
		b.breaker = br
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *BreakerNotifier) {
		b.now = now
	}
}

func NewBreakerNotifier(next ports.Notifier, opts ...Option) *BreakerNotifier {
	b := &BreakerNotifier{
		next:    next,
		breaker: circuit.New("notifier", circuit.WithCooldown(30*time.Second)),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *BreakerNotifier) Notify(ctx context.Context, msg ports.Notification) error {
	if !b.breaker.Allow(b.now()) {
		return dErrors.New(dErrors.CodeNotificationFailed, "notification delivery circuit open").
			WithDetail("kind", string(msg.Kind))
	}
	if err := b.next.Notify(ctx, msg); err != nil {
		if _, change := b.breaker.RecordFailure(); change.Opened {
			b.logger.WarnContext(ctx, "notification circuit opened",
				"breaker", b.breaker.Name(),
				"error", err,
			)
		}
		return dErrors.Wrap(err, dErrors.CodeNotificationFailed, "failed to deliver notification")
	}
	if _, change := b.breaker.RecordSuccess(); change.Closed {
		b.logger.InfoContext(ctx, "notification circuit closed", "breaker", b.breaker.Name())
	}
	return nil
}
