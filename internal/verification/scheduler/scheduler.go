// Package scheduler runs the periodic SLA sweep and timeline relay on a
// gocron schedule.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"bgv/internal/platform/metrics"
	"bgv/internal/verification/service"
)

const (
	JobSweep = "sla-sweep"
	JobRelay = "timeline-relay"

	defaultSweepInterval = 15 * time.Minute
	defaultRelayInterval = time.Second
)

// Sweeper evaluates SLA state for every active tenant.
type Sweeper interface {
	SweepAll(ctx context.Context) (service.SweepSummary, error)
}

// Relay drains one batch of the timeline outbox.
type Relay interface {
	RunOnce(ctx context.Context) (int, error)
}

type Scheduler struct {
	cron          *gocron.Scheduler
	sweeper       Sweeper
	relay         Relay
	logger        *slog.Logger
	metrics       *metrics.Metrics
	sweepInterval time.Duration
	relayInterval time.Duration

	mu     sync.RWMutex
	runCtx context.Context
}

type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

func WithSweepInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// WithRelay schedules the outbox relay alongside the sweep.
func WithRelay(relay Relay, interval time.Duration) Option {
	return func(s *Scheduler) {
		s.relay = relay
		if interval > 0 {
			s.relayInterval = interval
		}
	}
}

func New(sweeper Sweeper, opts ...Option) (*Scheduler, error) {
	if sweeper == nil {
		return nil, errors.New("sweeper is required")
	}
	s := &Scheduler{
		cron:          gocron.NewScheduler(time.UTC),
		sweeper:       sweeper,
		logger:        slog.Default(),
		sweepInterval: defaultSweepInterval,
		relayInterval: defaultRelayInterval,
		runCtx:        context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := s.cron.Every(s.sweepInterval).Tag(JobSweep).SingletonMode().Do(s.sweep); err != nil {
		return nil, err
	}
	if s.relay != nil {
		if _, err := s.cron.Every(s.relayInterval).Tag(JobRelay).SingletonMode().Do(s.drain); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Run starts the jobs and blocks until ctx is cancelled. A job in flight is
// cancelled through the same context.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	s.cron.StartAsync()
	s.logger.InfoContext(ctx, "scheduler started",
		"sweep_interval", s.sweepInterval.String(),
		"relay_enabled", s.relay != nil,
	)
	<-ctx.Done()
	s.cron.Stop()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

// Trigger runs a job immediately, outside its schedule.
func (s *Scheduler) Trigger(job string) error {
	return s.cron.RunByTag(job)
}

func (s *Scheduler) context() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runCtx
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(s.context(), s.sweepInterval)
	defer cancel()

	start := time.Now()
	summary, err := s.sweeper.SweepAll(ctx)
	s.metrics.ObserveJob(JobSweep, time.Since(start), err)
	if err != nil {
		s.logger.ErrorContext(ctx, "scheduled sla sweep failed", "error", err)
		return
	}
	s.logger.InfoContext(ctx, "scheduled sla sweep finished",
		"checked", summary.Checked,
		"breached", summary.Breached,
		"escalated", summary.Escalated,
		"reminders", summary.Reminders,
		"failed", summary.Failed,
	)
}

func (s *Scheduler) drain() {
	ctx := s.context()
	start := time.Now()
	n, err := s.relay.RunOnce(ctx)
	s.metrics.ObserveJob(JobRelay, time.Since(start), err)
	if err != nil {
		s.logger.WarnContext(ctx, "timeline relay run failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.DebugContext(ctx, "timeline relay published", "count", n)
	}
}
