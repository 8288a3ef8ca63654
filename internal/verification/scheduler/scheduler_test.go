package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bgv/internal/verification/service"
)

type fakeSweeper struct {
	calls atomic.Int32
	err   error
}

func (f *fakeSweeper) SweepAll(ctx context.Context) (service.SweepSummary, error) {
	f.calls.Add(1)
	if f.err != nil {
		return service.SweepSummary{}, f.err
	}
	return service.SweepSummary{Checked: 2, Breached: 1}, nil
}

type fakeRelay struct {
	calls atomic.Int32
}

func (f *fakeRelay) RunOnce(ctx context.Context) (int, error) {
	f.calls.Add(1)
	return 3, nil
}

type SchedulerSuite struct {
	suite.Suite
	logger *slog.Logger
}

func TestSchedulerSuite(t *testing.T) {
	suite.Run(t, new(SchedulerSuite))
}

func (s *SchedulerSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *SchedulerSuite) start(sched *Scheduler) (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()
	return cancel, done
}

func (s *SchedulerSuite) TestRequiresSweeper() {
	_, err := New(nil)
	s.Error(err)
}

func (s *SchedulerSuite) TestRunsJobsOnStartAndStopsOnCancel() {
	sweeper := &fakeSweeper{}
	relay := &fakeRelay{}
	sched, err := New(sweeper,
		WithLogger(s.logger),
		WithSweepInterval(time.Hour),
		WithRelay(relay, time.Hour),
	)
	s.Require().NoError(err)

	cancel, done := s.start(sched)
	s.Eventually(func() bool {
		return sweeper.calls.Load() >= 1 && relay.calls.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	s.ErrorIs(<-done, context.Canceled)
}

func (s *SchedulerSuite) TestTriggerRunsSweepOutOfSchedule() {
	sweeper := &fakeSweeper{}
	sched, err := New(sweeper, WithLogger(s.logger), WithSweepInterval(time.Hour))
	s.Require().NoError(err)

	cancel, done := s.start(sched)
	defer func() {
		cancel()
		<-done
	}()
	s.Eventually(func() bool { return sweeper.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	s.Require().NoError(sched.Trigger(JobSweep))
	s.Eventually(func() bool { return sweeper.calls.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func (s *SchedulerSuite) TestSweepFailureKeepsSchedulerRunning() {
	sweeper := &fakeSweeper{err: errors.New("store unavailable")}
	sched, err := New(sweeper, WithLogger(s.logger), WithSweepInterval(time.Hour))
	s.Require().NoError(err)

	cancel, done := s.start(sched)
	s.Eventually(func() bool { return sweeper.calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	s.Require().NoError(sched.Trigger(JobSweep))
	s.Eventually(func() bool { return sweeper.calls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	s.ErrorIs(<-done, context.Canceled)
}

func (s *SchedulerSuite) TestTriggerUnknownJob() {
	sched, err := New(&fakeSweeper{}, WithLogger(s.logger))
	s.Require().NoError(err)
	s.Error(sched.Trigger("nope"))
}
