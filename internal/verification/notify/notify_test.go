package notify_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"bgv/internal/verification/notify"
	"bgv/internal/verification/ports"
	"bgv/internal/verification/ports/mocks"
	dErrors "bgv/pkg/domain-errors"
	"bgv/pkg/platform/circuit"
)

type BreakerNotifierSuite struct {
	suite.Suite
	ctrl *gomock.Controller
	next *mocks.MockNotifier
	now  time.Time
}

func TestBreakerNotifierSuite(t *testing.T) {
	suite.Run(t, new(BreakerNotifierSuite))
}

func (s *BreakerNotifierSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.next = mocks.NewMockNotifier(s.ctrl)
	s.now = time.Now()
}

func (s *BreakerNotifierSuite) newNotifier() *notify.BreakerNotifier {
	return notify.NewBreakerNotifier(s.next,
		notify.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		notify.WithBreaker(circuit.New("test",
			circuit.WithFailureThreshold(2),
			circuit.WithSuccessThreshold(1),
			circuit.WithCooldown(time.Minute),
		)),
		notify.WithClock(func() time.Time { return s.now }),
	)
}

func (s *BreakerNotifierSuite) TestDelivers() {
	msg := ports.Notification{Kind: ports.NotifySLAReminder}
	s.next.EXPECT().Notify(gomock.Any(), msg).Return(nil)

	s.Require().NoError(s.newNotifier().Notify(context.Background(), msg))
}

func (s *BreakerNotifierSuite) TestFailureIsNotificationFailed() {
	s.next.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(errors.New("smtp down"))

	err := s.newNotifier().Notify(context.Background(), ports.Notification{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotificationFailed))
}

func (s *BreakerNotifierSuite) TestOpenCircuitFailsFastThenProbes() {
	n := s.newNotifier()
	ctx := context.Background()

	s.next.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(errors.New("down")).Times(2)
	s.Error(n.Notify(ctx, ports.Notification{}))
	s.Error(n.Notify(ctx, ports.Notification{}))

	s.Run("fails fast while open", func() {
		err := n.Notify(ctx, ports.Notification{})
		s.True(dErrors.HasCode(err, dErrors.CodeNotificationFailed))
	})

	s.Run("probes after cooldown and closes on success", func() {
		s.now = s.now.Add(2 * time.Minute)
		s.next.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil).Times(2)
		s.NoError(n.Notify(ctx, ports.Notification{}))
		s.now = s.now.Add(time.Second)
		s.NoError(n.Notify(ctx, ports.Notification{}))
	})
}

func (s *BreakerNotifierSuite) TestLogNotifierNeverFails() {
	n := notify.NewLogNotifier(slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.NoError(n.Notify(context.Background(), ports.Notification{Kind: ports.NotifyEscalation}))
}
