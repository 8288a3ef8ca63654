//go:build integration

package lock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bgv/internal/verification/lock"
	dErrors "bgv/pkg/domain-errors"
	"bgv/pkg/testutil/containers"
)

type RedisLockerSuite struct {
	suite.Suite
	redis  *containers.RedisContainer
	locker *lock.RedisLocker
}

func TestRedisLockerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisLockerSuite))
}

func (s *RedisLockerSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.locker = lock.NewRedis(s.redis.Client, lock.WithRetryInterval(5*time.Millisecond))
}

func (s *RedisLockerSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisLockerSuite) TestMutualExclusion() {
	key := lock.CaseKey("case-redis")
	var active, maxSeen, total atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.locker.WithLock(context.Background(), key, func(ctx context.Context) error {
				n := active.Add(1)
				for {
					m := maxSeen.Load()
					if n <= m || maxSeen.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				total.Add(1)
				active.Add(-1)
				return nil
			})
			s.NoError(err)
		}()
	}
	wg.Wait()

	s.Equal(int32(20), total.Load())
	s.Equal(int32(1), maxSeen.Load())
}

func (s *RedisLockerSuite) TestReleasesKey() {
	ctx := context.Background()
	key := lock.CaseKey("case-release")
	s.Require().NoError(s.locker.WithLock(ctx, key, func(context.Context) error { return nil }))

	exists, err := s.redis.Client.Exists(ctx, key).Result()
	s.Require().NoError(err)
	s.Zero(exists)
}

func (s *RedisLockerSuite) TestTimesOutWhileHeld() {
	ctx := context.Background()
	key := lock.CaseKey("case-held")
	s.Require().NoError(s.redis.Client.Set(ctx, key, "someone-else", time.Minute).Err())

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := s.locker.WithLock(waitCtx, key, func(context.Context) error { return nil })
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))

	// A foreign holder's key is not deleted.
	val, err := s.redis.Client.Get(ctx, key).Result()
	s.Require().NoError(err)
	s.Equal("someone-else", val)
}
