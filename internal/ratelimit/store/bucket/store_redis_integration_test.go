//go:build integration

package bucket_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bgv/internal/ratelimit/store/bucket"
	"bgv/pkg/testutil/containers"
)

type RedisBucketStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *bucket.RedisBucketStore
}

func TestRedisBucketStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisBucketStoreSuite))
}

func (s *RedisBucketStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = bucket.NewRedis(s.redis.Client)
}

func (s *RedisBucketStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisBucketStoreSuite) TestAllowUpToLimit() {
	ctx := context.Background()
	for i := range 3 {
		result, err := s.store.Allow(ctx, "ip:10.0.0.1:write", 3, time.Minute)
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(3-i-1, result.Remaining)
	}

	result, err := s.store.Allow(ctx, "ip:10.0.0.1:write", 3, time.Minute)
	s.Require().NoError(err)
	s.False(result.Allowed)
	s.Positive(result.RetryAfter)
}

func (s *RedisBucketStoreSuite) TestWindowExpires() {
	ctx := context.Background()
	_, err := s.store.Allow(ctx, "actor:a:read", 1, 200*time.Millisecond)
	s.Require().NoError(err)

	s.Eventually(func() bool {
		result, err := s.store.Allow(ctx, "actor:a:read", 1, 200*time.Millisecond)
		return err == nil && result.Allowed
	}, 2*time.Second, 50*time.Millisecond)
}

func (s *RedisBucketStoreSuite) TestReset() {
	ctx := context.Background()
	_, err := s.store.Allow(ctx, "ip:10.0.0.2:admin", 1, time.Minute)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Reset(ctx, "ip:10.0.0.2:admin"))

	result, err := s.store.Allow(ctx, "ip:10.0.0.2:admin", 1, time.Minute)
	s.Require().NoError(err)
	s.True(result.Allowed)
}
