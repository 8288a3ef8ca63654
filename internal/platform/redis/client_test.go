package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bgv/internal/platform/config"
	"bgv/pkg/platform/sentinel"
)

func TestNewWithoutURL(t *testing.T) {
	client, err := New(context.Background(), config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestNewRejectsMalformedURL(t *testing.T) {
	_, err := New(context.Background(), config.RedisConfig{URL: "not a url"})
	assert.Error(t, err)
}

func TestNewUnreachableServerIsUnavailable(t *testing.T) {
	_, err := New(context.Background(), config.RedisConfig{
		URL:         "redis://127.0.0.1:1/0",
		DialTimeout: 50 * time.Millisecond,
	})
	assert.ErrorIs(t, err, sentinel.ErrUnavailable)
}

func TestApplyConfig(t *testing.T) {
	opts := &redis.Options{PoolSize: 10, ReadTimeout: time.Second}
	applyConfig(opts, config.RedisConfig{PoolSize: 3, WriteTimeout: 2 * time.Second})

	assert.Equal(t, 3, opts.PoolSize)
	assert.Equal(t, time.Second, opts.ReadTimeout)
	assert.Equal(t, 2*time.Second, opts.WriteTimeout)
}
