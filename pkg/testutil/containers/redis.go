//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"bgv/internal/platform/config"
	platformredis "bgv/internal/platform/redis"
)

const redisImage = "redis:7-alpine"

// RedisContainer backs the lock and rate limit integration suites. The
// client is built through the same constructor the server uses.
type RedisContainer struct {
	Container testcontainers.Container
	URL       string
	Client    *platformredis.Client
}

func NewRedisContainer(t *testing.T) *RedisContainer {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, redisImage)
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	url, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("redis connection string: %v", err)
	}

	rc := &RedisContainer{Container: container, URL: url}
	client, err := platformredis.New(ctx, rc.Config())
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("connect redis: %v", err)
	}
	rc.Client = client

	// Shared by the Manager across suites; Ryuk reaps the container.
	return rc
}

// Config is the client configuration pointing at the container.
func (r *RedisContainer) Config() config.RedisConfig {
	return config.RedisConfig{URL: r.URL, PoolSize: 4}
}

// FlushAll clears every key so suites start from an empty keyspace.
func (r *RedisContainer) FlushAll(ctx context.Context) error {
	if err := r.Client.Health(ctx); err != nil {
		return err
	}
	return r.Client.FlushAll(ctx).Err()
}
