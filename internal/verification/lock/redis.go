package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	dErrors "bgv/pkg/domain-errors"
	"bgv/pkg/platform/sentinel"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock re-acquired by another instance is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared by every instance pointing at one Redis.
type RedisLocker struct {
	client  redis.UniversalClient
	ttl     time.Duration
	retry   time.Duration
	timeout time.Duration
}

type RedisOption func(*RedisLocker)

// WithTTL sets how long a lock survives a crashed holder.
func WithTTL(d time.Duration) RedisOption {
	return func(l *RedisLocker) {
		l.ttl = d
	}
}

// WithRetryInterval sets the pause between acquisition attempts.
func WithRetryInterval(d time.Duration) RedisOption {
	return func(l *RedisLocker) {
		l.retry = d
	}
}

// WithAcquireTimeout bounds waiting when ctx has no deadline.
func WithAcquireTimeout(d time.Duration) RedisOption {
	return func(l *RedisLocker) {
		l.timeout = d
	}
}

func NewRedis(client redis.UniversalClient, opts ...RedisOption) *RedisLocker {
	l := &RedisLocker{
		client:  client,
		ttl:     30 * time.Second,
		retry:   25 * time.Millisecond,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	token := uuid.NewString()
	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}
	defer func() {
		// Release on a fresh context so a cancelled caller still frees the key.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
	}()

	return fn(ctx)
}

func (l *RedisLocker) acquire(ctx context.Context, key, token string) error {
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return dErrors.Wrap(sentinel.ErrLockHeld, dErrors.CodeTimeout, "timed out waiting for case lock")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to acquire case lock")
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return dErrors.Wrap(sentinel.ErrLockHeld, dErrors.CodeTimeout, "timed out waiting for case lock")
		case <-ticker.C:
		}
	}
}
