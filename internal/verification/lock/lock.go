// Package lock serializes mutations on one case so that validating a
// transition and writing its result are never interleaved with another
// writer on the same case.
package lock

import (
	"context"
	"sync"
	"time"

	dErrors "bgv/pkg/domain-errors"
)

// Locker runs fn while holding the lock for key.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// CaseKey is the lock key for all mutations under a case.
func CaseKey(caseID string) string {
	return "bgv:lock:case:" + caseID
}

// numShards spreads keys across mutexes; distinct cases rarely contend.
const numShards = 128

const defaultTimeout = 5 * time.Second

// Sharded is an in-process Locker over FNV-1a selected mutex shards.
// Callers must not nest WithLock calls.
type Sharded struct {
	shards  [numShards]sync.Mutex
	timeout time.Duration
}

type ShardedOption func(*Sharded)

// WithTimeout bounds the work done under the lock when ctx has no deadline.
func WithTimeout(d time.Duration) ShardedOption {
	return func(s *Sharded) {
		s.timeout = d
	}
}

func NewSharded(opts ...ShardedOption) *Sharded {
	s := &Sharded{timeout: defaultTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sharded) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "lock aborted: context cancelled")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	shard := &s.shards[hashKey(key)%numShards]
	shard.Lock()
	defer shard.Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "lock aborted: context cancelled")
	}

	return fn(ctx)
}

// hashKey is FNV-1a.
func hashKey(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
