package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotAcquired is returned when the lock is held by another worker
// after all acquisition attempts.
var ErrLockNotAcquired = errors.New("lock held by another worker")

// Release and extend compare the stored token first, so a worker whose lock
// expired cannot release or extend a lock now held by someone else.
var (
	releaseLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)

	extendLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// DistributedLock is a Redis SETNX lock with an owner token and TTL.
type DistributedLock struct {
	client   *redis.Client
	key      string
	token    string
	ttl      time.Duration
	acquired bool
}

func NewDistributedLock(client *redis.Client, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		client: client,
		key:    "lock:" + key,
		token:  uuid.New().String(),
		ttl:    ttl,
	}
}

// NewOrderLock creates the per-order lock used to serialize concurrent
// pipeline work (webhook, expiry check, assignment) on the same order.
func NewOrderLock(client *redis.Client, orderID uuid.UUID, ttl time.Duration) *DistributedLock {
	return NewDistributedLock(client, "order:"+orderID.String(), ttl)
}

// Acquire makes a single SETNX attempt. False with a nil error means the
// lock is currently held elsewhere.
func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	l.acquired = ok
	return ok, nil
}

// AcquireWithRetry polls for the lock until it is acquired, attempts run
// out, or ctx is cancelled. Contention is expected here: webhook and expiry
// jobs for the same order routinely race.
func (l *DistributedLock) AcquireWithRetry(ctx context.Context, attempts int, delay time.Duration) error {
	for i := 0; i < attempts; i++ {
		ok, err := l.Acquire(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return ErrLockNotAcquired
}

// Extend pushes the TTL out for handlers that outlive the initial window.
func (l *DistributedLock) Extend(ctx context.Context, additionalTTL time.Duration) error {
	if !l.acquired {
		return errors.New("lock not acquired")
	}

	res, err := extendLockScript.Run(ctx, l.client, []string{l.key}, l.token, additionalTTL.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", l.key, err)
	}
	if n, ok := res.(int64); !ok || n == 0 {
		return errors.New("lock not held or expired")
	}

	return nil
}

// Release frees the lock if this instance still owns it. Releasing a lock
// that was never acquired is a no-op.
func (l *DistributedLock) Release(ctx context.Context) error {
	if !l.acquired {
		return nil
	}

	res, err := releaseLockScript.Run(ctx, l.client, []string{l.key}, l.token).Result()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	if n, ok := res.(int64); !ok || n == 0 {
		return errors.New("lock not held or already released")
	}

	l.acquired = false
	return nil
}

// IsAcquired reports whether this instance currently believes it holds the
// lock. The TTL may have lapsed server-side.
func (l *DistributedLock) IsAcquired() bool {
	return l.acquired
}
