package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotAcquired is returned by AcquireWait when the wait budget runs out
var ErrLockNotAcquired = errors.New("lock not acquired")

// releaseScript deletes the lock only when the caller still owns it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

const lockPollInterval = 50 * time.Millisecond

// Lock is an advisory lock held in Redis with a TTL so a crashed holder
// cannot wedge the key forever. A Lock value is a handle for one
// acquisition; build a new one per critical section.
type Lock struct {
	client *Client
	key    string
	token  string
	ttl    time.Duration
}

// NewLock returns a handle for key. Nothing is written until Acquire.
func (c *Client) NewLock(key string, ttl time.Duration) *Lock {
	return &Lock{
		client: c,
		key:    key,
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// Key returns the lock key
func (l *Lock) Key() string {
	return l.key
}

// Acquire tries once to take the lock
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	return ok, nil
}

// AcquireWait polls until the lock is taken, wait elapses or ctx is done
func (l *Lock) AcquireWait(ctx context.Context, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for {
		ok, err := l.Acquire(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

// Release drops the lock if this handle still owns it
func (l *Lock) Release(ctx context.Context) error {
	res, err := releaseScript.Run(ctx, l.client.redis, []string{l.key}, l.token).Int64()
	if err != nil {
		l.client.logger.Error("redis lock release failed", "key", l.key, "error", err)
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	if res == 0 {
		l.client.logger.Warn("lock expired before release", "key", l.key)
	}
	return nil
}

// IsLocked reports whether any holder currently owns key
func (c *Client) IsLocked(ctx context.Context, key string) (bool, error) {
	return c.Exists(ctx, key)
}
