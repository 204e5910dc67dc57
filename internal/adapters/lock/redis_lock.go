// Package lock provides the cross-process admission lock.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when another holder owns the lock past the wait budget.
var ErrNotAcquired = errors.New("lock not acquired")

// releaseScript deletes the key only when it still carries our token.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Locker runs fn while holding a named lock.
type Locker interface {
	WithLock(ctx context.Context, fn func(ctx context.Context) error) error
}

// RedisLock is a SET NX lock with TTL and owner-checked release.
// Each WithLock call uses a fresh ownership token, so one RedisLock is safe
// for concurrent use.
type RedisLock struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

// Options tunes lock timing. Zero values take defaults.
type Options struct {
	TTL   time.Duration // key expiry; bounds how long a crashed holder blocks others
	Wait  time.Duration // total time to keep retrying acquisition
	Retry time.Duration // pause between attempts
}

// NewRedisLock creates a lock on key.
// PRE: client is connected; key is non-empty
// POST: Returns a lock using "lock:<key>" in Redis
func NewRedisLock(client redis.UniversalClient, key string, opts Options) *RedisLock {
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Second
	}
	if opts.Wait <= 0 {
		opts.Wait = 2 * time.Second
	}
	if opts.Retry <= 0 {
		opts.Retry = 25 * time.Millisecond
	}
	return &RedisLock{
		client: client,
		key:    "lock:" + key,
		ttl:    opts.TTL,
		wait:   opts.Wait,
		retry:  opts.Retry,
	}
}

// WithLock acquires the lock, runs fn, and releases the lock.
// PRE: fn completes well within the TTL
// POST: Returns ErrNotAcquired without calling fn if the lock stayed held for the wait budget
func (l *RedisLock) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	token, err := newToken()
	if err != nil {
		return err
	}
	if err := l.acquire(ctx, token); err != nil {
		return err
	}
	defer func() {
		// Release even when ctx is already cancelled.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if _, err := releaseScript.Run(rctx, l.client, []string{l.key}, token).Result(); err != nil {
			slog.Warn("lock_release_failed", "key", l.key, "error", err)
		}
	}()
	return fn(ctx)
}

func (l *RedisLock) acquire(ctx context.Context, token string) error {
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
		}
		if ok {
			return nil
		}
		if time.Now().Add(l.retry).After(deadline) {
			return ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retry):
		}
	}
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
