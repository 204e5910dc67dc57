package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRedisLock_RunsAndReleases(t *testing.T) {
	mr, client := setupTestRedis(t)
	l := NewRedisLock(client, "admission", Options{})

	called := false
	err := l.WithLock(context.Background(), func(ctx context.Context) error {
		called = true
		assert.True(t, mr.Exists("lock:admission"), "key should exist while held")
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.False(t, mr.Exists("lock:admission"), "key should be released")
}

func TestRedisLock_PropagatesError(t *testing.T) {
	mr, client := setupTestRedis(t)
	l := NewRedisLock(client, "admission", Options{})
	boom := errors.New("boom")

	err := l.WithLock(context.Background(), func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("lock:admission"))
}

func TestRedisLock_NotAcquired(t *testing.T) {
	mr, client := setupTestRedis(t)
	require.NoError(t, mr.Set("lock:admission", "someone-else"))
	l := NewRedisLock(client, "admission", Options{Wait: 60 * time.Millisecond, Retry: 10 * time.Millisecond})

	called := false
	err := l.WithLock(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrNotAcquired)
	assert.False(t, called)

	v, _ := mr.Get("lock:admission")
	assert.Equal(t, "someone-else", v, "foreign lock must not be released")
}

func TestRedisLock_MutualExclusion(t *testing.T) {
	_, client := setupTestRedis(t)
	l := NewRedisLock(client, "admission", Options{Wait: 5 * time.Second, Retry: time.Millisecond})

	var inside, maxInside, total atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(context.Background(), func(ctx context.Context) error {
				n := inside.Add(1)
				for {
					m := maxInside.Load()
					if n <= m || maxInside.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
				total.Add(1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(20), total.Load())
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestRedisLock_CancelledWhileWaiting(t *testing.T) {
	mr, client := setupTestRedis(t)
	require.NoError(t, mr.Set("lock:admission", "held"))
	l := NewRedisLock(client, "admission", Options{Wait: time.Minute, Retry: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := l.WithLock(ctx, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
