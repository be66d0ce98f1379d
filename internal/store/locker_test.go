package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/slotkeeper/internal/config"
)

func TestCalendarLockKey(t *testing.T) {
	assert.Equal(t, "calendar:42", CalendarLockKey(42))
}

func TestLocalLocker_ExcludesConcurrentHolders(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "calendar:1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}

func TestLocalLocker_ContextCancel(t *testing.T) {
	l := NewLocalLocker()

	unlock, err := l.Lock(context.Background(), "calendar:1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "calendar:1")
	assert.Error(t, err)

	// Other keys are independent.
	unlock2, err := l.Lock(context.Background(), "calendar:2")
	require.NoError(t, err)
	unlock2()

	unlock()
	unlock() // double release is a no-op

	unlock3, err := l.Lock(context.Background(), "calendar:1")
	require.NoError(t, err)
	unlock3()
}

func newTestRedisLocker(t *testing.T) *RedisLocker {
	t.Helper()

	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	cfg := config.Lock{
		Backend:       config.LockRedis,
		RedisAddr:     s.Addr(),
		KeyPrefix:     "test:",
		TTL:           5 * time.Second,
		RetryInterval: 10 * time.Millisecond,
	}
	client, err := NewRedisClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisLocker(client, cfg, nil)
}

func TestRedisLocker_Contention(t *testing.T) {
	l := newTestRedisLocker(t)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "calendar:1")
	require.NoError(t, err)

	shortCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = l.Lock(shortCtx, "calendar:1")
	assert.Error(t, err)

	other, err := l.Lock(ctx, "calendar:2")
	require.NoError(t, err)
	other()

	unlock()

	again, err := l.Lock(ctx, "calendar:1")
	require.NoError(t, err)
	again()
}

func TestRedisLocker_SerializesHolders(t *testing.T) {
	l := newTestRedisLocker(t)
	ctx := context.Background()

	var inside, violations int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "calendar:7")
			if !assert.NoError(t, err) {
				return
			}
			if atomic.AddInt32(&inside, 1) > 1 {
				atomic.AddInt32(&violations, 1)
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Zero(t, violations)
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	addr := s.Addr()
	s.Close()

	_, err = NewRedisClient(config.Lock{RedisAddr: addr})
	assert.Error(t, err)
}
