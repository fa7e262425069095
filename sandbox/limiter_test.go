package sandbox

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLimiter_EnforcesBudget(t *testing.T) {
	t.Parallel()

	l := NewLocalLimiter(2, time.Minute)
	ctx := context.Background()

	ok, err := l.Allow(ctx, "a:echo")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = l.Allow(ctx, "a:echo")
	assert.True(t, ok)

	ok, _ = l.Allow(ctx, "a:echo")
	assert.False(t, ok, "third call within the window must be rejected")

	// Separate key, separate budget.
	ok, _ = l.Allow(ctx, "b:echo")
	assert.True(t, ok)
}

func TestLocalLimiter_RefillsAfterWindow(t *testing.T) {
	t.Parallel()

	l := NewLocalLimiter(1, 50*time.Millisecond)
	ctx := context.Background()

	ok, _ := l.Allow(ctx, "a:echo")
	require.True(t, ok)
	ok, _ = l.Allow(ctx, "a:echo")
	require.False(t, ok)

	time.Sleep(60 * time.Millisecond)
	ok, _ = l.Allow(ctx, "a:echo")
	assert.True(t, ok, "budget must refill once the window rolls over")
}

func newRedisLimiter(t *testing.T, maxCalls int, window time.Duration) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLimiter(client, maxCalls, window), mr
}

func TestRedisLimiter_EnforcesBudget(t *testing.T) {
	t.Parallel()

	l, _ := newRedisLimiter(t, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "a:http_request")
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := l.Allow(ctx, "a:http_request")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisLimiter_WindowSlides(t *testing.T) {
	t.Parallel()

	l, mr := newRedisLimiter(t, 1, time.Minute)
	ctx := context.Background()

	ok, err := l.Allow(ctx, "a:echo")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.Allow(ctx, "a:echo")
	require.NoError(t, err)
	require.False(t, ok)

	// Old entries age out of the sorted set once the window passes.
	mr.FastForward(61 * time.Second)
	ok, err = l.Allow(ctx, "a:echo")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLimiter_ConcurrentCallersStayWithinBudget(t *testing.T) {
	t.Parallel()

	l, _ := newRedisLimiter(t, 3, time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	var admitted atomic.Int64
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.Allow(ctx, "a:http_request")
			assert.NoError(t, err)
			if ok {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(3), admitted.Load())

	// Denied calls released their reservations, so the window holds exactly
	// the admitted entries and stays saturated.
	ok, err := l.Allow(ctx, "a:http_request")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisLimiter_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	l, _ := newRedisLimiter(t, 1, time.Minute)
	ctx := context.Background()

	ok, _ := l.Allow(ctx, "a:echo")
	require.True(t, ok)
	ok, _ = l.Allow(ctx, "b:echo")
	assert.True(t, ok)
}
