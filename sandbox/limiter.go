package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter decides whether one more call is allowed under the key's
// sliding-window budget. Keys are "(principal):(tool)" pairs.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// LocalLimiter enforces per-key call budgets in process memory using token
// buckets sized to the window. Suitable for single-instance deployments.
type LocalLimiter struct {
	maxCalls int
	window   time.Duration

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewLocalLimiter creates a limiter allowing maxCalls per window per key.
func NewLocalLimiter(maxCalls int, window time.Duration) *LocalLimiter {
	return &LocalLimiter{
		maxCalls: maxCalls,
		window:   window,
		buckets:  make(map[string]*rate.Limiter),
	}
}

// Allow reports whether the key has budget for one more call.
func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(rate.Every(l.window/time.Duration(l.maxCalls)), l.maxCalls)
		l.buckets[key] = b
	}
	l.mu.Unlock()
	return b.Allow(), nil
}

// RedisLimiter enforces per-key call budgets across instances with a Redis
// sorted set per key: members are call timestamps, trimmed to the window on
// every check.
type RedisLimiter struct {
	client   redis.UniversalClient
	maxCalls int
	window   time.Duration
}

// NewRedisLimiter creates a distributed limiter allowing maxCalls per window
// per key.
func NewRedisLimiter(client redis.UniversalClient, maxCalls int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, maxCalls: maxCalls, window: window}
}

// Allow reports whether the key has budget for one more call, recording the
// call if so. The call is added before counting, inside one transaction, so
// concurrent callers can never admit more than maxCalls per window; a denied
// call removes its own entry and consumes no budget.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now()
	cutoff := now.Add(-l.window)
	rkey := "flowforge:ratelimit:" + key
	member := fmt.Sprintf("%d:%s", now.UnixNano(), uuid.NewString())

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, rkey, "0", fmt.Sprintf("%d", cutoff.UnixNano()))
	pipe.ZAdd(ctx, rkey, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: member,
	})
	count := pipe.ZCard(ctx, rkey)
	pipe.Expire(ctx, rkey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit check for %s: %w", key, err)
	}

	if count.Val() > int64(l.maxCalls) {
		if err := l.client.ZRem(ctx, rkey, member).Err(); err != nil {
			return false, fmt.Errorf("rate limit release for %s: %w", key, err)
		}
		return false, nil
	}
	return true, nil
}
