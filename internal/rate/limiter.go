package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrEthical07/goIdentity/internal/keys"
	"github.com/redis/go-redis/v9"
	xrate "golang.org/x/time/rate"
)

// Rule allows Limit events per Window. A zero Limit disables the rule.
type Rule struct {
	Limit  int
	Window time.Duration
}

func (r Rule) disabled() bool {
	return r.Limit <= 0 || r.Window <= 0
}

// Limiter charges one event against scope/subject.
type Limiter interface {
	Allow(ctx context.Context, scope, subject string, rule Rule) error
}

// RedisLimiter enforces rules with fixed-window counters in Redis.
type RedisLimiter struct {
	redis  redis.UniversalClient
	layout keys.Layout
}

// NewRedis creates a limiter writing under prefix.
func NewRedis(client redis.UniversalClient, prefix string) *RedisLimiter {
	return &RedisLimiter{redis: client, layout: keys.New(prefix)}
}

func (l *RedisLimiter) Allow(ctx context.Context, scope, subject string, rule Rule) error {
	if rule.disabled() {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, l.layout.Throttle(scope, subject), rule.Window)
	if err != nil {
		return err
	}
	if count > int64(rule.Limit) {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the counter for scope/subject.
func (l *RedisLimiter) Reset(ctx context.Context, scope, subject string) error {
	if err := l.redis.Del(ctx, l.layout.Throttle(scope, subject)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *RedisLimiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: the TTL is set by the first hit only.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

// MemoryLimiter keeps a token bucket per key. Buckets refill at
// Limit/Window and hold at most Limit tokens.
type MemoryLimiter struct {
	mu       sync.Mutex
	limiters map[string]*xrate.Limiter
	now      func() time.Time
}

// NewMemory creates an in-process limiter. A nil clock means time.Now.
func NewMemory(now func() time.Time) *MemoryLimiter {
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{
		limiters: make(map[string]*xrate.Limiter),
		now:      now,
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, scope, subject string, rule Rule) error {
	if rule.disabled() {
		return nil
	}
	if !l.limiter(scope+":"+subject, rule).AllowN(l.now(), 1) {
		return ErrRateLimited
	}
	return nil
}

func (l *MemoryLimiter) limiter(key string, rule Rule) *xrate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[key]
	if !ok {
		lim = xrate.NewLimiter(xrate.Every(rule.Window/time.Duration(rule.Limit)), rule.Limit)
		l.limiters[key] = lim
	}
	return lim
}

// Reset drops the bucket for scope/subject.
func (l *MemoryLimiter) Reset(ctx context.Context, scope, subject string) error {
	l.mu.Lock()
	delete(l.limiters, scope+":"+subject)
	l.mu.Unlock()
	return nil
}
