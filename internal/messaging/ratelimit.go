package messaging

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRateLimited signals that the recipient's send window is full.
// Callers must treat it as retryable, never as a fatal conversation error.
var ErrRateLimited = errors.New("rate limited")

// Limiter guards outbound sends with a per-recipient sliding window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// WindowLimiter is an in-process sliding window: per-key timestamp slices
// with lazy pruning, suitable for single-instance deployments.
type WindowLimiter struct {
	mu     sync.Mutex
	sent   map[string][]time.Time
	window time.Duration
	limit  int
	now    func() time.Time
}

// NewWindowLimiter allows at most limit sends per key within window.
func NewWindowLimiter(limit int, window time.Duration) *WindowLimiter {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &WindowLimiter{
		sent:   make(map[string][]time.Time),
		window: window,
		limit:  limit,
		now:    time.Now,
	}
}

// Allow records a send attempt and reports whether it is within the window.
func (l *WindowLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	recent := l.sent[key][:0]
	for _, t := range l.sent[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= l.limit {
		l.sent[key] = recent
		return false, nil
	}

	l.sent[key] = append(recent, now)
	return true, nil
}

// RedisLimiter implements the same sliding window on a Redis sorted set, so
// multiple instances share one budget per recipient.
type RedisLimiter struct {
	client *redis.Client
	window time.Duration
	limit  int
}

// NewRedisLimiter allows at most limit sends per key within window.
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{client: client, window: window, limit: limit}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now()
	redisKey := "sendwindow:" + key
	cutoff := strconv.FormatInt(now.Add(-l.window).UnixNano(), 10)

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", cutoff)
	card := pipe.ZCard(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("messaging: rate limit check %s: %w", key, err)
	}

	if card.Val() >= int64(l.limit) {
		return false, nil
	}

	member := strconv.FormatInt(now.UnixNano(), 10)
	add := l.client.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: member})
	if err := add.Err(); err != nil {
		return false, fmt.Errorf("messaging: rate limit record %s: %w", key, err)
	}
	l.client.Expire(ctx, redisKey, l.window+time.Second)
	return true, nil
}
