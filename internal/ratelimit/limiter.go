// Package ratelimit implements a per-client fixed-window request limiter
// backed by Redis, so the budget is shared across service instances.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Shivanand-hulikatti/bookable/internal/clock"
)

const keyPrefix = "ratelimit:"

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetIn   time.Duration
}

// Limiter allows at most limit requests per key in each window.
type Limiter struct {
	client redis.Cmdable
	limit  int
	window time.Duration
	clock  clock.Clock
}

func NewLimiter(client redis.Cmdable, limit int, window time.Duration, clk clock.Clock) *Limiter {
	return &Limiter{client: client, limit: limit, window: window, clock: clk}
}

// Allow counts one request for key in the current window.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.clock.Now()
	windowStart := now.Truncate(l.window)
	resetIn := windowStart.Add(l.window).Sub(now)
	redisKey := fmt.Sprintf("%s%s:%d", keyPrefix, key, windowStart.Unix())

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, l.window)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("redis incr: %w", err)
	}

	count := int(incr.Val())
	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   count <= l.limit,
		Limit:     l.limit,
		Remaining: remaining,
		ResetIn:   resetIn,
	}, nil
}
