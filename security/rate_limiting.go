package security

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a Redis-backed fixed-window request limiter used on the
// public status endpoint. Provider callback deliveries are never limited.
type RateLimiter struct {
	redis  *redis.Client
	limit  int64
	window time.Duration
}

func NewRateLimiter(redisClient *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient,
		limit:  int64(limit),
		window: window,
	}
}

// Allow reports whether another request under scope+key fits into the
// current window. Redis being unavailable never blocks traffic.
func (r *RateLimiter) Allow(ctx context.Context, scope, key string) bool {
	if r.redis == nil {
		return true
	}

	redisKey := fmt.Sprintf("ratelimit:%s:%s", scope, key)

	count, err := r.redis.Incr(ctx, redisKey).Result()
	if err != nil {
		return true
	}
	if count == 1 {
		r.redis.Expire(ctx, redisKey, r.window)
	}

	return count <= r.limit
}
