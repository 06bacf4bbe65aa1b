package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// rateLimiter is a fixed-window counter shared across every worker
// process via Redis INCR+EXPIRE, enforcing the per-queue caps of §4.6
// (initial-sync <=10/60s, incremental-sync <=20/60s).
type rateLimiter struct {
	client    *redis.Client
	key       string
	limit     int
	window    time.Duration
}

func newRateLimiter(client *redis.Client, queue string, limitPerMinute int) *rateLimiter {
	if limitPerMinute <= 0 {
		return nil
	}
	return &rateLimiter{
		client: client,
		key:    fmt.Sprintf("mailmirror:ratelimit:%s", queue),
		limit:  limitPerMinute,
		window: time.Minute,
	}
}

// allow increments the current window's counter and reports whether the
// caller is still within budget.
func (r *rateLimiter) allow(ctx context.Context) (bool, error) {
	windowKey := fmt.Sprintf("%s:%d", r.key, time.Now().Unix()/int64(r.window.Seconds()))

	count, err := r.client.Incr(ctx, windowKey).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		r.client.Expire(ctx, windowKey, r.window)
	}
	return count <= int64(r.limit), nil
}
