package limits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrLimitExceeded = errors.New("rate limit exceeded")

// RateLimiter enforces fixed-window request counts in Redis, so limits hold
// across console replicas.
type RateLimiter struct {
	client *redis.Client
	now    func() time.Time
}

func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client, now: time.Now}
}

// AllowPerMinute counts one event for key and fails once limit is passed
// within the current minute. A limit <= 0 disables the check.
func (l *RateLimiter) AllowPerMinute(ctx context.Context, key string, limit int) error {
	if l == nil || l.client == nil || limit <= 0 {
		return nil
	}
	return l.countCheck(ctx, fmt.Sprintf("rpm:%s", key), time.Minute, limit)
}

func (l *RateLimiter) countCheck(ctx context.Context, key string, ttl time.Duration, limit int) error {
	bucket := l.now().UTC().Unix() / int64(ttl.Seconds())
	redisKey := fmt.Sprintf("%s:%d", key, bucket)

	cnt, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return err
	}
	if cnt == 1 {
		l.client.Expire(ctx, redisKey, ttl)
	}
	if int(cnt) > limit {
		return ErrLimitExceeded
	}
	return nil
}
