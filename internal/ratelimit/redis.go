package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript increments the window counter and returns it with the
// remaining window in milliseconds.
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

const defaultPrefix = "microloan:rate_limit"

// RedisLimiter is a fixed-window counter shared by every API replica.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisLimiter(client redis.UniversalClient, prefix string) *RedisLimiter {
	p := strings.TrimSpace(prefix)
	if p == "" {
		p = defaultPrefix
	}
	return &RedisLimiter{client: client, prefix: strings.TrimSuffix(p, ":")}
}

// NewClient parses a redis:// URL. An empty URL yields a nil client, which
// callers treat as rate limiting disabled.
func NewClient(redisURL string) (*redis.Client, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Ping reports whether the shared counter store is reachable.
func (r *RedisLimiter) Ping(ctx context.Context) error {
	if r == nil || r.client == nil {
		return errors.New("redis limiter not configured")
	}
	return r.client.Ping(ctx).Err()
}

func (r *RedisLimiter) Key(scope, subject string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, scope, subject)
}

// Consume counts one hit for scope/subject and returns the count within the
// current window plus the seconds until it resets. A nil limiter, blank key
// parts or a non-positive window count nothing.
func (r *RedisLimiter) Consume(ctx context.Context, scope, subject string, window time.Duration) (count int, retryAfterSeconds int, err error) {
	if r == nil || r.client == nil || window <= 0 {
		return 0, 0, nil
	}
	scope = strings.TrimSpace(scope)
	subject = strings.TrimSpace(subject)
	if scope == "" || subject == "" {
		return 0, 0, nil
	}

	windowMs := window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	raw, err := fixedWindowScript.Run(ctx, r.client, []string{r.Key(scope, subject)}, windowMs).Result()
	if err != nil {
		return 0, 0, err
	}
	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected redis limiter response shape: %T", raw)
	}
	current, ok := values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected redis limiter count type: %T", values[0])
	}
	ttlMs, ok := values[1].(int64)
	if !ok {
		return int(current), 0, fmt.Errorf("unexpected redis limiter ttl type: %T", values[1])
	}
	if ttlMs < 0 {
		ttlMs = windowMs
	}
	return int(current), retryAfter(ttlMs), nil
}

func retryAfter(ttlMs int64) int {
	s := int(math.Ceil(float64(ttlMs) / 1000.0))
	if s < 1 {
		return 1
	}
	return s
}
