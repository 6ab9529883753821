// Package ratelimit provides a Redis-backed fixed-window request limiter.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisTimeout = 2 * time.Second

// incrWithExpiry bumps the window counter and arms its expiry on first use.
var incrWithExpiry = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// FixedWindowLimiter counts requests per key inside fixed time windows
// shared across service replicas through Redis.
type FixedWindowLimiter struct {
	limit  int
	window time.Duration
	prefix string
	client *redis.Client
}

// NewRedisFixedWindowLimiter builds a limiter allowing `limit` requests
// per key per `window`.
func NewRedisFixedWindowLimiter(addr, password, prefix string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("rate limiter redis addr is required")
	}
	if prefix = strings.TrimSpace(prefix); prefix == "" {
		prefix = "bookbazaar:ratelimit"
	}
	return &FixedWindowLimiter{
		limit:  limit,
		window: window,
		prefix: prefix,
		client: redis.NewClient(&redis.Options{Addr: strings.TrimSpace(addr), Password: password}),
	}, nil
}

// Allow reports whether the key is still within quota for the current
// window. Redis failures count as a denial: an unreachable limiter must
// not turn into an open door on the auth endpoints.
func (l *FixedWindowLimiter) Allow(key string) bool {
	if l == nil {
		return false
	}
	if key = strings.TrimSpace(key); key == "" {
		key = "unknown"
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	count, err := incrWithExpiry.Run(ctx, l.client, []string{l.windowKey(key)}, l.window.Milliseconds()).Int64()
	if err != nil {
		return false
	}
	return count <= int64(l.limit)
}

func (l *FixedWindowLimiter) windowKey(key string) string {
	slot := time.Now().UTC().UnixMilli() / l.window.Milliseconds()
	return fmt.Sprintf("%s:%s:%d", l.prefix, key, slot)
}
