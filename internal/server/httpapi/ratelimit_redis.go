package httpapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KEYS[1] counter; ARGV[1] limit; ARGV[2] window in ms.
// Returns {allowed, retry_ms}.
var redisAllowScript = redis.NewScript(`
local limit = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current >= limit then
  local ttl = redis.call("PTTL", KEYS[1])
  if ttl < 0 then
    redis.call("PEXPIRE", KEYS[1], window_ms)
    ttl = window_ms
  end
  return {0, ttl}
end
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], window_ms)
end
return {1, 0}
`)

var redisReleaseScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current > 0 then
  redis.call("DECR", KEYS[1])
end
return 0
`)

// RedisLimiter shares fixed-window counters between server instances.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisLimiter(client redis.UniversalClient, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisLimiter{client: client, prefix: prefix}
}

func (l *RedisLimiter) storeKey(key string) string {
	if key == "" {
		key = "unknown"
	}
	return l.prefix + ":" + key
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	if l.client == nil {
		return false, 0, errors.New("redis client is nil")
	}
	windowMS := window.Milliseconds()
	if windowMS <= 0 {
		windowMS = 1000
	}

	values, err := redisAllowScript.Run(ctx, l.client, []string{l.storeKey(key)}, limit, windowMS).Int64Slice()
	if err != nil {
		return false, 0, err
	}
	if len(values) != 2 {
		return false, 0, fmt.Errorf("unexpected redis script response: %v", values)
	}

	return values[0] == 1, time.Duration(values[1]) * time.Millisecond, nil
}

func (l *RedisLimiter) Release(ctx context.Context, key string) error {
	if l.client == nil {
		return errors.New("redis client is nil")
	}
	return redisReleaseScript.Run(ctx, l.client, []string{l.storeKey(key)}).Err()
}
