package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	redisx "github.com/lahjaprojekti/lahja-go/internal/redis"
)

// Sliding window over an ordered set of hit timestamps. Atomic in Redis so
// concurrent requests from the same caller cannot both slip under the limit.
// KEYS[1] = window key
// ARGV[1] = now_ms, ARGV[2] = window_ms, ARGV[3] = limit, ARGV[4] = hit id
const slidingWindowScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
redis.call('ZADD', key, 'NX', now, ARGV[4])
local count = redis.call('ZCARD', key)
redis.call('PEXPIRE', key, window)

if count > limit then
  local earliest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  local score = tonumber(earliest[2]) or (now - window)
  local retry = window - (now - score)
  if retry < 0 then retry = 0 end
  return {0, count, retry}
end
return {1, count, 0}
`

// SlidingWindowLimiter throttles reservation submissions per caller key.
type SlidingWindowLimiter struct {
	rdb    *redis.Client
	prefix string
	limit  int
	window time.Duration
	script *redis.Script
}

func NewSlidingWindowLimiter(
	rdb *redis.Client,
	prefix string,
	limit int,
	window time.Duration,
) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		rdb:    rdb,
		prefix: prefix,
		limit:  limit,
		window: window,
		script: redis.NewScript(slidingWindowScript),
	}
}

// Allow records a hit for the caller and reports whether it fit inside the
// window, with a retry hint when it did not.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, callerKey string) (allowed bool, current int64, retryAfter time.Duration, err error) {
	key := redisx.KeyRateLimit(l.prefix, callerKey)

	res, err := l.script.Run(
		ctx,
		l.rdb,
		[]string{key},
		time.Now().UnixMilli(),
		l.window.Milliseconds(),
		l.limit,
		hitID(),
	).Result()
	if err != nil {
		return false, 0, 0, err
	}

	arr, ok := res.([]any)
	if !ok || len(arr) != 3 {
		return false, 0, 0, fmt.Errorf("ratelimit: bad script result: %v", res)
	}

	allowed = asInt64(arr[0]) == 1
	current = asInt64(arr[1])
	retryAfter = time.Duration(asInt64(arr[2])) * time.Millisecond

	return allowed, current, retryAfter, nil
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		var x int64
		fmt.Sscan(t, &x)
		return x
	default:
		return 0
	}
}

// hitID makes each ZADD member unique so two hits in the same millisecond
// both count.
func hitID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
