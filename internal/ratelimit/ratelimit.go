package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	redisv9 "github.com/redis/go-redis/v9"
)

type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// NopLimiter allows everything. It stands in when no Redis is configured.
type NopLimiter struct{}

func (NopLimiter) Allow(context.Context, string) (Decision, error) {
	return Decision{Allowed: true}, nil
}

// RedisLimiter is a sliding window over a sorted set per key, scored by
// request time in milliseconds.
type RedisLimiter struct {
	client *redisv9.Client
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

func NewRedisLimiter(client *redisv9.Client, limit int, window time.Duration) *RedisLimiter {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: "ratelimit:chat:",
		now:    time.Now,
	}
}

// slidingWindow trims expired entries and records the request only while the
// window has room, in one atomic step. It returns {1, 0} when allowed and
// {0, oldestScore} when not.
var slidingWindow = redisv9.NewScript(`
local key = KEYS[1]
redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[2])
if redis.call('ZCARD', key) >= tonumber(ARGV[4]) then
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	if #oldest == 0 then
		return {0, tonumber(ARGV[1])}
	end
	return {0, tonumber(oldest[2])}
end
redis.call('ZADD', key, ARGV[1], ARGV[5])
redis.call('PEXPIRE', key, ARGV[3])
return {1, 0}
`)

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	nowMs := l.now().UnixMilli()
	windowMs := l.window.Milliseconds()
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()

	// ARGV: now, window start, window length, limit, member.
	res, err := slidingWindow.Run(ctx, l.client, []string{l.prefix + key},
		nowMs, nowMs-windowMs, windowMs, l.limit, member).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("redis rate limit failed: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("redis rate limit: unexpected reply %v", res)
	}
	if res[0] == 1 {
		return Decision{Allowed: true}, nil
	}
	return Decision{Allowed: false, RetryAfter: retryAfter(res[1], nowMs, l.window)}, nil
}

// retryAfter is the time until the oldest entry leaves the window, at least one second.
func retryAfter(oldestMs, nowMs int64, window time.Duration) time.Duration {
	wait := time.Duration(oldestMs+window.Milliseconds()-nowMs) * time.Millisecond
	if wait < time.Second {
		return time.Second
	}
	return wait.Round(time.Second)
}
