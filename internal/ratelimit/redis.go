package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"yomibot/pkg/logx"
)

// admitScript trims the window, checks the cap, and records the admit in
// one atomic step, so racing instances cannot overshoot the shared limit
// between a read and a write. On denial it returns the oldest score in the
// window so the caller can compute the retry delay.
//
// KEYS[1] window set, ARGV: min score, limit, now (unix-nano), ttl millis.
var admitScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[2]) then
	local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
	return {0, oldest[2]}
end
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return {1}
`)

// redisLimiter keeps one sorted set per user, scored by unix-nano admit
// time. The window is shared across bot instances, which is required when
// the interactive service runs replicated (a per-process window would
// multiply the effective limit).
type redisLimiter struct {
	rdb    *redis.Client
	log    logx.Logger
	prefix string
	limit  int
	window time.Duration
}

func newRedis(cfg Config, log logx.Logger) (Limiter, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("ratelimit.redis_addr is required for redis driver")
	}
	prefix := strings.Trim(cfg.RedisPrefix, ":")
	if prefix == "" {
		prefix = "yomibot:ratelimit"
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.RedisDB})
	return &redisLimiter{
		rdb:    rdb,
		log:    log,
		prefix: prefix,
		limit:  cfg.limit(),
		window: cfg.window(),
	}, nil
}

func (l *redisLimiter) key(userID int64) string {
	return fmt.Sprintf("%s:%d", l.prefix, userID)
}

func (l *redisLimiter) Admit(ctx context.Context, userID int64, now time.Time) (Decision, error) {
	minScore := strconv.FormatInt(now.Add(-l.window).UnixNano(), 10)
	nowScore := strconv.FormatInt(now.UnixNano(), 10)

	reply, err := admitScript.Run(ctx, l.rdb, []string{l.key(userID)},
		minScore, l.limit, nowScore, l.window.Milliseconds()).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit redis: %w", err)
	}
	return admitDecision(reply, now, l.window)
}

// admitDecision maps the script reply onto a Decision. Denials carry the
// oldest window score as a string; scores travel as floats, so very old
// entries lose nano precision, which only rounds the retry hint.
func admitDecision(reply any, now time.Time, window time.Duration) (Decision, error) {
	arr, ok := reply.([]any)
	if !ok || len(arr) == 0 {
		return Decision{}, fmt.Errorf("ratelimit redis: unexpected reply %T", reply)
	}
	allowed, ok := arr[0].(int64)
	if !ok {
		return Decision{}, fmt.Errorf("ratelimit redis: unexpected reply element %T", arr[0])
	}
	if allowed == 1 {
		return Decision{Allowed: true}, nil
	}

	retry := window
	if len(arr) > 1 {
		if s, ok := arr[1].(string); ok {
			if score, err := strconv.ParseFloat(s, 64); err == nil {
				retry = window - now.Sub(time.Unix(0, int64(score)))
				if retry < 0 {
					retry = 0
				}
			}
		}
	}
	return Decision{RetryAfter: retry}, nil
}

func (l *redisLimiter) Close() error { return l.rdb.Close() }
