// Package ratelimit bounds per-user request volume with a sliding window:
// at most Limit admitted requests within the trailing Window.
//
// Unlike a token bucket, the sliding window can tell a denied user exactly
// when to come back (retry-after = window minus the age of the oldest
// admitted timestamp), which is surfaced in the bot's reply.
package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"

	"yomibot/pkg/logx"
)

// Decision is the outcome of an admission check.
// RetryAfter is only meaningful when Allowed is false.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter admits or rejects on-demand requests per user.
type Limiter interface {
	Admit(ctx context.Context, userID int64, now time.Time) (Decision, error)
	Close() error
}

// Config selects and configures a limiter driver.
//
// Driver values:
//   - "memory": process-local window (single bot instance)
//   - "redis": shared window in Redis (multiple bot instances)
type Config struct {
	Driver string
	Limit  int
	Window time.Duration

	RedisAddr   string
	RedisDB     int
	RedisPrefix string
}

const (
	defaultLimit  = 5
	defaultWindow = time.Minute
)

func (c Config) limit() int {
	if c.Limit > 0 {
		return c.Limit
	}
	return defaultLimit
}

func (c Config) window() time.Duration {
	if c.Window > 0 {
		return c.Window
	}
	return defaultWindow
}

// Open initializes the configured limiter.
func Open(cfg Config, log logx.Logger) (Limiter, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return NewMemory(cfg), nil
	case "redis":
		return newRedis(cfg, log)
	default:
		return nil, errors.New("unknown ratelimit driver: " + cfg.Driver)
	}
}
