package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"yomibot/internal/ratelimit"
	"yomibot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func Timeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if d <= 0 {
				d = 30 * time.Second
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

func PanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger := log
					if req != nil && !req.Log.IsZero() {
						logger = req.Log
					}
					logger.Error("panic recovered",
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

func RequestLog() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			d := time.Since(start)
			if err != nil {
				req.Log.Warn("request failed", logx.Duration("dur", d), logx.Err(err))
			} else {
				req.Log.Info("request ok", logx.Duration("dur", d))
			}
			return err
		}
	}
}

// RateLimit gates a handler behind the per-user sliding window. Denied
// requests get a reply telling the user when to retry; limiter backend
// errors fail open so a Redis hiccup never silences the bot.
func RateLimit(limiter ratelimit.Limiter) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if limiter == nil {
				return next(ctx, req)
			}
			dec, err := limiter.Admit(ctx, req.FromID, time.Now())
			if err != nil {
				req.Log.Warn("rate limiter unavailable, admitting", logx.Err(err))
				return next(ctx, req)
			}
			if !dec.Allowed {
				secs := int(dec.RetryAfter.Round(time.Second).Seconds())
				if secs < 1 {
					secs = 1
				}
				_, _ = req.Tx.SendText(ctx, req.Chat,
					fmt.Sprintf("⏳ יותר מדי בקשות. נסו שוב בעוד %d שניות.", secs), nil)
				return nil
			}
			return next(ctx, req)
		}
	}
}
