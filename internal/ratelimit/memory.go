package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Memory is the process-local sliding-window limiter.
//
// Timestamps older than the window are dropped lazily whenever a user's
// entry is touched, so memory only grows with active users; StartJanitor
// adds a periodic sweep to bound memory for users that went quiet.
type Memory struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	entries map[int64][]time.Time
}

func NewMemory(cfg Config) *Memory {
	return &Memory{
		limit:   cfg.limit(),
		window:  cfg.window(),
		entries: make(map[int64][]time.Time),
	}
}

func (m *Memory) Admit(ctx context.Context, userID int64, now time.Time) (Decision, error) {
	_ = ctx
	cutoff := now.Add(-m.window)

	m.mu.Lock()
	defer m.mu.Unlock()

	recent := prune(m.entries[userID], cutoff)

	if len(recent) >= m.limit {
		m.entries[userID] = recent
		return Decision{RetryAfter: m.window - now.Sub(recent[0])}, nil
	}

	m.entries[userID] = append(recent, now)
	return Decision{Allowed: true}, nil
}

// prune drops timestamps at or before cutoff, keeping order (oldest first).
func prune(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0:0], ts[i:]...)
}

// StartJanitor sweeps fully-expired users periodically until ctx is done.
func (m *Memory) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = 2 * time.Minute
	}
	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.sweep(time.Now())
			}
		}
	}()
}

func (m *Memory) sweep(now time.Time) {
	cutoff := now.Add(-m.window)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ts := range m.entries {
		if kept := prune(ts, cutoff); len(kept) == 0 {
			delete(m.entries, id)
		} else {
			m.entries[id] = kept
		}
	}
}

func (m *Memory) Close() error { return nil }
