package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"yomibot/internal/quotes"
	"yomibot/pkg/logx"
)

func openTestStore(t *testing.T, driver string, ttl time.Duration) Store {
	t.Helper()
	ext := ".jsonl"
	if driver == "sqlite" {
		ext = ".db"
	}
	s, err := Open(Config{
		Driver:   driver,
		Path:     filepath.Join(t.TempDir(), "ledger"+ext),
		ClaimTTL: ttl,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%s): %v", driver, err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func drivers() []string { return []string{"file", "sqlite"} }

func TestClaimLifecycle(t *testing.T) {
	for _, driver := range drivers() {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			s := openTestStore(t, driver, 0)

			c, err := s.Claim(ctx, "2026-08-30", -100, quotes.Rabash)
			if err != nil {
				t.Fatalf("Claim: %v", err)
			}

			// second claim for the same slot loses
			if _, err := s.Claim(ctx, "2026-08-30", -100, quotes.Rabash); !errors.Is(err, ErrAlreadyClaimed) {
				t.Fatalf("duplicate Claim err = %v, want ErrAlreadyClaimed", err)
			}

			// other categories and channels are independent
			if _, err := s.Claim(ctx, "2026-08-30", -100, quotes.Arizal); err != nil {
				t.Fatalf("Claim other category: %v", err)
			}
			if _, err := s.Claim(ctx, "2026-08-30", -200, quotes.Rabash); err != nil {
				t.Fatalf("Claim other channel: %v", err)
			}

			if err := s.Finalize(ctx, c, "rb-001", time.Now()); err != nil {
				t.Fatalf("Finalize: %v", err)
			}

			// finalized slots stay claimed forever
			if _, err := s.Claim(ctx, "2026-08-30", -100, quotes.Rabash); !errors.Is(err, ErrAlreadyClaimed) {
				t.Fatalf("Claim after Finalize err = %v, want ErrAlreadyClaimed", err)
			}

			hist, err := s.History(ctx, quotes.Rabash)
			if err != nil {
				t.Fatalf("History: %v", err)
			}
			if len(hist) != 1 || hist[0].QuoteID != "rb-001" || hist[0].Day != "2026-08-30" {
				t.Fatalf("unexpected history: %+v", hist)
			}
		})
	}
}

func TestReleaseReopensSlot(t *testing.T) {
	for _, driver := range drivers() {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			s := openTestStore(t, driver, 0)

			c, err := s.Claim(ctx, "2026-08-30", -100, quotes.Rabash)
			if err != nil {
				t.Fatalf("Claim: %v", err)
			}
			if err := s.Release(ctx, c); err != nil {
				t.Fatalf("Release: %v", err)
			}

			c2, err := s.Claim(ctx, "2026-08-30", -100, quotes.Rabash)
			if err != nil {
				t.Fatalf("Claim after Release: %v", err)
			}

			// the released claim is dead: its token no longer finalizes
			if err := s.Finalize(ctx, c, "stale", time.Now()); !errors.Is(err, ErrConflict) {
				t.Fatalf("Finalize with released claim err = %v, want ErrConflict", err)
			}
			if err := s.Finalize(ctx, c2, "rb-001", time.Now()); err != nil {
				t.Fatalf("Finalize: %v", err)
			}
		})
	}
}

func TestExpiredLeaseIsTakenOver(t *testing.T) {
	for _, driver := range drivers() {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			s := openTestStore(t, driver, 10*time.Millisecond)

			c1, err := s.Claim(ctx, "2026-08-30", -100, quotes.Rabash)
			if err != nil {
				t.Fatalf("Claim: %v", err)
			}

			time.Sleep(25 * time.Millisecond)

			c2, err := s.Claim(ctx, "2026-08-30", -100, quotes.Rabash)
			if err != nil {
				t.Fatalf("Claim after lease expiry: %v", err)
			}

			// the superseded claim must not finalize
			if err := s.Finalize(ctx, c1, "stale", time.Now()); !errors.Is(err, ErrConflict) {
				t.Fatalf("Finalize with expired claim err = %v, want ErrConflict", err)
			}
			if err := s.Finalize(ctx, c2, "rb-001", time.Now()); err != nil {
				t.Fatalf("Finalize: %v", err)
			}
		})
	}
}

func TestHistoryOrderedBySend(t *testing.T) {
	for _, driver := range drivers() {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			s := openTestStore(t, driver, 0)

			base := time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC)
			for i, day := range []string{"2026-08-01", "2026-08-02", "2026-08-03"} {
				c, err := s.Claim(ctx, day, -100, quotes.Rabash)
				if err != nil {
					t.Fatalf("Claim %s: %v", day, err)
				}
				if err := s.Finalize(ctx, c, "rb-00"+string(rune('1'+i)), base.AddDate(0, 0, i)); err != nil {
					t.Fatalf("Finalize %s: %v", day, err)
				}
			}
			// other category must not show up in Rabash history
			c, err := s.Claim(ctx, "2026-08-01", -100, quotes.Arizal)
			if err != nil {
				t.Fatalf("Claim arizal: %v", err)
			}
			if err := s.Finalize(ctx, c, "ar-001", base); err != nil {
				t.Fatalf("Finalize arizal: %v", err)
			}

			hist, err := s.History(ctx, quotes.Rabash)
			if err != nil {
				t.Fatalf("History: %v", err)
			}
			if len(hist) != 3 {
				t.Fatalf("got %d entries, want 3", len(hist))
			}
			for i, want := range []string{"rb-001", "rb-002", "rb-003"} {
				if hist[i].QuoteID != want {
					t.Fatalf("history[%d] = %q, want %q", i, hist[i].QuoteID, want)
				}
			}
		})
	}
}

func TestHistorySubsecondSendOrder(t *testing.T) {
	for _, driver := range drivers() {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			s := openTestStore(t, driver, 0)

			// ".5" formats shorter than ".51", so a store comparing formatted
			// timestamps would invert these two sends. Day order is inverted
			// on purpose: only sent_at may decide.
			first := time.Date(2026, 8, 30, 6, 0, 0, 500_000_000, time.UTC)
			second := first.Add(10 * time.Millisecond)

			c1, err := s.Claim(ctx, "2026-08-31", -100, quotes.Rabash)
			if err != nil {
				t.Fatalf("Claim: %v", err)
			}
			if err := s.Finalize(ctx, c1, "rb-first", first); err != nil {
				t.Fatalf("Finalize first: %v", err)
			}
			c2, err := s.Claim(ctx, "2026-08-30", -100, quotes.Rabash)
			if err != nil {
				t.Fatalf("Claim: %v", err)
			}
			if err := s.Finalize(ctx, c2, "rb-second", second); err != nil {
				t.Fatalf("Finalize second: %v", err)
			}

			hist, err := s.History(ctx, quotes.Rabash)
			if err != nil {
				t.Fatalf("History: %v", err)
			}
			if len(hist) != 2 || hist[0].QuoteID != "rb-first" || hist[1].QuoteID != "rb-second" {
				t.Fatalf("history out of send order: %+v", hist)
			}
			if !hist[0].SentAt.Equal(first) || !hist[1].SentAt.Equal(second) {
				t.Fatalf("sent_at not preserved: %v, %v", hist[0].SentAt, hist[1].SentAt)
			}
		})
	}
}

func TestFileSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.jsonl")

	s, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	c, err := s.Claim(ctx, "2026-08-30", -100, quotes.Rabash)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := s.Finalize(ctx, c, "rb-001", time.Now()); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	if _, err := s2.Claim(ctx, "2026-08-30", -100, quotes.Rabash); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("Claim after reopen err = %v, want ErrAlreadyClaimed", err)
	}
	hist, err := s2.History(ctx, quotes.Rabash)
	if err != nil || len(hist) != 1 {
		t.Fatalf("history after reopen: %v, %v", hist, err)
	}
}

func TestUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "postgres", Path: "x"}, logx.Nop()); err == nil {
		t.Fatal("Open accepted an unknown driver")
	}
}
