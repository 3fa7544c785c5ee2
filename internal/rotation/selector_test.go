package rotation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"yomibot/internal/ledger"
	"yomibot/internal/quotes"
	"yomibot/pkg/logx"
)

const testChannel int64 = -100200300

// newFixtures builds a quote store with n records in the Rabash category and
// an empty file-backed ledger.
func newFixtures(t *testing.T, n int) (*quotes.Store, ledger.Store) {
	t.Helper()
	dir := t.TempDir()

	doc := `{"category": "rabash", "quotes": [`
	for i := 0; i < n; i++ {
		if i > 0 {
			doc += ","
		}
		doc += fmt.Sprintf(`{"id": "rb-%03d", "text": "quote %d", "source_url": "https://example.org/%d"}`, i+1, i+1, i+1)
	}
	doc += `]}`
	if err := os.WriteFile(filepath.Join(dir, "rabash.json"), []byte(doc), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	store, err := quotes.Load(dir, logx.Nop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	led, err := ledger.Open(ledger.Config{
		Driver: "file",
		Path:   filepath.Join(dir, "ledger.jsonl"),
	}, logx.Nop())
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() { _ = led.Close() })

	return store, led
}

// record finalizes a delivery so it shows up in history.
func record(t *testing.T, led ledger.Store, day string, q quotes.Quote) {
	t.Helper()
	ctx := context.Background()
	c, err := led.Claim(ctx, day, testChannel, q.Category)
	if err != nil {
		t.Fatalf("Claim %s: %v", day, err)
	}
	if err := led.Finalize(ctx, c, q.ID, time.Now()); err != nil {
		t.Fatalf("Finalize %s: %v", day, err)
	}
}

func TestSelectDeterministicIsStable(t *testing.T) {
	store, led := newFixtures(t, 5)
	sel := New(store, led, logx.Nop())
	ctx := context.Background()

	first, err := sel.SelectDeterministic(ctx, quotes.Rabash, "2026-08-30")
	if err != nil {
		t.Fatalf("SelectDeterministic: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := sel.SelectDeterministic(ctx, quotes.Rabash, "2026-08-30")
		if err != nil {
			t.Fatalf("SelectDeterministic: %v", err)
		}
		if again.ID != first.ID {
			t.Fatalf("same day yielded %q then %q", first.ID, again.ID)
		}
	}
}

func TestNoRepeatWithinCycle(t *testing.T) {
	const n = 4
	store, led := newFixtures(t, n)
	sel := New(store, led, logx.Nop())
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		day := fmt.Sprintf("2026-08-%02d", i+1)
		q, err := sel.SelectDeterministic(ctx, quotes.Rabash, day)
		if err != nil {
			t.Fatalf("day %s: %v", day, err)
		}
		if seen[q.ID] {
			t.Fatalf("day %s repeated %q before the cycle was exhausted", day, q.ID)
		}
		seen[q.ID] = true
		record(t, led, day, q)
	}
	if len(seen) != n {
		t.Fatalf("cycle covered %d of %d records", len(seen), n)
	}

	// exhausted cycle resets: the next pick comes from the full set again
	q, err := sel.SelectDeterministic(ctx, quotes.Rabash, "2026-09-01")
	if err != nil {
		t.Fatalf("after reset: %v", err)
	}
	if !seen[q.ID] {
		t.Fatalf("reset pick %q was not in the record set", q.ID)
	}
}

func TestSelectForDayMatchesChannelAfterFinalize(t *testing.T) {
	store, led := newFixtures(t, 5)
	sel := New(store, led, logx.Nop())
	ctx := context.Background()
	const day = "2026-08-30"

	// before the broadcast runs, the replay equals the deterministic pick
	pick, err := sel.SelectForDay(ctx, quotes.Rabash, day)
	if err != nil {
		t.Fatalf("SelectForDay: %v", err)
	}
	det, err := sel.SelectDeterministic(ctx, quotes.Rabash, day)
	if err != nil {
		t.Fatalf("SelectDeterministic: %v", err)
	}
	if pick.ID != det.ID {
		t.Fatalf("before finalize SelectForDay = %q, SelectDeterministic = %q", pick.ID, det.ID)
	}

	record(t, led, day, pick)

	// finalizing removes the sent record from the candidate set, moving the
	// deterministic pick; the replay must keep showing what the channel got
	shifted, err := sel.SelectDeterministic(ctx, quotes.Rabash, day)
	if err != nil {
		t.Fatalf("SelectDeterministic after finalize: %v", err)
	}
	if shifted.ID == pick.ID {
		t.Fatalf("deterministic pick did not move after finalize; fixture broken")
	}
	after, err := sel.SelectForDay(ctx, quotes.Rabash, day)
	if err != nil {
		t.Fatalf("SelectForDay after finalize: %v", err)
	}
	if after.ID != pick.ID {
		t.Fatalf("SelectForDay = %q after finalize, channel got %q", after.ID, pick.ID)
	}
}

func TestSelectForDayFallsBackWhenRecordRemoved(t *testing.T) {
	store, led := newFixtures(t, 3)
	sel := New(store, led, logx.Nop())
	ctx := context.Background()
	const day = "2026-08-30"

	// the day's sent record is gone from the files (reload removed it)
	c, err := led.Claim(ctx, day, testChannel, quotes.Rabash)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := led.Finalize(ctx, c, "rb-gone", time.Now()); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	q, err := sel.SelectForDay(ctx, quotes.Rabash, day)
	if err != nil {
		t.Fatalf("SelectForDay: %v", err)
	}
	det, err := sel.SelectDeterministic(ctx, quotes.Rabash, day)
	if err != nil {
		t.Fatalf("SelectDeterministic: %v", err)
	}
	if q.ID != det.ID {
		t.Fatalf("SelectForDay = %q, want deterministic fallback %q", q.ID, det.ID)
	}
}

func TestCycleCompletionLoggedAtReset(t *testing.T) {
	store, led := newFixtures(t, 2)
	var buf bytes.Buffer
	sel := New(store, led, logx.NewWriter(&buf, "info"))
	ctx := context.Background()
	all := store.Lookup(quotes.Rabash)

	record(t, led, "2026-08-01", all[0])
	if _, err := sel.SelectRandom(ctx, quotes.Rabash); err != nil {
		t.Fatalf("SelectRandom: %v", err)
	}
	if strings.Contains(buf.String(), "rotation cycle completed") {
		t.Fatalf("completion logged before the cycle was exhausted:\n%s", buf.String())
	}

	// the last send closes the cycle; the next scan announces it once
	record(t, led, "2026-08-02", all[1])
	q, err := sel.SelectRandom(ctx, quotes.Rabash)
	if err != nil {
		t.Fatalf("SelectRandom after exhaustion: %v", err)
	}
	if n := strings.Count(buf.String(), "rotation cycle completed"); n != 1 {
		t.Fatalf("completion logged %d times, want 1:\n%s", n, buf.String())
	}

	// once the next cycle has a send, the old completion is not re-announced
	record(t, led, "2026-08-03", q)
	buf.Reset()
	if _, err := sel.SelectRandom(ctx, quotes.Rabash); err != nil {
		t.Fatalf("SelectRandom in new cycle: %v", err)
	}
	if strings.Contains(buf.String(), "rotation cycle completed") {
		t.Fatalf("stale completion re-announced:\n%s", buf.String())
	}
}

func TestSelectRandomSkipsUsed(t *testing.T) {
	store, led := newFixtures(t, 3)
	sel := New(store, led, logx.Nop())
	ctx := context.Background()

	all := store.Lookup(quotes.Rabash)
	record(t, led, "2026-08-01", all[0])
	record(t, led, "2026-08-02", all[1])

	// only one candidate is left; random selection must land on it
	for i := 0; i < 20; i++ {
		q, err := sel.SelectRandom(ctx, quotes.Rabash)
		if err != nil {
			t.Fatalf("SelectRandom: %v", err)
		}
		if q.ID != all[2].ID {
			t.Fatalf("SelectRandom picked used record %q", q.ID)
		}
	}
}

func TestEmptyCategory(t *testing.T) {
	store, led := newFixtures(t, 2)
	sel := New(store, led, logx.Nop())

	_, err := sel.SelectDeterministic(context.Background(), quotes.Kotzker, "2026-08-30")
	if !errors.Is(err, ErrEmptyCategory) {
		t.Fatalf("err = %v, want ErrEmptyCategory", err)
	}
	_, err = sel.SelectRandom(context.Background(), quotes.Kotzker)
	if !errors.Is(err, ErrEmptyCategory) {
		t.Fatalf("err = %v, want ErrEmptyCategory", err)
	}
}

func TestUnknownHistoryIDsIgnored(t *testing.T) {
	store, led := newFixtures(t, 2)
	sel := New(store, led, logx.Nop())
	ctx := context.Background()

	// a record that was since removed from the files
	c, err := led.Claim(ctx, "2026-07-01", testChannel, quotes.Rabash)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := led.Finalize(ctx, c, "rb-deleted", time.Now()); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	all := store.Lookup(quotes.Rabash)
	record(t, led, "2026-07-02", all[0])

	// the unknown id must not count toward cycle exhaustion
	q, err := sel.SelectRandom(ctx, quotes.Rabash)
	if err != nil {
		t.Fatalf("SelectRandom: %v", err)
	}
	if q.ID != all[1].ID {
		t.Fatalf("picked %q, want the one unused record %q", q.ID, all[1].ID)
	}
}

func TestDateIndexDistribution(t *testing.T) {
	// not a statistical test, just a guard against a constant hash
	a := dateIndex("2026-08-30", quotes.Rabash)
	b := dateIndex("2026-08-31", quotes.Rabash)
	c := dateIndex("2026-08-30", quotes.Arizal)
	if a == b && b == c {
		t.Fatalf("dateIndex is constant: %d", a)
	}
}
