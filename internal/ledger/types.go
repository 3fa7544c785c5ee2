package ledger

import (
	"context"
	"errors"
	"time"

	"yomibot/internal/quotes"
)

var (
	// ErrAlreadyClaimed reports that the slot is finalized or held by a live
	// claim. Not a fault: it tells the caller to skip sending for this key.
	ErrAlreadyClaimed = errors.New("delivery slot already claimed")

	// ErrConflict reports a finalize/release whose claim is no longer held
	// (lease expired and taken over, or already finalized elsewhere).
	ErrConflict = errors.New("claim no longer held")
)

// Entry is one finalized delivery: this quote was sent to this channel for
// this calendar day. Entries are never mutated or deleted.
type Entry struct {
	Day       string          `json:"day"` // calendar date key, "2006-01-02"
	ChannelID int64           `json:"channel_id"`
	Category  quotes.Category `json:"category"`
	QuoteID   string          `json:"quote_id"`
	SentAt    time.Time       `json:"sent_at_utc"`
}

// Claim is a provisional reservation of a delivery slot, reversible until
// finalized. The token ties finalize/release to the claim that won the race.
type Claim struct {
	Day       string
	ChannelID int64
	Category  quotes.Category

	token string
}

// Store is the durable claim/finalize/history API.
//
// Claim must be atomic against concurrent callers for the same key; cross-key
// operations may proceed concurrently. History returns finalized entries for
// a category in send order (oldest first).
type Store interface {
	Claim(ctx context.Context, day string, channelID int64, cat quotes.Category) (Claim, error)
	Finalize(ctx context.Context, c Claim, quoteID string, sentAt time.Time) error
	Release(ctx context.Context, c Claim) error
	History(ctx context.Context, cat quotes.Category) ([]Entry, error)
	Close() error
}

// Config selects and configures a ledger driver.
//
// Driver values:
//   - "sqlite": SQLite database file; required when the scheduler job and the
//     interactive bot run as separate processes.
//   - "file": jsonl journal of finalized entries with in-process claims;
//     single-instance deployments and tests.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	ClaimTTL    time.Duration // claim lease; 0 means default (5m)
}

const defaultClaimTTL = 5 * time.Minute

func (c Config) claimTTL() time.Duration {
	if c.ClaimTTL > 0 {
		return c.ClaimTTL
	}
	return defaultClaimTTL
}
