package broadcast

import (
	"time"

	"yomibot/internal/quotes"
)

type Config struct {
	ChannelID int64

	// SendTimeout bounds each transmitter call; on timeout the claim is
	// released and the category reported failed. Default 30s.
	SendTimeout time.Duration

	// RatePerSec paces channel sends under Telegram flood limits. Default 2.
	RatePerSec int

	// Categories defaults to the full closed set in broadcast order.
	Categories []quotes.Category
}

func (c Config) sendTimeout() time.Duration {
	if c.SendTimeout > 0 {
		return c.SendTimeout
	}
	return 30 * time.Second
}

func (c Config) ratePerSec() int {
	if c.RatePerSec > 0 {
		return c.RatePerSec
	}
	return 2
}

func (c Config) categories() []quotes.Category {
	if len(c.Categories) > 0 {
		return c.Categories
	}
	return quotes.Categories()
}

type Outcome string

const (
	// OutcomeSent: claimed, transmitted, finalized.
	OutcomeSent Outcome = "sent"
	// OutcomeSkipped: slot already claimed or finalized (duplicate trigger,
	// or a rerun hitting categories that already went out). Not a fault.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed: selection or transmission failed; the claim was
	// released so a rerun can retry this category.
	OutcomeFailed Outcome = "failed"
)

type CategoryResult struct {
	Category quotes.Category
	Outcome  Outcome
	QuoteID  string
	Err      error
}

// Report is the per-category outcome of one assembly run.
type Report struct {
	Day       string
	ChannelID int64
	Results   []CategoryResult
}

func (r Report) count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

func (r Report) Sent() int    { return r.count(OutcomeSent) }
func (r Report) Skipped() int { return r.count(OutcomeSkipped) }
func (r Report) Failed() int  { return r.count(OutcomeFailed) }
