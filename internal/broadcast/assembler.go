// Package broadcast assembles and delivers the daily bundle: one quote per
// category, claimed and finalized through the ledger so a day's broadcast
// happens exactly once per channel no matter how many times the trigger
// fires.
package broadcast

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"yomibot/internal/format"
	"yomibot/internal/ledger"
	"yomibot/internal/quotes"
	"yomibot/internal/rotation"
	kit "yomibot/internal/transport"
	"yomibot/pkg/logx"
)

type Assembler struct {
	cfg Config
	sel *rotation.Selector
	led ledger.Store
	tx  kit.Transmitter
	log logx.Logger

	// pacer spreads channel sends out the way the Telegram flood limiter
	// expects; shared across runs.
	pacer *rate.Limiter
}

func New(cfg Config, sel *rotation.Selector, led ledger.Store, tx kit.Transmitter, log logx.Logger) *Assembler {
	if log.IsZero() {
		log = logx.Nop()
	}
	rps := cfg.ratePerSec()
	return &Assembler{
		cfg:   cfg,
		sel:   sel,
		led:   led,
		tx:    tx,
		log:   log,
		pacer: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Run assembles and sends the bundle for the given calendar day.
//
// Each category is processed independently: claim the (day, channel,
// category) slot, select deterministically, send, finalize. A failure in
// one category releases only that category's claim and does not abort the
// others, so a rerun retries exactly the categories that did not finalize.
func (a *Assembler) Run(ctx context.Context, day time.Time) (Report, error) {
	dateKey := day.Format(time.DateOnly)
	report := Report{Day: dateKey, ChannelID: a.cfg.ChannelID}

	// Claim phase. Losing a claim is the idempotency protocol working, not
	// an error: a duplicate trigger (daylight-saving dual fire) or a rerun
	// over already-sent categories lands here.
	type claimed struct {
		cat   quotes.Category
		claim ledger.Claim
	}
	var won []claimed
	for _, cat := range a.cfg.categories() {
		c, err := a.led.Claim(ctx, dateKey, a.cfg.ChannelID, cat)
		switch {
		case errors.Is(err, ledger.ErrAlreadyClaimed):
			a.log.Debug("slot already claimed", logx.String("category", string(cat)), logx.String("day", dateKey))
			report.Results = append(report.Results, CategoryResult{Category: cat, Outcome: OutcomeSkipped})
		case err != nil:
			report.Results = append(report.Results, CategoryResult{Category: cat, Outcome: OutcomeFailed, Err: err})
		default:
			won = append(won, claimed{cat: cat, claim: c})
			report.Results = append(report.Results, CategoryResult{Category: cat})
		}
	}

	if len(won) == 0 {
		a.log.Info("nothing to send", logx.String("day", dateKey),
			logx.Int("skipped", report.Skipped()), logx.Int("failed", report.Failed()))
		return report, nil
	}

	target := kit.ChatTarget{ChatID: a.cfg.ChannelID}

	// Header failure means the channel is unreachable; release everything
	// so the day stays retryable.
	if err := a.send(ctx, target, format.DailyHeader(day), nil); err != nil {
		for _, w := range won {
			a.release(w.claim)
			a.fill(&report, w.cat, CategoryResult{Category: w.cat, Outcome: OutcomeFailed, Err: err})
		}
		return report, err
	}

	for _, w := range won {
		res := a.deliver(ctx, w.cat, w.claim, dateKey, target)
		a.fill(&report, w.cat, res)
	}

	// Footer is decoration; its failure doesn't change any outcome.
	if err := a.send(ctx, target, format.DailyFooter(), nil); err != nil {
		a.log.Warn("footer send failed", logx.Err(err))
	}

	a.log.Info("broadcast finished",
		logx.String("day", dateKey),
		logx.Int64("channel_id", a.cfg.ChannelID),
		logx.Int("sent", report.Sent()),
		logx.Int("skipped", report.Skipped()),
		logx.Int("failed", report.Failed()))
	return report, nil
}

func (a *Assembler) deliver(ctx context.Context, cat quotes.Category, claim ledger.Claim, dateKey string, target kit.ChatTarget) CategoryResult {
	q, err := a.sel.SelectDeterministic(ctx, cat, dateKey)
	if err != nil {
		a.release(claim)
		return CategoryResult{Category: cat, Outcome: OutcomeFailed, Err: err}
	}

	opt := &kit.SendOptions{
		ParseMode:          "HTML",
		DisablePreview:     true,
		ReplyMarkupAdapter: format.SourceKeyboard(q),
	}
	if err := a.send(ctx, target, format.QuoteMessage(q), opt); err != nil {
		a.release(claim)
		a.log.Warn("quote send failed",
			logx.String("category", string(cat)), logx.String("quote_id", q.ID), logx.Err(err))
		return CategoryResult{Category: cat, Outcome: OutcomeFailed, Err: err}
	}

	if err := a.led.Finalize(ctx, claim, q.ID, time.Now()); err != nil {
		// The message went out but the entry didn't commit (lease expired
		// mid-send). Report failed so the operator sees it; the ledger
		// stays consistent either way.
		a.log.Error("finalize failed after send",
			logx.String("category", string(cat)), logx.String("quote_id", q.ID), logx.Err(err))
		return CategoryResult{Category: cat, Outcome: OutcomeFailed, QuoteID: q.ID, Err: err}
	}

	a.log.Info("quote sent",
		logx.String("category", string(cat)), logx.String("quote_id", q.ID), logx.String("day", dateKey))
	return CategoryResult{Category: cat, Outcome: OutcomeSent, QuoteID: q.ID}
}

// send paces and bounds one transmitter call.
func (a *Assembler) send(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) error {
	if err := a.pacer.Wait(ctx); err != nil {
		return err
	}
	sctx, cancel := context.WithTimeout(ctx, a.cfg.sendTimeout())
	defer cancel()
	_, err := a.tx.SendText(sctx, to, text, opt)
	return err
}

func (a *Assembler) release(c ledger.Claim) {
	// Release must not be lost to a canceled run context.
	rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.led.Release(rctx, c); err != nil {
		a.log.Warn("claim release failed", logx.String("category", string(c.Category)), logx.Err(err))
	}
}

func (a *Assembler) fill(r *Report, cat quotes.Category, res CategoryResult) {
	for i := range r.Results {
		if r.Results[i].Category == cat {
			r.Results[i] = res
			return
		}
	}
	r.Results = append(r.Results, res)
}
