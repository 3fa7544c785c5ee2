// Package rotation picks the next quote per category under the
// no-repeat-until-exhausted rule.
//
// Cycle membership is derived from ledger history on every call rather than
// kept in a counter, so rotation state can never drift from what was actually
// sent.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"

	"yomibot/internal/ledger"
	"yomibot/internal/quotes"
	"yomibot/pkg/logx"
)

// ErrEmptyCategory reports selection from a category with zero records.
var ErrEmptyCategory = errors.New("category has no records")

type Selector struct {
	store *quotes.Store
	led   ledger.Store
	log   logx.Logger
}

func New(store *quotes.Store, led ledger.Store, log logx.Logger) *Selector {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Selector{store: store, led: led, log: log}
}

// SelectDeterministic picks the quote for (category, dateKey). The same
// date and category always yield the same candidate for a given ledger
// state, across hosts and restarts, so every subscriber of a broadcast sees
// the same record and a later ledger inspection is reproducible.
func (s *Selector) SelectDeterministic(ctx context.Context, cat quotes.Category, dateKey string) (quotes.Quote, error) {
	candidates, err := s.candidates(ctx, cat)
	if err != nil {
		return quotes.Quote{}, err
	}
	idx := int(dateIndex(dateKey, cat) % uint64(len(candidates)))
	return candidates[idx], nil
}

// SelectForDay returns what the channel got, or will get, for the day:
// the finalized ledger entry when one exists, otherwise the deterministic
// pick. Once the broadcast finalizes, the sent record leaves the candidate
// set and SelectDeterministic lands elsewhere, so replays must read the
// ledger first to keep matching the channel.
func (s *Selector) SelectForDay(ctx context.Context, cat quotes.Category, dateKey string) (quotes.Quote, error) {
	hist, err := s.led.History(ctx, cat)
	if err != nil {
		return quotes.Quote{}, err
	}
	for i := len(hist) - 1; i >= 0; i-- {
		if hist[i].Day != dateKey {
			continue
		}
		q, err := s.store.Get(cat, hist[i].QuoteID)
		if err != nil {
			// Sent record no longer exists after a reload; fall back.
			s.log.Warn("sent quote missing from store", logx.String("category", string(cat)), logx.String("quote_id", hist[i].QuoteID))
			break
		}
		return q, nil
	}
	return s.SelectDeterministic(ctx, cat, dateKey)
}

// SelectRandom picks uniformly over the unused candidates using a
// non-deterministic source. Used for on-demand requests, which stay
// decorrelated from the daily deterministic stream.
func (s *Selector) SelectRandom(ctx context.Context, cat quotes.Category) (quotes.Quote, error) {
	candidates, err := s.candidates(ctx, cat)
	if err != nil {
		return quotes.Quote{}, err
	}
	return candidates[rand.Intn(len(candidates))], nil
}

// candidates returns the category's records not yet used in the current
// rotation cycle. The used set resets the moment history covers the whole
// category, so the returned slice is never empty for a non-empty category.
func (s *Selector) candidates(ctx context.Context, cat quotes.Category) ([]quotes.Quote, error) {
	all := s.store.Lookup(cat)
	if len(all) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyCategory, cat)
	}

	used, err := s.usedInCurrentCycle(ctx, cat, all)
	if err != nil {
		return nil, err
	}

	candidates := make([]quotes.Quote, 0, len(all))
	for _, q := range all {
		if !used[q.ID] {
			candidates = append(candidates, q)
		}
	}
	return candidates, nil
}

// usedInCurrentCycle scans ledger history in send order, closing a cycle
// whenever every record id of the category has been seen. Whatever remains
// open at the end is the current cycle's used set. Ids no longer present in
// the record set are ignored; they can never close a cycle.
func (s *Selector) usedInCurrentCycle(ctx context.Context, cat quotes.Category, all []quotes.Quote) (map[string]bool, error) {
	hist, err := s.led.History(ctx, cat)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(all))
	for _, q := range all {
		known[q.ID] = true
	}

	used := make(map[string]bool, len(all))
	for i, e := range hist {
		if !known[e.QuoteID] {
			continue
		}
		used[e.QuoteID] = true
		if len(used) == len(all) {
			used = make(map[string]bool, len(all))
			// Log only the cycle the latest send closed; earlier resets are
			// old news replayed on every scan.
			if i == len(hist)-1 {
				s.log.Info("rotation cycle completed", logx.String("category", string(cat)), logx.Int("records", len(all)))
			}
		}
	}
	return used, nil
}

// dateIndex derives a stable index seed from (dateKey, category) using
// 64-bit FNV-1a. The hash function is fixed and documented: changing it
// changes every historical day's selection.
func dateIndex(dateKey string, cat quotes.Category) uint64 {
	h := fnv.New64a()
	h.Write([]byte(dateKey))
	h.Write([]byte{'|'})
	h.Write([]byte(cat))
	return h.Sum64()
}
