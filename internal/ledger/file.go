package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"yomibot/internal/quotes"
	"yomibot/pkg/logx"
)

// fileStore is a dependency-free ledger backend.
//
// Finalized entries are appended to a jsonl journal and replayed on open, so
// idempotency survives restarts. Claims are held in memory only: a crash
// drops them, which is equivalent to an instantly expired lease. That makes
// this driver single-instance; deployments splitting the scheduler job from
// the bot process use the sqlite driver.
type fileStore struct {
	log logx.Logger
	ttl time.Duration

	mu      sync.Mutex
	journal *os.File

	sent    map[string]Entry // key: day|channel|category
	order   []string         // keys in append (send) order
	claims  map[string]fileClaim
}

type fileClaim struct {
	token   string
	expires time.Time
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("ledger path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:    log,
		ttl:    cfg.claimTTL(),
		sent:   map[string]Entry{},
		claims: map[string]fileClaim{},
	}
	if err := s.replay(path); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	s.journal = f
	return s, nil
}

func (s *fileStore) replay(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			s.log.Warn("skipping bad ledger journal line", logx.Err(err))
			continue
		}
		k := key(e.Day, e.ChannelID, e.Category)
		if _, dup := s.sent[k]; !dup {
			s.order = append(s.order, k)
		}
		s.sent[k] = e
	}
	return sc.Err()
}

func key(day string, channelID int64, cat quotes.Category) string {
	return fmt.Sprintf("%s|%d|%s", day, channelID, cat)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.journal.Close()
	s.journal = nil
	return err
}

func (s *fileStore) Claim(ctx context.Context, day string, channelID int64, cat quotes.Category) (Claim, error) {
	_ = ctx
	k := key(day, channelID, cat)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, done := s.sent[k]; done {
		return Claim{}, fmt.Errorf("%s: %w", k, ErrAlreadyClaimed)
	}
	if c, held := s.claims[k]; held && now.Before(c.expires) {
		return Claim{}, fmt.Errorf("%s: %w", k, ErrAlreadyClaimed)
	}

	token := uuid.NewString()
	s.claims[k] = fileClaim{token: token, expires: now.Add(s.ttl)}
	return Claim{Day: day, ChannelID: channelID, Category: cat, token: token}, nil
}

func (s *fileStore) Finalize(ctx context.Context, c Claim, quoteID string, sentAt time.Time) error {
	_ = ctx
	k := key(c.Day, c.ChannelID, c.Category)

	s.mu.Lock()
	defer s.mu.Unlock()

	held, ok := s.claims[k]
	if !ok || held.token != c.token {
		return fmt.Errorf("finalize %s: %w", k, ErrConflict)
	}
	if s.journal == nil {
		return errors.New("ledger journal closed")
	}

	e := Entry{
		Day:       c.Day,
		ChannelID: c.ChannelID,
		Category:  c.Category,
		QuoteID:   quoteID,
		SentAt:    sentAt.UTC(),
	}
	if err := json.NewEncoder(s.journal).Encode(e); err != nil {
		return err
	}

	delete(s.claims, k)
	s.sent[k] = e
	s.order = append(s.order, k)
	return nil
}

func (s *fileStore) Release(ctx context.Context, c Claim) error {
	_ = ctx
	k := key(c.Day, c.ChannelID, c.Category)

	s.mu.Lock()
	defer s.mu.Unlock()

	held, ok := s.claims[k]
	if !ok || held.token != c.token {
		return fmt.Errorf("release %s: %w", k, ErrConflict)
	}
	delete(s.claims, k)
	return nil
}

func (s *fileStore) History(ctx context.Context, cat quotes.Category) ([]Entry, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Entry
	for _, k := range s.order {
		if e := s.sent[k]; e.Category == cat {
			out = append(out, e)
		}
	}
	return out, nil
}
