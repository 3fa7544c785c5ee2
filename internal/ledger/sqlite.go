package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"yomibot/internal/quotes"
	"yomibot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// sqliteStore implements Store on a single SQLite file.
//
// Claim atomicity relies on the (day, channel_id, category) primary key: the
// claim statement is a single upsert whose conflict branch only fires for an
// expired lease, so exactly one of two racing claimants sees a row change.
type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	ttl time.Duration
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite ledger path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	s := &sqliteStore{db: db, log: log, ttl: cfg.claimTTL()}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Claim(ctx context.Context, day string, channelID int64, cat quotes.Category) (Claim, error) {
	token := uuid.NewString()
	expires := time.Now().Add(s.ttl).UnixMilli()

	// Insert wins an empty slot; the conflict branch takes over only a
	// claimed row whose lease has expired. A finalized row never matches, so
	// RowsAffected==0 means someone else holds the slot.
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO deliveries(day, channel_id, category, status, claim_token, claim_expires)
		VALUES(?,?,?,'claimed',?,?)
		ON CONFLICT(day, channel_id, category) DO UPDATE
		SET claim_token = excluded.claim_token, claim_expires = excluded.claim_expires
		WHERE deliveries.status = 'claimed' AND deliveries.claim_expires < ?`,
		day, channelID, string(cat), token, expires, time.Now().UnixMilli(),
	)
	if err != nil {
		return Claim{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Claim{}, err
	}
	if n == 0 {
		return Claim{}, fmt.Errorf("%s/%d/%s: %w", day, channelID, cat, ErrAlreadyClaimed)
	}
	return Claim{Day: day, ChannelID: channelID, Category: cat, token: token}, nil
}

func (s *sqliteStore) Finalize(ctx context.Context, c Claim, quoteID string, sentAt time.Time) error {
	// sent_at is stored as unix-nano so History's ORDER BY compares
	// numerically. Formatted timestamps do not sort: RFC3339Nano drops
	// trailing fractional zeros, so ".5Z" sorts after ".51Z".
	res, err := s.db.ExecContext(ctx, `
		UPDATE deliveries
		SET status = 'sent', quote_id = ?, sent_at = ?, claim_token = NULL, claim_expires = NULL
		WHERE day = ? AND channel_id = ? AND category = ?
		  AND status = 'claimed' AND claim_token = ?`,
		quoteID, sentAt.UnixNano(),
		c.Day, c.ChannelID, string(c.Category), c.token,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("finalize %s/%d/%s: %w", c.Day, c.ChannelID, c.Category, ErrConflict)
	}
	return nil
}

func (s *sqliteStore) Release(ctx context.Context, c Claim) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM deliveries
		WHERE day = ? AND channel_id = ? AND category = ?
		  AND status = 'claimed' AND claim_token = ?`,
		c.Day, c.ChannelID, string(c.Category), c.token,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("release %s/%d/%s: %w", c.Day, c.ChannelID, c.Category, ErrConflict)
	}
	return nil
}

func (s *sqliteStore) History(ctx context.Context, cat quotes.Category) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT day, channel_id, quote_id, sent_at
		FROM deliveries
		WHERE category = ? AND status = 'sent'
		ORDER BY sent_at ASC, day ASC`,
		string(cat),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e      Entry
			sentAt sql.NullInt64
		)
		e.Category = cat
		if err := rows.Scan(&e.Day, &e.ChannelID, &e.QuoteID, &sentAt); err != nil {
			return nil, err
		}
		if sentAt.Valid {
			e.SentAt = time.Unix(0, sentAt.Int64).UTC()
		} else {
			s.log.Warn("sent ledger entry without sent_at", logx.String("day", e.Day), logx.String("quote_id", e.QuoteID))
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
