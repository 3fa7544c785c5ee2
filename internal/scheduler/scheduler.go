// Package scheduler fires the daily broadcast at a configured local time.
//
// The trigger is deliberately dumb: it may fire more than once for the same
// calendar day (timezone changes, restarts near the send time, an external
// cron also invoking senddaily) and does no deduplication of its own — the
// ledger's claim protocol absorbs duplicates.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"yomibot/pkg/logx"
)

type Config struct {
	Enabled  bool
	SendTime string // "HH:MM" in Timezone, default "06:00"
	Timezone string // IANA TZ, default "Asia/Jerusalem"
}

// Job receives the calendar day the trigger fired for, in the scheduler's
// timezone.
type Job func(ctx context.Context, day time.Time)

type Service struct {
	cfg Config
	log logx.Logger
	job Job

	mu  sync.Mutex
	c   *cron.Cron
	loc *time.Location
}

func New(cfg Config, job Job, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, log: log, job: job}
}

func (s *Service) Enabled() bool { return s.cfg.Enabled }

func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.log.Info("scheduler disabled")
		return nil
	}

	spec, err := cronSpec(s.cfg.SendTime)
	if err != nil {
		return err
	}

	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		tz = "Asia/Jerusalem"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("scheduler timezone %q: %w", tz, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.loc = loc

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithLocation(loc))
	if _, err := c.AddFunc(spec, func() {
		now := time.Now().In(loc)
		s.log.Info("daily trigger fired", logx.Time("at", now))
		s.job(ctx, now)
	}); err != nil {
		return err
	}
	c.Start()
	s.c = c

	s.log.Info("scheduler started",
		logx.String("send_time", s.cfg.SendTime), logx.String("timezone", tz))
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	stopCtx := c.Stop()
	<-stopCtx.Done()
}

// cronSpec converts "HH:MM" into a standard 5-field cron spec.
func cronSpec(sendTime string) (string, error) {
	h, m, err := parseHHMM(sendTime)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d * * *", m, h), nil
}

func parseHHMM(s string) (int, int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		s = "06:00"
	}
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("send_time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("send_time %q: bad hour", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("send_time %q: bad minute", s)
	}
	return h, m, nil
}
