// senddaily performs one daily broadcast and exits. It is the external
// trigger path (cron, CI schedule) and shares the ledger with the bot, so
// double-firing against a running scheduler sends nothing twice.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"yomibot/internal/broadcast"
	"yomibot/internal/config"
	"yomibot/internal/ledger"
	"yomibot/internal/quotes"
	"yomibot/internal/rotation"
	"yomibot/internal/transport/telegram"
	"yomibot/pkg/logx"
)

func main() {
	var (
		cfgPath string
		dayFlag string
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	flag.StringVar(&dayFlag, "day", "", "override broadcast day (YYYY-MM-DD, default: today in the configured timezone)")
	flag.Parse()

	if err := run(cfgPath, dayFlag); err != nil {
		fmt.Fprintln(os.Stderr, "senddaily:", err)
		os.Exit(1)
	}
}

func run(cfgPath, dayFlag string) error {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: true,
	})
	defer logSvc.Close()
	log = log.With(logx.String("comp", "senddaily"))

	tz := strings.TrimSpace(cfg.Schedule.Timezone)
	if tz == "" {
		tz = "Asia/Jerusalem"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return err
	}

	day := time.Now().In(loc)
	if dayFlag != "" {
		day, err = time.ParseInLocation(time.DateOnly, dayFlag, loc)
		if err != nil {
			return fmt.Errorf("invalid -day: %w", err)
		}
	}

	store, err := quotes.Load(cfg.Quotes.Dir, logSvc.Logger().With(logx.String("comp", "quotes")))
	if err != nil {
		return err
	}

	busy, err := config.ParseDurationField("ledger.busy_timeout", cfg.Ledger.BusyTimeout)
	if err != nil {
		return err
	}
	ttl, err := config.ParseDurationField("ledger.claim_ttl", cfg.Ledger.ClaimTTL)
	if err != nil {
		return err
	}
	led, err := ledger.Open(ledger.Config{
		Driver:      cfg.Ledger.Driver,
		Path:        cfg.Ledger.Path,
		BusyTimeout: busy,
		ClaimTTL:    ttl,
	}, logSvc.Logger().With(logx.String("comp", "ledger")))
	if err != nil {
		return err
	}
	defer led.Close()

	// Outbound only: the adapter is never started, so no polling happens.
	ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token},
		logSvc.Logger().With(logx.String("comp", "telegram")))
	if err != nil {
		return err
	}

	sel := rotation.New(store, led, logSvc.Logger().With(logx.String("comp", "rotation")))
	bc := broadcast.Config{ChannelID: cfg.Telegram.ChannelID}
	if cfg.Broadcast != nil {
		bc.SendTimeout, err = config.ParseDurationOrDefault("broadcast.send_timeout", cfg.Broadcast.SendTimeout, 30*time.Second)
		if err != nil {
			return err
		}
		bc.RatePerSec = cfg.Broadcast.RatePerSec
	}
	asm := broadcast.New(bc, sel, led, ad, logSvc.Logger().With(logx.String("comp", "broadcast")))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	report, err := asm.Run(ctx, day)
	if err != nil {
		return err
	}
	log.Info("run finished",
		logx.String("day", report.Day),
		logx.Int("sent", report.Sent()),
		logx.Int("skipped", report.Skipped()),
		logx.Int("failed", report.Failed()))
	if n := report.Failed(); n > 0 {
		return fmt.Errorf("%d categories failed", n)
	}
	return nil
}
