package app

import (
	"time"

	"yomibot/internal/broadcast"
	"yomibot/internal/config"
	"yomibot/internal/ledger"
	"yomibot/internal/ratelimit"
)

func mapLedgerConfig(cfg *config.Config) (ledger.Config, error) {
	busy, err := config.ParseDurationField("ledger.busy_timeout", cfg.Ledger.BusyTimeout)
	if err != nil {
		return ledger.Config{}, err
	}
	ttl, err := config.ParseDurationField("ledger.claim_ttl", cfg.Ledger.ClaimTTL)
	if err != nil {
		return ledger.Config{}, err
	}
	return ledger.Config{
		Driver:      cfg.Ledger.Driver,
		Path:        cfg.Ledger.Path,
		BusyTimeout: busy,
		ClaimTTL:    ttl,
	}, nil
}

func mapRateLimitConfig(cfg *config.Config) (ratelimit.Config, error) {
	window, err := config.ParseDurationField("ratelimit.window", cfg.RateLimit.Window)
	if err != nil {
		return ratelimit.Config{}, err
	}
	return ratelimit.Config{
		Driver:      cfg.RateLimit.Driver,
		Limit:       cfg.RateLimit.Limit,
		Window:      window,
		RedisAddr:   cfg.RateLimit.RedisAddr,
		RedisDB:     cfg.RateLimit.RedisDB,
		RedisPrefix: cfg.RateLimit.RedisPrefix,
	}, nil
}

func mapBroadcastConfig(cfg *config.Config) (broadcast.Config, error) {
	bc := broadcast.Config{ChannelID: cfg.Telegram.ChannelID}
	if cfg.Broadcast == nil {
		return bc, nil
	}
	timeout, err := config.ParseDurationOrDefault("broadcast.send_timeout", cfg.Broadcast.SendTimeout, 30*time.Second)
	if err != nil {
		return broadcast.Config{}, err
	}
	bc.SendTimeout = timeout
	bc.RatePerSec = cfg.Broadcast.RatePerSec
	return bc, nil
}
