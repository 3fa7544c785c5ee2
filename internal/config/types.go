package config

type Config struct {
	Telegram  TelegramConfig   `json:"telegram"`
	Logging   LoggingConfig    `json:"logging"`
	Quotes    QuotesConfig     `json:"quotes"`
	Ledger    LedgerConfig     `json:"ledger"`
	RateLimit RateLimitConfig  `json:"ratelimit"`
	Schedule  ScheduleConfig   `json:"schedule"`
	Broadcast *BroadcastConfig `json:"broadcast,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// ChannelID is the broadcast target chat.
	ChannelID int64 `json:"channel_id"`
	// OwnerUserIDs may use /reload regardless of rate limiting.
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// QuotesConfig locates the record files: one <category>.json per category.
type QuotesConfig struct {
	Dir string `json:"dir"`
}

// LedgerConfig controls the delivery ledger.
//
// Driver "sqlite" (default) is required when the scheduler job and the bot
// run as separate processes; "file" suits single-process deployments.
type LedgerConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite; Go duration string
	ClaimTTL    string `json:"claim_ttl,omitempty"`    // claim lease; default "5m"
}

// RateLimitConfig controls the per-user sliding window for on-demand
// commands. Driver "memory" (default) is per-process; "redis" shares the
// window across bot instances.
type RateLimitConfig struct {
	Driver      string `json:"driver,omitempty"`
	Limit       int    `json:"limit,omitempty"`  // default 5
	Window      string `json:"window,omitempty"` // Go duration string, default "60s"
	RedisAddr   string `json:"redis_addr,omitempty"`
	RedisDB     int    `json:"redis_db,omitempty"`
	RedisPrefix string `json:"redis_prefix,omitempty"`
}

type ScheduleConfig struct {
	Enabled  bool   `json:"enabled"`
	SendTime string `json:"send_time,omitempty"` // "HH:MM", default "06:00"
	Timezone string `json:"timezone,omitempty"`  // IANA TZ, default "Asia/Jerusalem"
}

type BroadcastConfig struct {
	SendTimeout string `json:"send_timeout,omitempty"` // Go duration string
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
}
