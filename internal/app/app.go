// Package app wires the bot together: config, logging, transport, quote
// store, ledger, rotation, rate limiting, broadcast and the command router.
package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"yomibot/internal/broadcast"
	"yomibot/internal/config"
	"yomibot/internal/ledger"
	"yomibot/internal/quotes"
	"yomibot/internal/ratelimit"
	"yomibot/internal/rotation"
	"yomibot/internal/router"
	"yomibot/internal/scheduler"
	kit "yomibot/internal/transport"
	"yomibot/internal/transport/telegram"
	"yomibot/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	log  logx.Logger
	logs *logx.Service

	adapter *telegram.Adapter
	led     ledger.Store
	limiter ratelimit.Limiter
	rtr     *router.Router
	sched   *scheduler.Service
	loc     *time.Location

	// mu guards the hot-swappable selection chain: a quote reload replaces
	// the store, selector and assembler together.
	mu    sync.RWMutex
	store *quotes.Store
	sel   *rotation.Selector
	asm   *broadcast.Assembler

	updates chan kit.Update
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, logSvc.Logger().With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	store, err := quotes.Load(cfg.Quotes.Dir, logSvc.Logger().With(logx.String("comp", "quotes")))
	if err != nil {
		return nil, err
	}
	log.Info("quote store loaded", logx.String("dir", cfg.Quotes.Dir), logx.Int("total", store.Total()))

	ledCfg, err := mapLedgerConfig(cfg)
	if err != nil {
		return nil, err
	}
	led, err := ledger.Open(ledCfg, logSvc.Logger().With(logx.String("comp", "ledger")))
	if err != nil {
		return nil, err
	}

	rlCfg, err := mapRateLimitConfig(cfg)
	if err != nil {
		return nil, err
	}
	limiter, err := ratelimit.Open(rlCfg, logSvc.Logger().With(logx.String("comp", "ratelimit")))
	if err != nil {
		return nil, err
	}

	loc, err := loadLocation(cfg.Schedule.Timezone)
	if err != nil {
		return nil, err
	}

	sel := rotation.New(store, led, logSvc.Logger().With(logx.String("comp", "rotation")))

	bcCfg, err := mapBroadcastConfig(cfg)
	if err != nil {
		return nil, err
	}
	asm := broadcast.New(bcCfg, sel, led, ad, logSvc.Logger().With(logx.String("comp", "broadcast")))

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		adapter: ad,
		led:     led,
		limiter: limiter,
		loc:     loc,
		store:   store,
		sel:     sel,
		asm:     asm,
		updates: make(chan kit.Update, 256),
	}

	a.sched = scheduler.New(scheduler.Config{
		Enabled:  cfg.Schedule.Enabled,
		SendTime: cfg.Schedule.SendTime,
		Timezone: cfg.Schedule.Timezone,
	}, a.runBroadcast, logSvc.Logger().With(logx.String("comp", "scheduler")))

	a.rtr = router.New(ad, limiter,
		logSvc.Logger().With(logx.String("comp", "router")), cfg.Telegram.OwnerUserIDs)
	h := &router.Handlers{
		Selector: a.selector,
		Store:    a.quoteStore,
		Location: loc,
		Reload:   a.reloadQuotes,
	}
	a.rtr.Register(h.Commands())

	return a, nil
}

func (a *App) selector() *rotation.Selector {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sel
}

func (a *App) quoteStore() *quotes.Store {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.store
}

func (a *App) assembler() *broadcast.Assembler {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.asm
}

func (a *App) runBroadcast(ctx context.Context, day time.Time) {
	report, err := a.assembler().Run(ctx, day)
	if err != nil {
		a.log.Error("daily broadcast failed", logx.String("day", day.Format(time.DateOnly)), logx.Err(err))
		return
	}
	if report.Failed() > 0 {
		a.log.Warn("daily broadcast incomplete",
			logx.String("day", day.Format(time.DateOnly)), logx.Int("failed", report.Failed()))
	}
}

// reloadQuotes re-reads the record files and swaps the selection chain.
// Validation failures keep the previous store active.
func (a *App) reloadQuotes(ctx context.Context) (int, error) {
	cfg := a.cfgm.Get()
	store, err := quotes.Load(cfg.Quotes.Dir, a.logs.Logger().With(logx.String("comp", "quotes")))
	if err != nil {
		return 0, err
	}

	sel := rotation.New(store, a.led, a.logs.Logger().With(logx.String("comp", "rotation")))
	bcCfg, err := mapBroadcastConfig(cfg)
	if err != nil {
		return 0, err
	}
	asm := broadcast.New(bcCfg, sel, a.led, a.adapter, a.logs.Logger().With(logx.String("comp", "broadcast")))

	a.mu.Lock()
	a.store = store
	a.sel = sel
	a.asm = asm
	a.mu.Unlock()

	a.log.Info("quote store reloaded", logx.Int("total", store.Total()))
	return store.Total(), nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		cancel()
		return err
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.rtr.DispatchLoop(runCtx, a.updates)
	}()

	if err := a.sched.Start(runCtx); err != nil {
		cancel()
		return err
	}

	if m, ok := a.limiter.(*ratelimit.Memory); ok {
		m.StartJanitor(runCtx, time.Minute)
	}

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	sub := a.cfgm.Subscribe(8)
	last := a.cfgm.Get()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-runCtx.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyReload(last, newCfg)
				last = newCfg
			}
		}
	}()

	// Best-effort: publish the command menu.
	menuCtx, menuCancel := context.WithTimeout(runCtx, 10*time.Second)
	if err := a.adapter.UpdateMenuCommands(menuCtx, a.rtr.MenuCommands()); err != nil {
		a.log.Warn("command menu update failed", logx.Err(err))
	}
	menuCancel()

	a.log.Info("bot started")
	return nil
}

// applyReload applies the hot-reloadable parts of a config change: log
// level/sinks and the owner list. Transport, ledger and schedule changes
// need a restart, which is logged rather than silently ignored.
func (a *App) applyReload(prev, cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	a.rtr.SetOwners(cfg.Telegram.OwnerUserIDs)

	if prev != nil {
		if cfg.Telegram.Token != prev.Telegram.Token ||
			cfg.Ledger != prev.Ledger ||
			cfg.Schedule != prev.Schedule {
			a.log.Warn("telegram/ledger/schedule config changed; restart required")
		}
	}
	a.log.Info("config applied")
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	a.sched.Stop()
	_ = a.adapter.Stop(ctx)

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	if a.limiter != nil {
		_ = a.limiter.Close()
	}
	if a.led != nil {
		_ = a.led.Close()
	}
	a.log.Info("bot stopped")
	return a.logs.Close()
}

func loadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		tz = "Asia/Jerusalem"
	}
	return time.LoadLocation(tz)
}
