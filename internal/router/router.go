// Package router dispatches inbound chat commands to handlers through a
// bounded worker pool, with middleware for panic recovery, request logging
// and per-user rate limiting.
package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"yomibot/internal/ratelimit"
	"yomibot/internal/transport"
	"yomibot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type Command struct {
	Name        string // without the leading slash
	Description string
	Access      Access
	Limited     bool // subject to the per-user rate limit
	Timeout     time.Duration
	Handle      HandlerFunc
}

type Request struct {
	Update  transport.Update
	Chat    transport.ChatTarget
	FromID  int64
	Command string
	Args    []string
	ReqID   string

	Tx  transport.Transmitter
	Log logx.Logger
}

const replyUnknownCommand = "❓ פקודה לא מוכרת. נסו /help"

type Router struct {
	mu     sync.RWMutex
	cmds   map[string]Command
	order  []string
	owners []int64

	tx      transport.Transmitter
	limiter ratelimit.Limiter
	log     logx.Logger

	jobs chan func()
}

func New(tx transport.Transmitter, limiter ratelimit.Limiter, log logx.Logger, owners []int64) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		cmds:    map[string]Command{},
		owners:  append([]int64(nil), owners...),
		tx:      tx,
		limiter: limiter,
		log:     log,
		jobs:    make(chan func(), 256),
	}
}

func (r *Router) Register(cmds []Command) {
	m := make(map[string]Command, len(cmds))
	order := make([]string, 0, len(cmds))
	for _, c := range cmds {
		name := strings.TrimPrefix(strings.TrimSpace(c.Name), "/")
		if name == "" || c.Handle == nil {
			continue
		}
		if _, dup := m[name]; dup {
			continue
		}
		c.Name = name
		m[name] = c
		order = append(order, name)
	}
	r.mu.Lock()
	r.cmds = m
	r.order = order
	r.mu.Unlock()
}

// SetOwners updates the owner list used for AccessOwnerOnly checks.
// Safe to call during hot-reload.
func (r *Router) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	r.mu.Lock()
	r.owners = cp
	r.mu.Unlock()
}

// MenuCommands lists the publicly visible commands in registration order,
// for the platform command menu.
func (r *Router) MenuCommands() []transport.BotCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]transport.BotCommand, 0, len(r.order))
	for _, name := range r.order {
		c := r.cmds[name]
		if c.Access != AccessEveryone {
			continue
		}
		out = append(out, transport.BotCommand{Command: name, Description: c.Description})
	}
	return out
}

// DispatchLoop consumes inbound updates until ctx is cancelled or the
// channel closes. Handlers run on a small bounded worker pool so one slow
// handler cannot stall the intake.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan transport.Update) error {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	if workers > 8 {
		workers = 8
	}
	r.log.Info("command dispatcher started", logx.Int("workers", workers))

	var (
		wg        sync.WaitGroup
		closeOnce sync.Once
	)
	closeJobs := func() { closeOnce.Do(func() { close(r.jobs) }) }

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					r.log.Error("panic in command worker",
						logx.Any("panic", rec),
						logx.String("stack", string(debug.Stack())))
				}
			}()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-r.jobs:
					if !ok {
						return
					}
					if job != nil {
						job()
					}
				}
			}
		}()
	}
	defer func() {
		closeJobs()
		wg.Wait()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.routeMessage(ctx, up)
		}
	}
}

func (r *Router) routeMessage(root context.Context, up transport.Update) {
	if up.Message == nil {
		return
	}
	msg := up.Message
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}

	parts := strings.Fields(text)
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	word = strings.ToLower(word)
	args := parts[1:]

	r.mu.RLock()
	cmd, ok := r.cmds[word]
	owners := append([]int64(nil), r.owners...)
	r.mu.RUnlock()

	chat := transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	if !ok {
		_, _ = r.tx.SendText(root, chat, replyUnknownCommand, nil)
		return
	}
	if cmd.Access == AccessOwnerOnly && !isOwner(msg.FromID, owners) {
		// pretend owner-only commands don't exist
		_, _ = r.tx.SendText(root, chat, replyUnknownCommand, nil)
		return
	}

	rid := uuid.NewString()[:8]
	req := &Request{
		Update:  up,
		Chat:    chat,
		FromID:  msg.FromID,
		Command: cmd.Name,
		Args:    args,
		ReqID:   rid,
		Tx:      r.tx,
		Log: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
	}

	mws := []Middleware{
		PanicRecover(r.log),
		RequestLog(),
		Timeout(cmd.Timeout),
	}
	if cmd.Limited && !isOwner(msg.FromID, owners) {
		mws = append(mws, RateLimit(r.limiter))
	}
	final := Chain(cmd.Handle, mws...)

	select {
	case r.jobs <- func() { _ = final(root, req) }:
	default:
		r.log.Warn("command queue full, dropping request",
			logx.Int64("from_id", msg.FromID), logx.String("cmd", cmd.Name))
	}
}

func isOwner(id int64, owners []int64) bool {
	for _, o := range owners {
		if o == id {
			return true
		}
	}
	return false
}
