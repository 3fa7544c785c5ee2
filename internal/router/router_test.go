package router

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"yomibot/internal/ratelimit"
	kit "yomibot/internal/transport"
	"yomibot/pkg/logx"
)

type fakeTx struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeTx) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return kit.MessageRef{}, nil
}

func (f *fakeTx) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func startRouter(t *testing.T, r *Router) chan<- kit.Update {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.DispatchLoop(ctx, updates)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return updates
}

func msg(from int64, text string) kit.Update {
	return kit.Update{Message: &kit.Message{ID: 1, ChatID: from, FromID: from, Text: text}}
}

func TestDispatchRunsHandler(t *testing.T) {
	tx := &fakeTx{}
	r := New(tx, nil, logx.Nop(), nil)

	var hits sync.Map
	r.Register([]Command{{
		Name:        "ping",
		Description: "ping",
		Handle: func(ctx context.Context, req *Request) error {
			hits.Store(req.FromID, req.Args)
			_, err := req.Tx.SendText(ctx, req.Chat, "pong", nil)
			return err
		},
	}})

	updates := startRouter(t, r)
	updates <- msg(7, "/ping@yomi_bot one two")

	waitFor(t, func() bool {
		v, ok := hits.Load(int64(7))
		if !ok {
			return false
		}
		args := v.([]string)
		return len(args) == 2 && args[0] == "one"
	})
	waitFor(t, func() bool {
		s := tx.snapshot()
		return len(s) == 1 && s[0] == "pong"
	})
}

func TestDispatchIgnoresPlainText(t *testing.T) {
	tx := &fakeTx{}
	r := New(tx, nil, logx.Nop(), nil)
	r.Register([]Command{{Name: "ping", Handle: func(context.Context, *Request) error { return nil }}})

	updates := startRouter(t, r)
	updates <- msg(7, "hello there")
	updates <- msg(7, "/unknowncmd")

	waitFor(t, func() bool {
		s := tx.snapshot()
		return len(s) == 1 && s[0] == replyUnknownCommand
	})
}

func TestOwnerOnlyHiddenFromOthers(t *testing.T) {
	tx := &fakeTx{}
	r := New(tx, nil, logx.Nop(), []int64{100})

	ran := make(chan int64, 2)
	r.Register([]Command{{
		Name:   "reload",
		Access: AccessOwnerOnly,
		Handle: func(ctx context.Context, req *Request) error {
			ran <- req.FromID
			return nil
		},
	}})

	updates := startRouter(t, r)
	updates <- msg(999, "/reload")
	waitFor(t, func() bool {
		s := tx.snapshot()
		return len(s) == 1 && s[0] == replyUnknownCommand
	})

	updates <- msg(100, "/reload")
	select {
	case from := <-ran:
		if from != 100 {
			t.Fatalf("handler ran for %d", from)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("owner command did not run")
	}
}

func TestRateLimitedCommandDenied(t *testing.T) {
	tx := &fakeTx{}
	limiter := ratelimit.NewMemory(ratelimit.Config{Limit: 1, Window: time.Minute})
	defer limiter.Close()
	r := New(tx, limiter, logx.Nop(), []int64{100})

	r.Register([]Command{{
		Name:    "quote",
		Limited: true,
		Handle: func(ctx context.Context, req *Request) error {
			_, err := req.Tx.SendText(ctx, req.Chat, "a quote", nil)
			return err
		},
	}})

	updates := startRouter(t, r)
	updates <- msg(7, "/quote")
	waitFor(t, func() bool { return len(tx.snapshot()) == 1 })

	updates <- msg(7, "/quote")
	waitFor(t, func() bool {
		s := tx.snapshot()
		return len(s) == 2 && strings.Contains(s[1], "יותר מדי בקשות")
	})

	// owners bypass the limiter entirely
	updates <- msg(100, "/quote")
	updates <- msg(100, "/quote")
	waitFor(t, func() bool {
		s := tx.snapshot()
		return len(s) == 4 && s[2] == "a quote" && s[3] == "a quote"
	})
}

func TestMenuCommandsSkipsOwnerOnly(t *testing.T) {
	r := New(&fakeTx{}, nil, logx.Nop(), nil)
	r.Register([]Command{
		{Name: "start", Description: "welcome", Handle: func(context.Context, *Request) error { return nil }},
		{Name: "reload", Description: "ops", Access: AccessOwnerOnly, Handle: func(context.Context, *Request) error { return nil }},
		{Name: "help", Description: "help", Handle: func(context.Context, *Request) error { return nil }},
	})

	menu := r.MenuCommands()
	if len(menu) != 2 {
		t.Fatalf("menu has %d entries, want 2: %+v", len(menu), menu)
	}
	if menu[0].Command != "start" || menu[1].Command != "help" {
		t.Fatalf("menu order changed: %+v", menu)
	}
}

func TestHandlersCommandSet(t *testing.T) {
	h := &Handlers{Location: time.UTC}
	names := map[string]bool{}
	for _, c := range h.Commands() {
		names[c.Name] = true
	}
	for _, want := range []string{"start", "today", "quote", "about", "help"} {
		if !names[want] {
			t.Fatalf("missing command %q", want)
		}
	}
	if names["reload"] {
		t.Fatal("reload registered without a reload hook")
	}

	h.Reload = func(context.Context) (int, error) { return 0, nil }
	names = map[string]bool{}
	for _, c := range h.Commands() {
		names[c.Name] = true
	}
	if !names["reload"] {
		t.Fatal("reload missing despite a reload hook")
	}
}
