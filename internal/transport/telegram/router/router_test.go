package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	kit "medbot/internal/transport"
	logx "medbot/pkg/logx"
)

type fakeAdapter struct {
	mu      sync.Mutex
	sent    []string
	answers map[string]string
	menu    []kit.BotCommand
}

func newFakeAdapter() *fakeAdapter { return &fakeAdapter{answers: map[string]string{}} }

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }
func (f *fakeAdapter) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	f.sent = append(f.sent, text)
	f.mu.Unlock()
	return kit.MessageRef{}, nil
}
func (f *fakeAdapter) EditText(context.Context, kit.MessageRef, string, *kit.SendOptions) error {
	return nil
}
func (f *fakeAdapter) AnswerCallback(_ context.Context, id, text string) error {
	f.mu.Lock()
	f.answers[id] = text
	f.mu.Unlock()
	return nil
}
func (f *fakeAdapter) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	f.mu.Lock()
	f.menu = cmds
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) answer(id string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.answers[id]
	return a, ok
}

func msg(from int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: from, FromID: from, Text: text, IsPrivate: true}}
}

func callback(from int64, id, data string) kit.Update {
	return kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: id, FromID: from, ChatID: from, MessageID: 9, Data: data}}
}

// runRouter starts the router and returns a stop func that waits for Run.
func runRouter(t *testing.T, r *Router) (chan kit.Update, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx, updates)
	}()
	return updates, func() {
		cancel()
		<-done
	}
}

func waitFor(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out")
		return ""
	}
}

func TestParseCommand(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		name string
		args int
		ok   bool
	}{
		{"/start", "start", 0, true},
		{"/Stats@medbot now", "stats", 1, true},
		{"hello", "", 0, false},
		{"/", "", 0, false},
	}
	for _, tc := range cases {
		name, args, ok := parseCommand(tc.in)
		if name != tc.name || len(args) != tc.args || ok != tc.ok {
			t.Fatalf("parseCommand(%q)=%q,%v,%v", tc.in, name, args, ok)
		}
	}
}

func TestRoutesCommandsAliasesAndText(t *testing.T) {
	t.Parallel()

	ad := newFakeAdapter()
	r := New(logx.Nop(), ad, WithLanes(2))
	got := make(chan string, 8)
	r.SetRegistry(context.Background(), Registry{
		Commands: []Command{
			{Name: "menu", Aliases: []string{"m"}, Description: "Main menu", Handle: func(_ context.Context, req *Request) error {
				got <- "menu:" + req.Command
				return nil
			}},
			{Name: "secret", Hidden: true, Handle: func(context.Context, *Request) error { return nil }},
		},
		Text: func(_ context.Context, req *Request) error {
			got <- "text:" + req.Text
			return nil
		},
		Unknown: func(_ context.Context, req *Request) error {
			got <- "unknown:" + req.Command
			return nil
		},
	})

	updates, stop := runRouter(t, r)
	defer stop()

	updates <- msg(1, "/menu")
	if v := waitFor(t, got); v != "menu:menu" {
		t.Fatalf("got %q", v)
	}
	updates <- msg(1, "/m")
	if v := waitFor(t, got); v != "menu:m" {
		t.Fatalf("got %q", v)
	}
	updates <- msg(1, "  5.6 mmol ")
	if v := waitFor(t, got); v != "text:5.6 mmol" {
		t.Fatalf("got %q", v)
	}
	updates <- msg(1, "/nope")
	if v := waitFor(t, got); v != "unknown:nope" {
		t.Fatalf("got %q", v)
	}

	ad.mu.Lock()
	menu := ad.menu
	ad.mu.Unlock()
	if len(menu) != 1 || menu[0].Command != "menu" {
		t.Fatalf("menu=%+v", menu)
	}
}

func TestCallbackAnswerText(t *testing.T) {
	t.Parallel()

	ad := newFakeAdapter()
	r := New(logx.Nop(), ad)
	got := make(chan string, 4)
	r.SetRegistry(context.Background(), Registry{
		Callbacks: []CallbackRoute{{Action: "taken", Handle: func(_ context.Context, req *Request) error {
			req.Answer("Medication not found")
			got <- req.Payload
			return nil
		}}},
	})
	updates, stop := runRouter(t, r)

	updates <- callback(5, "cb1", "med:taken:42")
	if v := waitFor(t, got); v != "42" {
		t.Fatalf("payload=%q", v)
	}
	updates <- callback(5, "cb3", "other:thing")
	updates <- callback(5, "cb2", "med:unknown")

	// Updates are dispatched in order, so once cb2 is answered cb3 has been
	// seen too.
	deadline := time.Now().Add(2 * time.Second)
	for {
		_, ok1 := ad.answer("cb1")
		_, ok2 := ad.answer("cb2")
		if ok1 && ok2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("callbacks not answered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	stop()

	if a, _ := ad.answer("cb1"); a != "Medication not found" {
		t.Fatalf("cb1 answer=%q", a)
	}
	if _, ok := ad.answer("cb3"); ok {
		t.Fatalf("foreign callback should be ignored")
	}
}

func TestSameUserIsSerialized(t *testing.T) {
	t.Parallel()

	ad := newFakeAdapter()
	r := New(logx.Nop(), ad, WithLanes(4))

	var mu sync.Mutex
	active := map[int64]int{}
	maxActive := 0
	order := []string{}
	var wg sync.WaitGroup

	r.SetRegistry(context.Background(), Registry{
		Text: func(_ context.Context, req *Request) error {
			defer wg.Done()
			mu.Lock()
			active[req.FromID]++
			maxActive = max(maxActive, active[req.FromID])
			if req.FromID == 1 {
				order = append(order, req.Text)
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			active[req.FromID]--
			mu.Unlock()
			return nil
		},
	})
	updates, stop := runRouter(t, r)
	defer stop()

	want := []string{"a", "b", "c", "d", "e"}
	wg.Add(len(want) * 2)
	for _, s := range want {
		updates <- msg(1, s)
		updates <- msg(2, s)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if maxActive != 1 {
		t.Fatalf("one user ran %d handlers at once", maxActive)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order=%v want %v", order, want)
		}
	}
}

func TestPanicAndTimeoutMiddleware(t *testing.T) {
	t.Parallel()

	h := Chain(func(context.Context, *Request) error { panic("boom") }, MWPanicRecover(logx.Nop()))
	if err := h(context.Background(), &Request{}); err == nil {
		t.Fatalf("panic not converted to error")
	}

	h = Chain(func(ctx context.Context, _ *Request) error {
		<-ctx.Done()
		return ctx.Err()
	}, MWTimeout(10*time.Millisecond))
	if err := h(context.Background(), &Request{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v", err)
	}
}

func TestSanitizeCommand(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Menu":       "menu",
		"add-med":    "add_med",
		"9lives":     "",
		"  stats  ":  "stats",
		"a__b":       "a_b",
		"émoji-only": "moji_only",
	}
	for in, want := range cases {
		if got := sanitizeCommand(in); got != want {
			t.Fatalf("sanitizeCommand(%q)=%q want %q", in, got, want)
		}
	}
}

func TestLaneForIsStable(t *testing.T) {
	t.Parallel()

	for id := int64(1); id < 50; id++ {
		a, b := laneFor(id, 4), laneFor(id, 4)
		if a != b || a < 0 || a >= 4 {
			t.Fatalf("laneFor(%d) unstable or out of range: %d %d", id, a, b)
		}
	}
}
