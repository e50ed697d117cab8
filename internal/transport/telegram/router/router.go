// Package router turns adapter updates into handler calls.
//
// Updates fan out to a fixed pool of lanes. A user always maps to the same
// lane, so one user's updates run one at a time and in arrival order while
// different users proceed in parallel.
package router

import (
	"context"
	"hash/fnv"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	rtsup "medbot/internal/runtime/supervisor"
	kit "medbot/internal/transport"
	logx "medbot/pkg/logx"
	"medbot/pkg/tgui"
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	// Hidden commands work but are left out of the platform menu.
	Hidden  bool
	Timeout time.Duration
	Handle  HandlerFunc
}

type CallbackRoute struct {
	Action  string
	Timeout time.Duration
	Handle  HandlerFunc
}

type Request struct {
	Update    kit.Update
	Chat      kit.ChatTarget
	FromID    int64
	FromName  string
	Command   string // command name, "cb:<action>" or "text"
	Args      []string
	Text      string // full message text
	Payload   string // callback payload
	MessageID int    // message carrying the pressed button
	ReqID     string

	Adapter kit.Adapter
	Logger  logx.Logger

	answer string
}

// Answer sets the toast shown when the callback is acknowledged.
func (r *Request) Answer(text string) { r.answer = text }

// AnswerText is the toast set by Answer.
func (r *Request) AnswerText() string { return r.answer }

// Ref is the message the callback button belongs to.
func (r *Request) Ref() kit.MessageRef {
	return kit.MessageRef{ChatID: r.Chat.ChatID, ThreadID: r.Chat.ThreadID, MessageID: r.MessageID}
}

type Option func(*Router)

// WithLanes sets the worker count; n < 2 is raised to 2.
func WithLanes(n int) Option { return func(r *Router) { r.lanes = n } }

// WithLaneBuffer bounds the per-lane queue.
func WithLaneBuffer(n int) Option { return func(r *Router) { r.laneBuf = n } }

// WithDefaultTimeout applies to handlers without their own timeout.
func WithDefaultTimeout(d time.Duration) Option { return func(r *Router) { r.timeout = d } }

type Router struct {
	log     logx.Logger
	adapter kit.Adapter

	lanes   int
	laneBuf int
	timeout time.Duration

	mu        sync.RWMutex
	commands  map[string]Command
	callbacks map[string]CallbackRoute
	text      HandlerFunc
	unknown   HandlerFunc
}

func New(log logx.Logger, adapter kit.Adapter, opts ...Option) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		log:       log,
		adapter:   adapter,
		lanes:     runtime.NumCPU(),
		laneBuf:   64,
		timeout:   30 * time.Second,
		commands:  map[string]Command{},
		callbacks: map[string]CallbackRoute{},
	}
	for _, o := range opts {
		o(r)
	}
	r.lanes = max(r.lanes, 2)
	r.laneBuf = max(r.laneBuf, 1)
	return r
}

// Registry is the full handler set. Text receives non-command messages;
// Unknown receives commands nobody registered.
type Registry struct {
	Commands  []Command
	Callbacks []CallbackRoute
	Text      HandlerFunc
	Unknown   HandlerFunc
}

// SetRegistry replaces every handler and publishes the command menu when
// the adapter supports it.
func (r *Router) SetRegistry(ctx context.Context, reg Registry) {
	cmds := map[string]Command{}
	for _, c := range reg.Commands {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		cmds[name] = c
		for _, a := range c.Aliases {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
				if _, taken := cmds[a]; !taken {
					cmds[a] = c
				}
			}
		}
	}
	cbs := map[string]CallbackRoute{}
	for _, cb := range reg.Callbacks {
		if cb.Action == "" || cb.Handle == nil {
			continue
		}
		cbs[cb.Action] = cb
	}

	r.mu.Lock()
	r.commands = cmds
	r.callbacks = cbs
	r.text = reg.Text
	r.unknown = reg.Unknown
	r.mu.Unlock()

	if up, ok := r.adapter.(kit.CommandMenuUpdater); ok {
		mctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := up.UpdateMenuCommands(mctx, menuCommands(reg.Commands)); err != nil {
			r.log.Warn("menu update failed", logx.Err(err))
		}
	}
}

type job struct {
	req *Request
	h   HandlerFunc
}

// Run consumes updates until ctx ends or updates is closed, then lets the
// lanes drain for up to three seconds.
func (r *Router) Run(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.NewSupervisor(ctx, rtsup.WithLogger(r.log))
	lanes := make([]chan job, r.lanes)
	for i := range lanes {
		lanes[i] = make(chan job, r.laneBuf)
		q := lanes[i]
		idx := i
		sup.GoRestart("router.lane."+strconv.Itoa(idx), func(c context.Context) error {
			r.laneLoop(c, idx, q)
			return nil
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}
	r.log.Info("router started", logx.Int("lanes", r.lanes), logx.Int("lane_buffer", r.laneBuf))

	defer func() {
		for _, q := range lanes {
			close(q)
		}
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := sup.Wait(wctx); err != nil {
			sup.Cancel()
		}
		r.log.Info("router stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.dispatch(ctx, lanes, up)
		}
	}
}

func (r *Router) laneLoop(ctx context.Context, idx int, q <-chan job) {
	for j := range q {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.log.Error("panic in lane", logx.Int("lane", idx), logx.Any("panic", rec), logx.Stack(string(debug.Stack())))
				}
			}()
			r.run(ctx, j)
		}()
	}
}

func (r *Router) run(ctx context.Context, j job) {
	_ = j.h(ctx, j.req)
	if cb := j.req.Update.Callback; cb != nil {
		if err := r.adapter.AnswerCallback(ctx, cb.ID, j.req.answer); err != nil {
			j.req.Logger.Debug("answer callback failed", logx.Err(err))
		}
	}
}

func laneFor(userID int64, n int) int {
	h := fnv.New32a()
	h.Write([]byte(strconv.FormatInt(userID, 10)))
	return int(h.Sum32() % uint32(n))
}

func (r *Router) dispatch(ctx context.Context, lanes []chan job, up kit.Update) {
	req, h := r.resolve(up)
	if h == nil {
		return
	}
	select {
	case lanes[laneFor(req.FromID, len(lanes))] <- job{req: req, h: h}:
	default:
		req.Logger.Warn("lane full, update rejected")
		if up.Callback != nil {
			_ = r.adapter.AnswerCallback(ctx, up.Callback.ID, "Busy, try again")
			return
		}
		_, _ = r.adapter.SendText(ctx, req.Chat, "Busy, try again in a moment.", nil)
	}
}

// resolve builds the request and its middleware-wrapped handler, or returns
// a nil handler when nothing should run.
func (r *Router) resolve(up kit.Update) (*Request, HandlerFunc) {
	switch {
	case up.Message != nil:
		return r.resolveMessage(up)
	case up.Callback != nil:
		return r.resolveCallback(up)
	}
	return nil, nil
}

func (r *Router) newRequest(up kit.Update, chat kit.ChatTarget, from int64, command string) *Request {
	rid := uuid.NewString()
	return &Request{
		Update:  up,
		Chat:    chat,
		FromID:  from,
		Command: command,
		ReqID:   rid,
		Adapter: r.adapter,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", from),
			logx.String("cmd", command),
		),
	}
}

func (r *Router) wrap(h HandlerFunc, timeout time.Duration) HandlerFunc {
	if timeout <= 0 {
		timeout = r.timeout
	}
	return Chain(h, MWPanicRecover(r.log), MWRequestLog(r.log), MWTimeout(timeout))
}

func (r *Router) resolveMessage(up kit.Update) (*Request, HandlerFunc) {
	msg := up.Message
	text := strings.TrimSpace(msg.Text)
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	r.mu.RLock()
	defer r.mu.RUnlock()

	name, args, isCmd := parseCommand(text)
	if !isCmd {
		if r.text == nil || text == "" {
			return nil, nil
		}
		req := r.newRequest(up, chat, msg.FromID, "text")
		req.Text = text
		req.FromName = msg.FromName
		return req, r.wrap(r.text, 0)
	}

	req := r.newRequest(up, chat, msg.FromID, name)
	req.Text = text
	req.Args = args
	req.FromName = msg.FromName
	if c, ok := r.commands[name]; ok {
		return req, r.wrap(c.Handle, c.Timeout)
	}
	if r.unknown == nil {
		return nil, nil
	}
	return req, r.wrap(r.unknown, 0)
}

func (r *Router) resolveCallback(up kit.Update) (*Request, HandlerFunc) {
	cb := up.Callback
	data, ok := tgui.ParseData(cb.Data)
	if !ok {
		return nil, nil
	}

	r.mu.RLock()
	route, found := r.callbacks[data.Action]
	r.mu.RUnlock()

	req := r.newRequest(up, kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}, cb.FromID, "cb:"+data.Action)
	req.Payload = data.Payload
	req.MessageID = cb.MessageID
	if !found {
		// Answer anyway so the client stops its spinner.
		return req, func(context.Context, *Request) error { return nil }
	}
	return req, r.wrap(route.Handle, route.Timeout)
}

// parseCommand splits "/name@bot a b" into ("name", [a b], true).
func parseCommand(text string) (string, []string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	fields := strings.Fields(text)
	word := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	if word == "" {
		return "", nil, false
	}
	return strings.ToLower(word), fields[1:], true
}
