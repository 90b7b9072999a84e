package router

import (
	"context"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"remindbot/internal/lifecycle"
	"remindbot/internal/reminder"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/selection"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

// Command is a slash command, matched on its first word.
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Access      Access
	Hidden      bool // kept out of the platform menu
	Timeout     time.Duration
	Handle      HandlerFunc
}

type CallbackRoute struct {
	Scope   string
	Action  string
	Timeout time.Duration
	Handle  HandlerFunc
}

type Request struct {
	Update kit.Update
	Chat   kit.ChatTarget
	FromID int64
	// Route is the command name, or "cb:scope:action" for callbacks.
	Route string
	Args  []string
	// Payload is the callback payload, or the text of a free-text reply.
	Payload string
	// Ref is the message that carried the callback.
	Ref    kit.MessageRef
	ReqID  string
	Logger logx.Logger
}

// Reminders is the lifecycle surface the handlers drive.
type Reminders interface {
	Create(ctx context.Context, in lifecycle.NewReminder) (reminder.Spec, error)
	UpdateMessage(ctx context.Context, t lifecycle.Target, msg string) (int, error)
	Delete(ctx context.Context, id reminder.ID) error
	Owner(ctx context.Context, id reminder.ID) (int64, error)
	List(ctx context.Context, owner int64) ([]lifecycle.Entry, error)
	Ready() bool
	Location() *time.Location
}

// Status feeds the owner-only /status command.
type Status func() string

type Config struct {
	Workers        int
	QueueSize      int
	CommandTimeout time.Duration
	Owners         []int64
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 15 * time.Second
	}
	return c
}

// Router turns chat updates into selection steps and lifecycle calls.
type Router struct {
	cfg      Config
	log      logx.Logger
	adapter  kit.Adapter
	rem      Reminders
	sessions *selection.Sessions
	status   Status

	mu        sync.RWMutex
	owners    []int64
	commands  []Command
	byName    map[string]Command
	callbacks map[string]CallbackRoute // "scope:action"

	runMu   sync.Mutex
	running bool
	sup     *supervisor.Supervisor
	jobs    chan func()
}

func New(cfg Config, adapter kit.Adapter, rem Reminders, sessions *selection.Sessions, status Status, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	r := &Router{
		cfg:      cfg,
		log:      log,
		adapter:  adapter,
		rem:      rem,
		sessions: sessions,
		status:   status,
		owners:   append([]int64(nil), cfg.Owners...),
		jobs:     make(chan func(), cfg.QueueSize),
	}
	r.setRegistry(r.builtinCommands(), r.builtinCallbacks())
	return r
}

// SetOwners updates the owner list used for AccessOwnerOnly checks.
func (r *Router) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	r.mu.Lock()
	r.owners = cp
	r.mu.Unlock()
}

func (r *Router) isOwner(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.owners {
		if o == id {
			return true
		}
	}
	return false
}

func (r *Router) setRegistry(cmds []Command, cbs []CallbackRoute) {
	byName := map[string]Command{}
	for _, c := range cmds {
		if c.Handle == nil || c.Name == "" {
			continue
		}
		byName[c.Name] = c
		for _, a := range c.Aliases {
			if a = strings.TrimSpace(a); a != "" {
				byName[a] = c
			}
		}
	}
	cb := map[string]CallbackRoute{}
	for _, rt := range cbs {
		if rt.Handle == nil {
			continue
		}
		cb[rt.Scope+":"+rt.Action] = rt
	}
	r.mu.Lock()
	r.commands = cmds
	r.byName = byName
	r.callbacks = cb
	r.mu.Unlock()
}

// Commands returns the registered commands in registration order.
func (r *Router) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Command(nil), r.commands...)
}

// PublishMenu pushes the public command list to adapters that support it.
func (r *Router) PublishMenu(ctx context.Context) error {
	up, ok := r.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return up.UpdateMenuCommands(cctx, menuCommands(r.Commands()))
}

// Supervisor returns the dispatcher's supervisor (nil if not running).
func (r *Router) Supervisor() *supervisor.Supervisor {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if !r.running {
		return nil
	}
	return r.sup
}

func (r *Router) setSupervisor(sup *supervisor.Supervisor, running bool) {
	r.runMu.Lock()
	r.sup = sup
	r.running = running
	r.runMu.Unlock()
}

// tryEnqueue is a panic-safe enqueue helper (handles the jobs channel being closed).
func (r *Router) tryEnqueue(fn func()) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
		}
	}()
	select {
	case r.jobs <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop consumes updates until ctx is done or updates is closed,
// handling them on a bounded worker pool.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := r.cfg.Workers
	sup := supervisor.New(ctx,
		supervisor.WithLogger(r.log),
		supervisor.WithCancelOnError(false),
	)
	r.setSupervisor(sup, true)
	r.log.Info("dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(r.jobs)))

	var closeOnce sync.Once
	closeJobs := func() {
		closeOnce.Do(func() {
			r.setSupervisor(sup, false)
			close(r.jobs)
		})
	}

	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-r.jobs:
					if !ok {
						return nil
					}
					func() {
						defer func() {
							if rec := recover(); rec != nil {
								r.log.Error("panic in dispatch job", logx.Int("worker", idx), logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		},
			supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			supervisor.WithPublishFirstError(true),
			supervisor.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		closeJobs()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.setSupervisor(nil, false)
		r.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			u := up
			if !r.tryEnqueue(func() { r.Handle(ctx, u) }) {
				r.rejectBusy(ctx, u)
			}
		}
	}
}

func (r *Router) rejectBusy(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateCallback:
		if up.Callback != nil {
			_ = r.adapter.AnswerCallback(ctx, up.Callback.ID, textBusy)
		}
	case kit.UpdateMessage:
		if up.Message != nil {
			_, _ = r.adapter.SendText(ctx, kit.ChatTarget{ChatID: up.Message.ChatID, ThreadID: up.Message.ThreadID}, textBusy, nil)
		}
	}
}

// Handle routes a single update synchronously.
func (r *Router) Handle(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		r.routeMessage(ctx, up)
	case kit.UpdateCallback:
		r.routeCallback(ctx, up)
	}
}

func (r *Router) request(up kit.Update, chat kit.ChatTarget, from int64, route string) *Request {
	rid := newReqID()
	return &Request{
		Update: up,
		Chat:   chat,
		FromID: from,
		Route:  route,
		ReqID:  rid,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", from),
			logx.String("route", route),
		),
	}
}

func (r *Router) run(ctx context.Context, h HandlerFunc, timeout time.Duration, req *Request) error {
	if timeout <= 0 {
		timeout = r.cfg.CommandTimeout
	}
	final := Chain(h,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(timeout),
	)
	return final(ctx, req)
}

func (r *Router) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if !strings.HasPrefix(text, "/") {
		if r.sessions.Flow(msg.ChatID, msg.FromID) != selection.FlowMessage {
			return
		}
		req := r.request(up, chat, msg.FromID, "message")
		req.Payload = text
		_ = r.run(ctx, r.handleNewMessage, 0, req)
		return
	}

	fields := strings.Fields(text)
	word := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	word = strings.ToLower(word)

	r.mu.RLock()
	cmd, ok := r.byName[word]
	r.mu.RUnlock()
	if !ok {
		_, _ = r.adapter.SendText(ctx, chat, textUnknownCommand, nil)
		return
	}
	if cmd.Access == AccessOwnerOnly && !r.isOwner(msg.FromID) {
		_, _ = r.adapter.SendText(ctx, chat, textUnauthorized, nil)
		return
	}
	req := r.request(up, chat, msg.FromID, cmd.Name)
	req.Args = fields[1:]
	_ = r.run(ctx, cmd.Handle, cmd.Timeout, req)
}

func (r *Router) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	scope, action, payload, ok := tgui.SplitData(cb.Data)
	if !ok {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}
	r.mu.RLock()
	route, ok := r.callbacks[scope+":"+action]
	r.mu.RUnlock()
	if !ok {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}

	chat := kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}
	req := r.request(up, chat, cb.FromID, "cb:"+scope+":"+action)
	req.Payload = payload
	req.Ref = kit.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID}
	_ = r.run(ctx, route.Handle, route.Timeout, req)
	// stop the client's loading indicator
	_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
}

func newReqID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
