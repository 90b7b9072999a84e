package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/eventbus"
	logx "remindbot/pkg/logx"
)

var (
	ErrEngineStopped = errors.New("scheduler engine stopped")
	ErrNoNextFire    = errors.New("schedule has no next fire time")
)

// FireFunc runs once per occurrence. at is the scheduled instant, not the
// instant the callback started.
type FireFunc func(ctx context.Context, at time.Time)

// Config controls the engine.
type Config struct {
	// Location is the zone schedules are evaluated in. nil means time.Local.
	Location *time.Location
	// FireTimeout bounds a single FireFunc call. 0 means no bound.
	FireTimeout time.Duration
}

// JobEvent is published on the bus for fire and re-arm transitions.
type JobEvent struct {
	Name  string    `json:"name"`
	At    time.Time `json:"at"`
	Next  time.Time `json:"next,omitempty"`
	Error string    `json:"error,omitempty"`
}

// Engine arms cron.Schedule values as chains of one-shot timers.
//
// Each occurrence is a fired -> re-armed transition: the callback runs, then
// the next instant is computed from max(now, fired instant) so a slow
// callback never causes a duplicate fire. A failed re-arm is logged and
// counted; the handle becomes inactive.
type Engine struct {
	clock Clock
	loc   *time.Location
	log   logx.Logger
	bus   eventbus.Bus

	fireTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	live    map[*Handle]struct{}

	fired         atomic.Uint64
	panics        atomic.Uint64
	rearmFailures atomic.Uint64
}

func NewEngine(cfg Config, clock Clock, log logx.Logger, bus eventbus.Bus) *Engine {
	if clock == nil {
		clock = SystemClock()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		clock:       clock,
		loc:         loc,
		log:         log,
		bus:         bus,
		fireTimeout: cfg.FireTimeout,
		ctx:         ctx,
		cancel:      cancel,
		live:        map[*Handle]struct{}{},
	}
}

func (e *Engine) Location() *time.Location { return e.loc }

// Now returns the clock's current instant in the engine location.
func (e *Engine) Now() time.Time { return e.clock.Now().In(e.loc) }

// Arm schedules fire according to sched, starting from the current instant.
func (e *Engine) Arm(name string, sched cron.Schedule, fire FireFunc) (*Handle, error) {
	if sched == nil || fire == nil {
		return nil, errors.New("scheduler: schedule and fire func are required")
	}
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil, ErrEngineStopped
	}
	h := &Handle{e: e, name: name, sched: sched, fire: fire}
	e.live[h] = struct{}{}
	e.mu.Unlock()

	h.mu.Lock()
	err := h.armLocked(e.clock.Now())
	h.mu.Unlock()
	if err != nil {
		e.forget(h)
		return nil, fmt.Errorf("arm %s: %w", name, err)
	}
	return h, nil
}

// Stop cancels every live handle and rejects later arms. In-flight
// callbacks see their context cancelled.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	hs := make([]*Handle, 0, len(e.live))
	for h := range e.live {
		hs = append(hs, h)
	}
	e.mu.Unlock()

	e.cancel()
	for _, h := range hs {
		h.Cancel()
	}
	e.log.Debug("scheduler engine stopped", logx.Int("cancelled", len(hs)))
}

func (e *Engine) isStopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

func (e *Engine) forget(h *Handle) {
	e.mu.Lock()
	delete(e.live, h)
	e.mu.Unlock()
}

func (e *Engine) runFire(h *Handle, at time.Time) {
	e.fired.Add(1)
	ctx := e.ctx
	var cancel context.CancelFunc
	if e.fireTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, e.fireTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			e.panics.Add(1)
			e.log.Error("job panicked",
				logx.String("job", h.name),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())),
			)
		}
	}()
	h.fire(ctx, at)
}

func (e *Engine) publish(typ string, ev JobEvent) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}

func (e *Engine) rearmFailed(h *Handle, at time.Time, err error) {
	e.rearmFailures.Add(1)
	e.forget(h)
	e.log.Warn("job not re-armed", logx.String("job", h.name), logx.Time("fired_at", at), logx.Err(err))
	e.publish(eventbus.TypeJobRearmFailed, JobEvent{Name: h.name, At: at, Error: err.Error()})
}

// Handle is one armed recurring job.
type Handle struct {
	e     *Engine
	name  string
	sched cron.Schedule
	fire  FireFunc

	mu        sync.Mutex
	timer     Timer
	next      time.Time
	prev      time.Time
	ver       uint64
	cancelled bool
}

func (h *Handle) Name() string { return h.name }

// Next returns the pending fire instant (zero when inactive).
func (h *Handle) Next() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled {
		return time.Time{}
	}
	return h.next
}

// Prev returns the last fired instant.
func (h *Handle) Prev() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.prev
}

func (h *Handle) Active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.cancelled && !h.next.IsZero()
}

// Cancel stops the job. It reports whether the handle was still active.
// A callback already running finishes, but no further occurrence is armed.
func (h *Handle) Cancel() bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	if h.cancelled {
		h.mu.Unlock()
		return false
	}
	h.cancelled = true
	h.ver++
	wasActive := !h.next.IsZero()
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.next = time.Time{}
	h.mu.Unlock()
	h.e.forget(h)
	return wasActive
}

func (h *Handle) armLocked(base time.Time) error {
	e := h.e
	next := h.sched.Next(base.In(e.loc))
	if next.IsZero() {
		h.next = time.Time{}
		return ErrNoNextFire
	}
	delay := next.Sub(e.clock.Now())
	if delay < 0 {
		delay = 0
	}
	h.ver++
	v := h.ver
	h.next = next
	h.timer = e.clock.AfterFunc(delay, func() { h.wake(v) })
	return nil
}

func (h *Handle) wake(v uint64) {
	e := h.e

	h.mu.Lock()
	if h.cancelled || v != h.ver {
		h.mu.Unlock()
		return
	}
	at := h.next
	h.prev = at
	h.timer = nil
	h.mu.Unlock()

	e.runFire(h, at)
	e.publish(eventbus.TypeJobFired, JobEvent{Name: h.name, At: at})

	h.mu.Lock()
	if h.cancelled || v != h.ver {
		h.mu.Unlock()
		return
	}
	if e.isStopped() {
		h.next = time.Time{}
		h.mu.Unlock()
		e.rearmFailed(h, at, ErrEngineStopped)
		return
	}
	base := e.clock.Now()
	if base.Before(at) {
		base = at
	}
	err := h.armLocked(base)
	h.mu.Unlock()
	if err != nil {
		e.rearmFailed(h, at, err)
	}
}
