package lifecycle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	"remindbot/internal/task/scheduler"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// Deliverer hands a due reminder to the outbound pipeline.
type Deliverer interface {
	Notify(ctx context.Context, n kit.Notification) error
}

type Config struct {
	// DefaultMessage is sent when a reminder has no custom message.
	DefaultMessage string
	// ReadTimeout bounds the fire-time store read.
	ReadTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.DefaultMessage) == "" {
		c.DefaultMessage = reminder.DefaultMessage
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 3 * time.Second
	}
	return c
}

// NewReminder is what the selection flow collects.
type NewReminder struct {
	Chat    int64
	User    int64
	Time    reminder.TimeOfDay
	Days    reminder.DaySet
	Message string
}

// Target selects the rows an UpdateMessage touches: every reminder of an
// owner chat, or a single id.
type Target struct {
	Chat int64
	ID   reminder.ID
}

func OwnerTarget(chat int64) Target  { return Target{Chat: chat} }
func IDTarget(id reminder.ID) Target { return Target{ID: id} }

func (t Target) byID() bool  { return t.ID != "" }
func (t Target) valid() bool { return t.byID() != (t.Chat != 0) }

// Entry is a reminder with its live schedule, if any. A Corrupt entry is a
// row that failed to parse: only Spec.ID, OwnerChat, UserID and Message are set.
type Entry struct {
	Spec    reminder.Spec
	Next    time.Time
	Active  bool
	Corrupt bool
}

// Manager owns the create/update/delete/reload lifecycle.
//
// Mutations hold mu.RLock; Reload holds mu.Lock, so a reload never
// interleaves with a mutation. Until the first reload completes every
// mutation returns ErrNotReady. After Stop, reloads return ErrStopped.
type Manager struct {
	mu      sync.RWMutex
	ready   atomic.Bool
	stopped bool // guarded by mu

	store  storage.Store
	engine *scheduler.Engine
	reg    *scheduler.Registry
	out    Deliverer
	log    logx.Logger
	bus    eventbus.Bus

	cmu sync.RWMutex
	cfg Config

	resync *scheduler.Handle
}

func New(cfg Config, store storage.Store, engine *scheduler.Engine, reg *scheduler.Registry, out Deliverer, log logx.Logger, bus eventbus.Bus) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{
		store:  store,
		engine: engine,
		reg:    reg,
		out:    out,
		log:    log.With(logx.String("comp", "lifecycle")),
		bus:    bus,
		cfg:    cfg.withDefaults(),
	}
}

// Apply swaps the delivery settings. Live jobs pick them up on their next fire.
func (m *Manager) Apply(cfg Config) {
	m.cmu.Lock()
	m.cfg = cfg.withDefaults()
	m.cmu.Unlock()
}

func (m *Manager) config() Config {
	m.cmu.RLock()
	defer m.cmu.RUnlock()
	return m.cfg
}

// Ready reports whether the first reload has completed.
func (m *Manager) Ready() bool { return m.ready.Load() }

func (m *Manager) Registry() *scheduler.Registry { return m.reg }

// Location is the zone reminders fire in.
func (m *Manager) Location() *time.Location { return m.engine.Location() }

func (m *Manager) checkReady(op string) error {
	if !m.ready.Load() {
		return reminder.E(reminder.KindScheduling, op, reminder.ErrNotReady)
	}
	return nil
}

// Create persists a reminder and arms its job.
//
// A store failure leaves nothing scheduled. If the row is stored but arming
// fails, the row is returned without error: the inconsistency is logged and
// the next reload heals it.
func (m *Manager) Create(ctx context.Context, in NewReminder) (reminder.Spec, error) {
	const op = "create reminder"
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkReady(op); err != nil {
		return reminder.Spec{}, err
	}

	sp := reminder.Spec{
		OwnerChat: in.Chat,
		UserID:    in.User,
		Time:      in.Time,
		Days:      in.Days,
		Message:   in.Message,
	}
	if err := sp.Validate(); err != nil {
		return reminder.Spec{}, err
	}
	id, err := m.store.Create(ctx, sp.Record())
	if err != nil {
		return reminder.Spec{}, reminder.E(reminder.KindPersistence, op, err)
	}
	sp.ID = id

	if err := m.arm(sp); err != nil {
		m.log.Error("scheduling inconsistency: reminder stored without a live job",
			logx.String("id", id.String()), logx.Int64("chat", sp.OwnerChat), logx.Err(err))
	}
	m.publish(eventbus.TypeReminderCreated, sp.ID, sp.OwnerChat)
	m.log.Info("reminder created", logx.String("id", id.String()), logx.Int64("chat", sp.OwnerChat), logx.String("when", sp.Describe()))
	return sp, nil
}

// UpdateMessage rewrites the stored message only; the live job reads it at
// fire time. It returns the number of rows changed.
func (m *Manager) UpdateMessage(ctx context.Context, t Target, msg string) (int, error) {
	const op = "update message"
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkReady(op); err != nil {
		return 0, err
	}
	if !t.valid() {
		return 0, reminder.E(reminder.KindValidation, op, errors.New("target needs exactly one of chat or id"))
	}
	msg = strings.TrimSpace(msg)
	if len(msg) > 4096 {
		return 0, reminder.E(reminder.KindValidation, op, reminder.ErrInvalidChoice)
	}

	var n int
	if t.byID() {
		ok, err := m.store.UpdateMessageByID(ctx, t.ID, msg)
		if err != nil {
			return 0, reminder.EID(reminder.KindPersistence, op, t.ID, err)
		}
		if !ok {
			return 0, reminder.EID(reminder.KindValidation, op, t.ID, reminder.ErrNotFound)
		}
		n = 1
	} else {
		var err error
		n, err = m.store.UpdateMessage(ctx, t.Chat, msg)
		if err != nil {
			return 0, reminder.E(reminder.KindPersistence, op, err)
		}
	}
	m.publish(eventbus.TypeReminderUpdated, t.ID, t.Chat)
	m.log.Info("reminder message updated", logx.Int64("chat", t.Chat), logx.String("id", t.ID.String()), logx.Int("rows", n))
	return n, nil
}

// Delete cancels the job (absence tolerated) and removes the row. A missing
// row is ErrNotFound; a failed store delete is a persistence error even
// though the job is already gone.
func (m *Manager) Delete(ctx context.Context, id reminder.ID) error {
	const op = "delete reminder"
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkReady(op); err != nil {
		return err
	}

	cancelled := m.reg.Cancel(id)
	ok, err := m.store.Delete(ctx, id)
	if err != nil {
		m.log.Error("reminder delete failed after cancel", logx.String("id", id.String()), logx.Bool("cancelled", cancelled), logx.Err(err))
		return reminder.EID(reminder.KindPersistence, op, id, err)
	}
	if !ok {
		return reminder.EID(reminder.KindValidation, op, id, reminder.ErrNotFound)
	}
	m.publish(eventbus.TypeReminderDeleted, id, 0)
	m.log.Info("reminder deleted", logx.String("id", id.String()), logx.Bool("cancelled", cancelled))
	return nil
}

// List returns the owner's reminders with their next fire instant.
// Rows that fail to parse are listed as Corrupt so they can still be deleted.
func (m *Manager) List(ctx context.Context, owner int64) ([]Entry, error) {
	recs, err := m.store.ListByOwner(ctx, owner)
	if err != nil {
		return nil, reminder.E(reminder.KindPersistence, "list reminders", err)
	}
	out := make([]Entry, 0, len(recs))
	for _, r := range recs {
		sp, err := reminder.ParseRecord(r)
		if err != nil {
			m.log.Warn("corrupt reminder in list", logx.String("id", r.ID.String()), logx.Err(err))
			out = append(out, Entry{
				Spec:    reminder.Spec{ID: r.ID, OwnerChat: r.ChatID, UserID: r.UserID, Message: r.Message},
				Corrupt: true,
			})
			continue
		}
		e := Entry{Spec: sp}
		if info, ok := m.reg.Lookup(sp.ID); ok {
			e.Next, e.Active = info.Next, !info.Next.IsZero()
		}
		out = append(out, e)
	}
	return out, nil
}

// Get returns a single reminder.
func (m *Manager) Get(ctx context.Context, id reminder.ID) (reminder.Spec, error) {
	r, ok, err := m.store.Get(ctx, id)
	if err != nil {
		return reminder.Spec{}, reminder.EID(reminder.KindPersistence, "get reminder", id, err)
	}
	if !ok {
		return reminder.Spec{}, reminder.EID(reminder.KindValidation, "get reminder", id, reminder.ErrNotFound)
	}
	return reminder.ParseRecord(r)
}

// Owner returns the chat that owns id from the raw row, without parsing it.
func (m *Manager) Owner(ctx context.Context, id reminder.ID) (int64, error) {
	r, ok, err := m.store.Get(ctx, id)
	if err != nil {
		return 0, reminder.EID(reminder.KindPersistence, "reminder owner", id, err)
	}
	if !ok {
		return 0, reminder.EID(reminder.KindValidation, "reminder owner", id, reminder.ErrNotFound)
	}
	return r.ChatID, nil
}

func (m *Manager) weekly(sp reminder.Spec) (scheduler.Weekly, error) {
	w, err := scheduler.NewWeekly(sp.Time, sp.Days, m.engine.Location())
	if err != nil {
		return scheduler.Weekly{}, reminder.EID(reminder.KindScheduling, "arm", sp.ID, err)
	}
	return w, nil
}

// arm builds the weekly schedule for sp and registers its job, replacing
// any previous job for the same id.
func (m *Manager) arm(sp reminder.Spec) error {
	w, err := m.weekly(sp)
	if err != nil {
		return err
	}
	return m.armWeekly(sp, w)
}

func (m *Manager) armWeekly(sp reminder.Spec, w scheduler.Weekly) error {
	h, err := m.engine.Arm(sp.ID.JobName(), w, func(ctx context.Context, at time.Time) {
		m.deliver(ctx, sp, at)
	})
	if err != nil {
		return reminder.EID(reminder.KindScheduling, "arm", sp.ID, err)
	}
	m.reg.Register(sp.ID, sp.OwnerChat, h)
	return nil
}

func (m *Manager) publish(typ string, id reminder.ID, chat int64) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventbus.Event{Type: typ, Time: m.engine.Now(), Data: ReminderEvent{ID: id, Chat: chat}})
}

// ReminderEvent is the Data of reminder.* bus events.
type ReminderEvent struct {
	ID   reminder.ID `json:"id,omitempty"`
	Chat int64       `json:"chat,omitempty"`
	At   time.Time   `json:"at,omitempty"`
}

// Stop cancels the resync job and every registered reminder job. A reload
// already waiting on the lock returns ErrStopped instead of re-arming.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	if m.resync != nil {
		m.resync.Cancel()
		m.resync = nil
	}
	n := m.reg.CancelAll()
	m.ready.Store(false)
	m.log.Debug("lifecycle stopped", logx.Int("jobs_cancelled", n))
}
