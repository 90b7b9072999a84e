package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the bot. Metrics and the debug logger subscribe
// to these; publishers never wait on subscribers.
const (
	TypeJobFired       = "scheduler.fired"
	TypeJobRearmFailed = "scheduler.rearm_failed"

	TypeReminderCreated = "reminder.created"
	TypeReminderDeleted = "reminder.deleted"
	TypeReminderUpdated = "reminder.updated"
	TypeReminderDue     = "reminder.due"
	TypeReloadDone      = "reminder.reload_done"

	TypeNotifySent    = "notifier.sent"
	TypeNotifyFailed  = "notifier.failed"
	TypeNotifyQueued  = "notifier.queued"
	TypeNotifyDropped = "notifier.dropped"
	TypeNotifyDeduped = "notifier.deduped"
)

// Event is a lightweight, in-memory signal used to decouple components.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers MUST use buffered channels.
//   - Slow subscribers may drop events (bounded backpressure).
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, unsub
}
