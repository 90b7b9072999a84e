package scheduler

import (
	"sort"
	"sync"
	"time"
)

// Timer is the subset of *time.Timer the engine relies on.
type Timer interface {
	Stop() bool
}

// Clock supplies the current instant and one-shot callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

// SystemClock is backed by time.Now and time.AfterFunc.
func SystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// ManualClock is a deterministic Clock for tests. Time only moves on
// Advance/Set, and due callbacks run synchronously on the caller's goroutine
// in deadline order.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers map[uint64]*manualTimer
}

type manualTimer struct {
	c   *ManualClock
	id  uint64
	at  time.Time
	f   func()
	seq uint64
}

func NewManualClock(now time.Time) *ManualClock {
	return &ManualClock{now: now, timers: map[uint64]*manualTimer{}}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d < 0 {
		d = 0
	}
	c.seq++
	t := &manualTimer{c: c, id: c.seq, at: c.now.Add(d), f: f, seq: c.seq}
	c.timers[t.id] = t
	return t
}

func (t *manualTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if _, ok := t.c.timers[t.id]; !ok {
		return false
	}
	delete(t.c.timers, t.id)
	return true
}

// Advance moves the clock forward by d, firing every timer that becomes due.
// It returns the number of callbacks run.
func (c *ManualClock) Advance(d time.Duration) int {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	return c.Set(target)
}

// Set moves the clock to t (never backwards) firing due timers on the way.
func (c *ManualClock) Set(target time.Time) int {
	fired := 0
	for {
		c.mu.Lock()
		next := c.nextDueLocked(target)
		if next == nil {
			if target.After(c.now) {
				c.now = target
			}
			c.mu.Unlock()
			return fired
		}
		delete(c.timers, next.id)
		if next.at.After(c.now) {
			c.now = next.at
		}
		f := next.f
		c.mu.Unlock()

		fired++
		f()
	}
}

func (c *ManualClock) nextDueLocked(target time.Time) *manualTimer {
	due := make([]*manualTimer, 0, len(c.timers))
	for _, t := range c.timers {
		if !t.at.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].at.Equal(due[j].at) {
			return due[i].at.Before(due[j].at)
		}
		return due[i].seq < due[j].seq
	})
	return due[0]
}

// Pending returns the number of armed timers.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// NextDeadline returns the earliest armed deadline.
func (c *ManualClock) NextDeadline() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var (
		best time.Time
		ok   bool
	)
	for _, t := range c.timers {
		if !ok || t.at.Before(best) {
			best, ok = t.at, true
		}
	}
	return best, ok
}
