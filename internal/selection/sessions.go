package selection

import (
	"sync"
	"time"
)

// Flow tags what a chat's open dialogue is waiting for.
type Flow uint8

const (
	FlowNone Flow = iota
	FlowReminder
	FlowMessage // next free-text message becomes the reminder message
)

func (f Flow) String() string {
	switch f {
	case FlowReminder:
		return "reminder"
	case FlowMessage:
		return "message"
	default:
		return "none"
	}
}

type sessionKey struct {
	chat int64
	user int64
}

type sessionEntry struct {
	flow    Flow
	sess    *Session
	touched time.Time
}

// Sessions holds at most one open dialogue per (chat, user). Entries idle
// longer than the TTL are treated as absent and dropped by Sweep.
type Sessions struct {
	mu  sync.Mutex
	ttl time.Duration
	now func() time.Time
	m   map[sessionKey]*sessionEntry
}

func NewSessions(ttl time.Duration) *Sessions {
	return &Sessions{ttl: ttl, now: time.Now, m: map[sessionKey]*sessionEntry{}}
}

func (s *Sessions) SetTTL(ttl time.Duration) {
	s.mu.Lock()
	s.ttl = ttl
	s.mu.Unlock()
}

// BeginReminder starts a fresh setup dialogue, replacing any open one.
func (s *Sessions) BeginReminder(chat, user int64) *Session {
	sess := NewSession(chat, user)
	s.mu.Lock()
	s.m[sessionKey{chat, user}] = &sessionEntry{flow: FlowReminder, sess: sess, touched: s.now()}
	s.mu.Unlock()
	return sess
}

// BeginMessage waits for the next free-text message, replacing any open dialogue.
func (s *Sessions) BeginMessage(chat, user int64) {
	s.mu.Lock()
	s.m[sessionKey{chat, user}] = &sessionEntry{flow: FlowMessage, touched: s.now()}
	s.mu.Unlock()
}

// Flow reports the open dialogue kind and refreshes its idle timer.
func (s *Sessions) Flow(chat, user int64) Flow {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.liveLocked(sessionKey{chat, user})
	if e == nil {
		return FlowNone
	}
	e.touched = s.now()
	return e.flow
}

// Reminder returns the open setup dialogue, if any.
func (s *Sessions) Reminder(chat, user int64) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.liveLocked(sessionKey{chat, user})
	if e == nil || e.flow != FlowReminder {
		return nil, false
	}
	e.touched = s.now()
	return e.sess, true
}

// End drops the open dialogue. It reports whether one existed.
func (s *Sessions) End(chat, user int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := sessionKey{chat, user}
	e := s.liveLocked(k)
	delete(s.m, k)
	return e != nil
}

// Sweep drops expired dialogues and returns how many were removed.
func (s *Sessions) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.m {
		if s.expiredLocked(e) {
			delete(s.m, k)
			n++
		}
	}
	return n
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

func (s *Sessions) liveLocked(k sessionKey) *sessionEntry {
	e, ok := s.m[k]
	if !ok {
		return nil
	}
	if s.expiredLocked(e) {
		delete(s.m, k)
		return nil
	}
	return e
}

func (s *Sessions) expiredLocked(e *sessionEntry) bool {
	return s.ttl > 0 && s.now().Sub(e.touched) > s.ttl
}
