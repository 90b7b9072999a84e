package storage

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"remindbot/internal/reminder"
)

// memState holds rows and dedup entries. The file driver journals on top
// of it; the memory driver uses it directly.
type memState struct {
	rows   map[reminder.ID]reminder.Record
	dedup  map[string]int64 // unix milli
	nextID int64
}

func newMemState() *memState {
	return &memState{rows: map[reminder.ID]reminder.Record{}, dedup: map[string]int64{}}
}

func (m *memState) put(r reminder.Record) {
	m.rows[r.ID] = cloneRecord(r)
	if n, err := strconv.ParseInt(string(r.ID), 10, 64); err == nil && n > m.nextID {
		m.nextID = n
	}
}

func (m *memState) all() []reminder.Record {
	out := make([]reminder.Record, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, cloneRecord(r))
	}
	sortRecords(out)
	return out
}

func (m *memState) byOwner(chatID int64) []reminder.Record {
	out := make([]reminder.Record, 0, 4)
	for _, r := range m.rows {
		if r.ChatID == chatID {
			out = append(out, cloneRecord(r))
		}
	}
	sortRecords(out)
	return out
}

func (m *memState) setMessage(id reminder.ID, msg string) bool {
	r, ok := m.rows[id]
	if !ok {
		return false
	}
	r.Message = msg
	m.rows[id] = r
	return true
}

func (m *memState) ownerIDs(chatID int64) []reminder.ID {
	var ids []reminder.ID
	for _, r := range m.byOwner(chatID) {
		ids = append(ids, r.ID)
	}
	return ids
}

func (m *memState) pruneDedup(now time.Time) {
	ms := now.UnixMilli()
	for k, v := range m.dedup {
		if v < ms {
			delete(m.dedup, k)
		}
	}
}

type memStore struct {
	mu     sync.Mutex
	st     *memState
	closed bool
	now    func() time.Time
}

// NewMemory returns a process-local Store. Ids are decimal counters.
func NewMemory() Store {
	return &memStore{st: newMemState(), now: time.Now}
}

func (s *memStore) Create(_ context.Context, r reminder.Record) (reminder.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	s.st.nextID++
	r.ID = reminder.ID(strconv.FormatInt(s.st.nextID, 10))
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}
	s.st.put(r)
	return r.ID, nil
}

func (s *memStore) GetAll(context.Context) ([]reminder.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.st.all(), nil
}

func (s *memStore) Get(_ context.Context, id reminder.ID) (reminder.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return reminder.Record{}, false, ErrClosed
	}
	r, ok := s.st.rows[id]
	return cloneRecord(r), ok, nil
}

func (s *memStore) ListByOwner(_ context.Context, chatID int64) ([]reminder.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.st.byOwner(chatID), nil
}

func (s *memStore) UpdateMessage(_ context.Context, chatID int64, msg string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	n := 0
	for _, id := range s.st.ownerIDs(chatID) {
		if s.st.setMessage(id, msg) {
			n++
		}
	}
	return n, nil
}

func (s *memStore) UpdateMessageByID(_ context.Context, id reminder.ID, msg string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	return s.st.setMessage(id, msg), nil
}

func (s *memStore) Delete(_ context.Context, id reminder.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	_, ok := s.st.rows[id]
	delete(s.st.rows, id)
	return ok, nil
}

func (s *memStore) PutDedup(_ context.Context, key string, until time.Time) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.st.dedup[key] = until.UnixMilli()
	return nil
}

func (s *memStore) GetDedup(_ context.Context, key string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return time.Time{}, false, ErrClosed
	}
	ms, ok := s.st.dedup[strings.TrimSpace(key)]
	if !ok {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

func (s *memStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
