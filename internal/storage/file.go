package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

// fileStore keeps state in memory and makes it durable with two files:
//   - <prefix>.snapshot.json (periodic full snapshot)
//   - <prefix>.journal.jsonl (append-only mutations since the snapshot)
//
// The journal is compacted into the snapshot every compactEvery writes.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex
	st *memState

	snapshotPath string
	journal      *os.File
	writes       int
	compactEvery int
}

type journalOp string

const (
	opPut    journalOp = "put"
	opDelete journalOp = "del"
	opSetMsg journalOp = "msg"
	opDedup  journalOp = "dedup"
)

const fileCompact = 1000

type journalEntry struct {
	Op     journalOp        `json:"op"`
	Record *reminder.Record `json:"record,omitempty"`
	ID     reminder.ID      `json:"id,omitempty"`
	Msg    string           `json:"msg,omitempty"`
	Key    string           `json:"key,omitempty"`
	Until  int64            `json:"until,omitempty"`
}

type fileSnapshot struct {
	Reminders []reminder.Record `json:"reminders"`
	Dedup     map[string]int64  `json:"dedup"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".snapshot.json"
	journalPath := prefix + ".journal.jsonl"

	st := newMemState()
	if err := loadSnapshot(snapPath, st); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err := replayJournal(journalPath, st, log); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	st.pruneDedup(time.Now())

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	fs := &fileStore{
		log:          log,
		st:           st,
		snapshotPath: snapPath,
		journal:      jf,
		compactEvery: fileCompact,
	}
	// Start from a clean journal so a torn tail never merges with new lines.
	if err := fs.compactLocked(); err != nil {
		_ = jf.Close()
		return nil, err
	}
	log.Debug("file store opened", logx.String("path", prefix), logx.Int("reminders", len(st.rows)))
	return fs, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.compactLocked()
	if cerr := s.journal.Close(); err == nil {
		err = cerr
	}
	s.journal = nil
	return err
}

func (s *fileStore) appendLocked(e journalEntry) error {
	if s.journal == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.journal).Encode(e); err != nil {
		return err
	}
	s.writes++
	if s.writes%s.compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Warn("journal compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) Create(_ context.Context, r reminder.Record) (reminder.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return "", ErrClosed
	}
	r.ID = reminder.ID(uuid.NewString())
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r = cloneRecord(r)
	if err := s.appendLocked(journalEntry{Op: opPut, Record: &r}); err != nil {
		return "", err
	}
	s.st.put(r)
	return r.ID, nil
}

func (s *fileStore) GetAll(context.Context) ([]reminder.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil, ErrClosed
	}
	return s.st.all(), nil
}

func (s *fileStore) Get(_ context.Context, id reminder.ID) (reminder.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return reminder.Record{}, false, ErrClosed
	}
	r, ok := s.st.rows[id]
	return cloneRecord(r), ok, nil
}

func (s *fileStore) ListByOwner(_ context.Context, chatID int64) ([]reminder.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil, ErrClosed
	}
	return s.st.byOwner(chatID), nil
}

func (s *fileStore) UpdateMessage(_ context.Context, chatID int64, msg string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range s.st.ownerIDs(chatID) {
		if err := s.appendLocked(journalEntry{Op: opSetMsg, ID: id, Msg: msg}); err != nil {
			return n, err
		}
		s.st.setMessage(id, msg)
		n++
	}
	return n, nil
}

func (s *fileStore) UpdateMessageByID(_ context.Context, id reminder.ID, msg string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.rows[id]; !ok {
		return false, nil
	}
	if err := s.appendLocked(journalEntry{Op: opSetMsg, ID: id, Msg: msg}); err != nil {
		return false, err
	}
	return s.st.setMessage(id, msg), nil
}

func (s *fileStore) Delete(_ context.Context, id reminder.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.rows[id]; !ok {
		return false, nil
	}
	if err := s.appendLocked(journalEntry{Op: opDelete, ID: id}); err != nil {
		return false, err
	}
	delete(s.st.rows, id)
	return true, nil
}

func (s *fileStore) PutDedup(_ context.Context, key string, until time.Time) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	ms := until.UnixMilli()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLocked(journalEntry{Op: opDedup, Key: key, Until: ms}); err != nil {
		return err
	}
	s.st.dedup[key] = ms
	return nil
}

func (s *fileStore) GetDedup(_ context.Context, key string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.st.dedup[strings.TrimSpace(key)]
	if !ok {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

func (s *fileStore) compactLocked() error {
	s.st.pruneDedup(time.Now())
	snap := fileSnapshot{Reminders: s.st.all(), Dedup: s.st.dedup}

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func loadSnapshot(path string, st *memState) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var snap fileSnapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return err
	}
	for _, r := range snap.Reminders {
		st.put(r)
	}
	for k, v := range snap.Dedup {
		st.dedup[k] = v
	}
	return nil
}

// replayJournal skips torn or unknown lines; a crash mid-write leaves at
// most one partial trailing line.
func replayJournal(path string, st *memState, log logx.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	skipped := 0
	for sc.Scan() {
		var e journalEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			skipped++
			continue
		}
		switch e.Op {
		case opPut:
			if e.Record != nil {
				st.put(*e.Record)
			}
		case opDelete:
			delete(st.rows, e.ID)
		case opSetMsg:
			st.setMessage(e.ID, e.Msg)
		case opDedup:
			if e.Key != "" {
				st.dedup[e.Key] = e.Until
			}
		default:
			skipped++
		}
	}
	if skipped > 0 {
		log.Warn("journal lines skipped", logx.Int("count", skipped))
	}
	return sc.Err()
}
