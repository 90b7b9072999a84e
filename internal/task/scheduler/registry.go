package scheduler

import (
	"sort"
	"sync"
	"time"

	"remindbot/internal/reminder"
)

// JobInfo is a read-only view of a registered job. The timer handle itself
// never leaves the registry.
type JobInfo struct {
	ID           reminder.ID `json:"id"`
	Recipient    int64       `json:"recipient"`
	Name         string      `json:"name"`
	Next         time.Time   `json:"next"`
	Prev         time.Time   `json:"prev,omitempty"`
	RegisteredAt time.Time   `json:"registered_at"`
}

type regEntry struct {
	recipient int64
	handle    *Handle
	at        time.Time
}

// Registry maps reminder ids to live jobs. At most one handle is live per id:
// Register cancels whatever it replaces.
type Registry struct {
	mu   sync.RWMutex
	jobs map[reminder.ID]regEntry
	now  func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{jobs: map[reminder.ID]regEntry{}, now: time.Now}
}

// Register stores h under id. It reports whether an older job was replaced.
func (r *Registry) Register(id reminder.ID, recipient int64, h *Handle) bool {
	if h == nil {
		return false
	}
	r.mu.Lock()
	old, existed := r.jobs[id]
	r.jobs[id] = regEntry{recipient: recipient, handle: h, at: r.now()}
	r.mu.Unlock()

	if existed && old.handle != h {
		old.handle.Cancel()
	}
	return existed
}

// Cancel removes and stops the job for id. Absent ids return false.
func (r *Registry) Cancel(id reminder.ID) bool {
	r.mu.Lock()
	ent, ok := r.jobs[id]
	if ok {
		delete(r.jobs, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	ent.handle.Cancel()
	return true
}

func (r *Registry) Lookup(id reminder.ID) (JobInfo, bool) {
	r.mu.RLock()
	ent, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok {
		return JobInfo{}, false
	}
	return infoOf(id, ent), true
}

// Holds reports whether id has an active job for recipient on the weekly
// slot w. A held job can stay armed across a reload, keeping any occurrence
// that is due but not yet fired.
func (r *Registry) Holds(id reminder.ID, recipient int64, w Weekly) bool {
	r.mu.RLock()
	ent, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok || ent.recipient != recipient || !ent.handle.Active() {
		return false
	}
	cur, ok := ent.handle.sched.(Weekly)
	return ok && cur.Equal(w)
}

func (r *Registry) Has(id reminder.ID) bool {
	r.mu.RLock()
	_, ok := r.jobs[id]
	r.mu.RUnlock()
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// IDs returns the registered ids in lexical order.
func (r *Registry) IDs() []reminder.ID {
	r.mu.RLock()
	out := make([]reminder.ID, 0, len(r.jobs))
	for id := range r.jobs {
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Snapshot lists every job ordered by next fire instant.
func (r *Registry) Snapshot() []JobInfo {
	r.mu.RLock()
	out := make([]JobInfo, 0, len(r.jobs))
	for id, ent := range r.jobs {
		out = append(out, infoOf(id, ent))
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Next.Equal(out[j].Next) {
			return out[i].Next.Before(out[j].Next)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Retain cancels every job whose id is not in keep and returns those ids.
func (r *Registry) Retain(keep map[reminder.ID]struct{}) []reminder.ID {
	r.mu.Lock()
	var (
		dropped []reminder.ID
		handles []*Handle
	)
	for id, ent := range r.jobs {
		if _, ok := keep[id]; ok {
			continue
		}
		dropped = append(dropped, id)
		handles = append(handles, ent.handle)
		delete(r.jobs, id)
	}
	r.mu.Unlock()
	for _, h := range handles {
		h.Cancel()
	}
	sort.Slice(dropped, func(i, j int) bool { return dropped[i] < dropped[j] })
	return dropped
}

// CancelAll stops every job and empties the registry.
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	jobs := r.jobs
	r.jobs = map[reminder.ID]regEntry{}
	r.mu.Unlock()
	for _, ent := range jobs {
		ent.handle.Cancel()
	}
	return len(jobs)
}

func infoOf(id reminder.ID, ent regEntry) JobInfo {
	return JobInfo{
		ID:           id,
		Recipient:    ent.recipient,
		Name:         ent.handle.Name(),
		Next:         ent.handle.Next(),
		Prev:         ent.handle.Prev(),
		RegisteredAt: ent.at,
	}
}
