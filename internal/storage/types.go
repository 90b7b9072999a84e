package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "file": snapshot + journal files, no database needed
//   - "memory": process-local, lost on restart
//   - "supabase": PostgREST table over HTTPS
//   - "mongo": MongoDB collection
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	// Remote drivers.
	URL        string
	Key        string // supabase only
	Table      string // supabase table, default "reminders"
	Database   string // mongo only
	Collection string // mongo only
	Timeout    time.Duration
}

const (
	defaultTable      = "reminders"
	defaultDatabase   = "remindbot"
	defaultCollection = "reminders"
)
