package notifier

import "time"

// Config controls the async delivery pipeline.
type Config struct {
	Enabled         bool
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	SendTimeout     time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
	PersistDedup    bool

	// BreakerFailures consecutive send failures open the circuit for
	// BreakerCooldown. Zero disables the breaker.
	BreakerFailures int
	BreakerCooldown time.Duration
}

type HistoryItem struct {
	At     time.Time
	ChatID int64
	Key    string
}

// NotificationEvent is the Data of notifier.* bus events.
type NotificationEvent struct {
	ChatID   int64     `json:"chat_id"`
	ThreadID int       `json:"thread_id,omitempty"`
	Key      string    `json:"key"`
	At       time.Time `json:"at"`
	Attempts int       `json:"attempts,omitempty"`
	Error    string    `json:"error,omitempty"`
}
