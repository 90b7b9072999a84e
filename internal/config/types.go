package config

// Config is the on-disk configuration (JSON or YAML). Durations are Go
// duration strings ("500ms", "10s", "1m").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Reminders RemindersConfig `json:"reminders"`
	Selection SelectionConfig `json:"selection"`
	Notifier  *NotifierConfig `json:"notifier,omitempty"`
	Storage   StorageConfig   `json:"storage"`
	Ops       OpsConfig       `json:"ops"`
}

type TelegramConfig struct {
	Token        string  `json:"token" validate:"required"`
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
	// GroupLog is the chat id (as a string) that receives log lines when
	// logging.telegram is enabled.
	GroupLog    string `json:"group_log,omitempty"`
	PollTimeout string `json:"poll_timeout,omitempty"`
	// Workers bounds concurrent update handlers (default 4).
	Workers int `json:"workers,omitempty" validate:"gte=0,lte=64"`
}

type LoggingConfig struct {
	Level    string          `json:"level" validate:"omitempty,oneof=trace debug info warn warning error"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty" validate:"omitempty,oneof=trace debug info warn warning error"`
	RatePerSec int    `json:"rate_per_sec,omitempty" validate:"gte=0"`
}

// SchedulerConfig controls the timer engine.
type SchedulerConfig struct {
	// Timezone is an IANA zone name; reminders fire in this zone. Empty means UTC.
	Timezone string `json:"timezone,omitempty"`
	// FireTimeout bounds a single delivery (default 30s).
	FireTimeout string `json:"fire_timeout,omitempty"`
	// Resync is an optional schedule ("@every 6h", a cron line) on which the
	// registry is reconciled against storage again.
	Resync string `json:"resync,omitempty"`
}

type RemindersConfig struct {
	DefaultMessage string `json:"default_message,omitempty" validate:"max=4096"`
	// ReadTimeout bounds the fire-time re-read of the stored message.
	ReadTimeout string `json:"read_timeout,omitempty"`
}

type SelectionConfig struct {
	// SessionTTL drops idle setup dialogues (default 15m, "0s" keeps them).
	SessionTTL string `json:"session_ttl,omitempty"`
}

// NotifierConfig controls the delivery pipeline. When the section is
// omitted the notifier runs enabled with defaults.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Workers         int    `json:"workers,omitempty" validate:"gte=0,lte=64"`
	QueueSize       int    `json:"queue_size,omitempty" validate:"gte=0"`
	RatePerSec      int    `json:"rate_per_sec,omitempty" validate:"gte=0"`
	RetryMax        int    `json:"retry_max,omitempty" validate:"gte=0,lte=20"`
	RetryBase       string `json:"retry_base,omitempty"`
	RetryMaxDelay   string `json:"retry_max_delay,omitempty"`
	SendTimeout     string `json:"send_timeout,omitempty"`
	DedupWindow     string `json:"dedup_window,omitempty"`
	DedupMaxEntries int    `json:"dedup_max_entries,omitempty" validate:"gte=0"`
	PersistDedup    bool   `json:"persist_dedup,omitempty"`
	BreakerFailures int    `json:"breaker_failures,omitempty" validate:"gte=0"`
	BreakerCooldown string `json:"breaker_cooldown,omitempty"`
}

// StorageConfig selects the reminder store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./remindbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty" validate:"omitempty,oneof=sqlite sqlite3 file memory mem supabase mongo mongodb none"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
	// URL is the supabase project URL or the mongo connection URI.
	URL        string `json:"url,omitempty"`
	Key        string `json:"key,omitempty"`
	Table      string `json:"table,omitempty"`
	Database   string `json:"database,omitempty"`
	Collection string `json:"collection,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
}

// OpsConfig controls the operational HTTP server (health, metrics, pprof).
// Prefer a loopback address; a non-loopback bind needs a token or
// allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
	Metrics       *bool  `json:"metrics,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// MetricsEnabled defaults to true when the ops server is on.
func (o OpsConfig) MetricsEnabled() bool { return o.Metrics == nil || *o.Metrics }

// NotifierOrDefault returns the notifier section, or the enabled default
// when it was omitted.
func (c *Config) NotifierOrDefault() NotifierConfig {
	if c == nil || c.Notifier == nil {
		return NotifierConfig{Enabled: true}
	}
	return *c.Notifier
}
