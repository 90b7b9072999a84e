package config

import (
	"reflect"
	"sort"
	"strings"

	logx "remindbot/pkg/logx"
)

// Change summarizes a hot reload: which sections changed, safe log fields
// (never secrets), and sections that only take effect after a restart.
type Change struct {
	Sections        []string
	Fields          []logx.Field
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (c Change) Empty() bool { return len(c.Sections) == 0 }

// Has reports whether section changed.
func (c Change) Has(section string) bool {
	for _, s := range c.Sections {
		if s == section {
			return true
		}
	}
	return false
}

// Diff compares two configs section by section.
func Diff(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	mark := func(section string, restart bool, fields ...logx.Field) {
		ch.Sections = append(ch.Sections, section)
		ch.Fields = append(ch.Fields, fields...)
		if restart {
			ch.RestartRequired = append(ch.RestartRequired, section)
		}
	}

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	tokenChanged := strings.TrimSpace(ot.Token) != strings.TrimSpace(nt.Token)
	if tokenChanged || ot.PollTimeout != nt.PollTimeout || ot.Workers != nt.Workers ||
		!reflect.DeepEqual(ot.OwnerUserIDs, nt.OwnerUserIDs) || ot.GroupLog != nt.GroupLog {
		// owners and group_log apply live; the connection settings do not
		restart := tokenChanged || ot.PollTimeout != nt.PollTimeout || ot.Workers != nt.Workers
		mark("telegram", restart,
			logx.Bool("telegram.token_changed", tokenChanged),
			logx.String("telegram.poll_timeout", nt.PollTimeout),
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(nt.GroupLog) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		mark("logging", false,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		// resync re-arms live; zone and fire timeout are fixed at engine start
		mark("scheduler", oldCfg.Scheduler.Timezone != newCfg.Scheduler.Timezone ||
			oldCfg.Scheduler.FireTimeout != newCfg.Scheduler.FireTimeout,
			logx.String("scheduler.timezone", newCfg.Scheduler.Timezone),
			logx.String("scheduler.fire_timeout", newCfg.Scheduler.FireTimeout),
			logx.String("scheduler.resync", newCfg.Scheduler.Resync),
		)
	}

	if oldCfg.Reminders != newCfg.Reminders {
		mark("reminders", false,
			logx.Bool("reminders.default_message_set", newCfg.Reminders.DefaultMessage != ""),
			logx.String("reminders.read_timeout", newCfg.Reminders.ReadTimeout),
		)
	}

	if oldCfg.Selection != newCfg.Selection {
		mark("selection", false, logx.String("selection.session_ttl", newCfg.Selection.SessionTTL))
	}

	oN, nN := oldCfg.NotifierOrDefault(), newCfg.NotifierOrDefault()
	if oN != nN {
		mark("notifier", oN.PersistDedup != nN.PersistDedup,
			logx.Bool("notifier.enabled", nN.Enabled),
			logx.Int("notifier.workers", nN.Workers),
			logx.Int("notifier.rate_per_sec", nN.RatePerSec),
			logx.Int("notifier.retry_max", nN.RetryMax),
			logx.String("notifier.dedup_window", nN.DedupWindow),
		)
	}

	// never log storage url/key
	oS, nS := oldCfg.Storage, newCfg.Storage
	if oS != nS {
		mark("storage", true,
			logx.String("storage.driver", nS.Driver),
			logx.Bool("storage.path_set", nS.Path != ""),
			logx.Bool("storage.url_changed", oS.URL != nS.URL),
		)
	}

	oO, nO := oldCfg.Ops, newCfg.Ops
	if oO.Enabled != nO.Enabled || oO.Addr != nO.Addr || oO.Token != nO.Token ||
		oO.AllowInsecure != nO.AllowInsecure || oO.Pprof != nO.Pprof ||
		oO.MetricsEnabled() != nO.MetricsEnabled() ||
		oO.ReadTimeout != nO.ReadTimeout || oO.WriteTimeout != nO.WriteTimeout || oO.IdleTimeout != nO.IdleTimeout {
		mark("ops", false,
			logx.Bool("ops.enabled", nO.Enabled),
			logx.String("ops.addr", nO.Addr),
			logx.Bool("ops.token_set", nO.Token != ""),
			logx.Bool("ops.pprof", nO.Pprof),
		)
	}

	sort.Strings(ch.Sections)
	sort.Strings(ch.RestartRequired)
	return ch
}
