package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/lifecycle"
	"remindbot/internal/notifier"
	"remindbot/internal/observability/ops"
	"remindbot/internal/storage"
	"remindbot/internal/task/scheduler"
	logx "remindbot/pkg/logx"
)

const (
	defaultSessionTTL  = 15 * time.Minute
	defaultDedupWindow = 10 * time.Minute
	defaultPollTimeout = 10 * time.Second
)

// Config values are validated before they reach these mappers, so they only
// fill defaults and convert types.

func mapLogConfig(cfg *config.Config) logx.Config {
	chatID, _ := groupLogChat(cfg)
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled && chatID != 0,
			ChatID:     chatID,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func groupLogChat(cfg *config.Config) (int64, bool) {
	raw := strings.TrimSpace(cfg.Telegram.GroupLog)
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	loc := time.UTC
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return scheduler.Config{}, fmt.Errorf("scheduler.timezone: %w", err)
		}
		loc = l
	}
	return scheduler.Config{
		Location:    loc,
		FireTimeout: config.DurationOr(cfg.Scheduler.FireTimeout, 30*time.Second),
	}, nil
}

func mapLifecycleConfig(cfg *config.Config) lifecycle.Config {
	return lifecycle.Config{
		DefaultMessage: cfg.Reminders.DefaultMessage,
		ReadTimeout:    config.DurationOr(cfg.Reminders.ReadTimeout, 3*time.Second),
	}
}

func mapSessionTTL(cfg *config.Config) time.Duration {
	return config.DurationOr(cfg.Selection.SessionTTL, defaultSessionTTL)
}

func mapNotifierConfig(cfg *config.Config) notifier.Config {
	nc := cfg.NotifierOrDefault()
	return notifier.Config{
		Enabled:         nc.Enabled,
		Workers:         nc.Workers,
		QueueSize:       nc.QueueSize,
		RatePerSec:      nc.RatePerSec,
		RetryMax:        nc.RetryMax,
		RetryBase:       config.DurationOr(nc.RetryBase, 0),
		RetryMaxDelay:   config.DurationOr(nc.RetryMaxDelay, 0),
		SendTimeout:     config.DurationOr(nc.SendTimeout, 0),
		DedupWindow:     config.DurationOr(nc.DedupWindow, defaultDedupWindow),
		DedupMaxEntries: nc.DedupMaxEntries,
		PersistDedup:    nc.PersistDedup,
		BreakerFailures: nc.BreakerFailures,
		BreakerCooldown: config.DurationOr(nc.BreakerCooldown, 0),
	}
}

func mapStorageConfig(cfg *config.Config) storage.Config {
	sc := cfg.Storage
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: config.DurationOr(sc.BusyTimeout, time.Second),
		URL:         strings.TrimSpace(sc.URL),
		Key:         sc.Key,
		Table:       sc.Table,
		Database:    sc.Database,
		Collection:  sc.Collection,
		Timeout:     config.DurationOr(sc.Timeout, 5*time.Second),
	}
}

func mapOpsConfig(cfg *config.Config) ops.Config {
	oc := cfg.Ops
	return ops.Config{
		Enabled:       oc.Enabled,
		Addr:          oc.Addr,
		Token:         oc.Token,
		AllowInsecure: oc.AllowInsecure,
		Pprof:         oc.Pprof,
		Metrics:       oc.MetricsEnabled(),
		ReadTimeout:   config.DurationOr(oc.ReadTimeout, 10*time.Second),
		WriteTimeout:  config.DurationOr(oc.WriteTimeout, 60*time.Second),
		IdleTimeout:   config.DurationOr(oc.IdleTimeout, 60*time.Second),
	}
}
