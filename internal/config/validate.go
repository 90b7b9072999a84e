package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks struct tags first, then what tags cannot express:
// duration syntax, the timezone, per-driver storage settings and the ops
// bind policy. The resync schedule is checked by the scheduler on start.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var errs []error
	check := func(path, raw string) {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	check("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	check("scheduler.fire_timeout", cfg.Scheduler.FireTimeout)
	check("reminders.read_timeout", cfg.Reminders.ReadTimeout)
	check("selection.session_ttl", cfg.Selection.SessionTTL)
	check("storage.busy_timeout", cfg.Storage.BusyTimeout)
	check("storage.timeout", cfg.Storage.Timeout)
	check("ops.read_timeout", cfg.Ops.ReadTimeout)
	check("ops.write_timeout", cfg.Ops.WriteTimeout)
	check("ops.idle_timeout", cfg.Ops.IdleTimeout)
	if n := cfg.Notifier; n != nil {
		check("notifier.retry_base", n.RetryBase)
		check("notifier.retry_max_delay", n.RetryMaxDelay)
		check("notifier.send_timeout", n.SendTimeout)
		check("notifier.dedup_window", n.DedupWindow)
		check("notifier.breaker_cooldown", n.BreakerCooldown)
	}

	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	if g := strings.TrimSpace(cfg.Telegram.GroupLog); g != "" {
		if _, err := strconv.ParseInt(g, 10, 64); err != nil {
			errs = append(errs, fmt.Errorf("telegram.group_log: must be a chat id: %w", err))
		}
	}
	if cfg.Logging.Telegram.Enabled && strings.TrimSpace(cfg.Telegram.GroupLog) == "" {
		errs = append(errs, errors.New("logging.telegram.enabled requires telegram.group_log"))
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "supabase":
		if cfg.Storage.URL == "" || cfg.Storage.Key == "" {
			errs = append(errs, errors.New("storage: supabase needs url and key"))
		}
	case "mongo", "mongodb":
		if cfg.Storage.URL == "" {
			errs = append(errs, errors.New("storage: mongo needs url"))
		}
	case "file":
		if cfg.Storage.Path == "" {
			errs = append(errs, errors.New("storage: file needs path"))
		}
	}

	if cfg.Ops.Enabled {
		if err := checkOpsBind(cfg.Ops); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// checkOpsBind refuses a non-loopback ops bind without a token unless
// allow_insecure is set.
func checkOpsBind(o OpsConfig) error {
	addr := strings.TrimSpace(o.Addr)
	if addr == "" {
		return nil
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("ops.addr: %w", err)
	}
	if isLoopbackHost(host) || o.AllowInsecure || strings.TrimSpace(o.Token) != "" {
		return nil
	}
	return fmt.Errorf("ops.addr %q is not loopback: set ops.token or ops.allow_insecure", addr)
}

func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
