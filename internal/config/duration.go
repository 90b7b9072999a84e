package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses a non-negative duration string; "" is zero.
// path names the field in errors ("notifier.retry_base").
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// DurationOr returns the parsed value, or def when raw is empty or
// invalid. Callers run after Validate, so invalid input is not expected.
func DurationOr(raw string, def time.Duration) time.Duration {
	d, err := ParseDurationField("", raw)
	if err != nil || strings.TrimSpace(raw) == "" {
		return def
	}
	return d
}
