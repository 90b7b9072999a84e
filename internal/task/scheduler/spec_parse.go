package scheduler

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// SpecKind describes the normalized kind of a schedule string.
type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

// ParsedSpec represents a parsed operator schedule string (the resync
// schedule in config).
//
// Supported forms:
//   - Cron: "*/30 * * * *", "0 3 * * *", "@hourly", "@every 6h"
//   - Interval duration: "55m", "2h30m"
//   - Interval HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
//
// Optional prefixes:
//   - "cron:" forces cron parsing
//   - "interval:" or "every:" forces interval parsing
type ParsedSpec struct {
	Kind   SpecKind
	Cron   string
	Every  time.Duration
	Source string // "cron" | "duration" | "hhmm"
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

var standardParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a schedule string into either a cron expression or an interval duration.
func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	if strings.HasPrefix(low, "cron:") {
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return ParsedSpec{}, fmt.Errorf("cron schedule required after 'cron:'")
		}
		return ParsedSpec{Kind: SpecCron, Cron: expr, Source: "cron"}, nil
	}
	for _, p := range []string{"interval:", "every:"} {
		if strings.HasPrefix(low, p) {
			d, src, err := parseInterval(s[len(p):])
			if err != nil {
				return ParsedSpec{}, err
			}
			return ParsedSpec{Kind: SpecInterval, Every: d, Source: src}, nil
		}
	}

	// whitespace or a leading '@' means cron
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return ParsedSpec{Kind: SpecCron, Cron: s, Source: "cron"}, nil
	}

	if reHHMM.MatchString(s) {
		d, _, err := parseHHMMDuration(s)
		if err != nil {
			return ParsedSpec{}, err
		}
		return ParsedSpec{Kind: SpecInterval, Every: d, Source: "hhmm"}, nil
	}

	d, err := time.ParseDuration(s)
	if err == nil {
		if d <= 0 {
			return ParsedSpec{}, fmt.Errorf("interval must be > 0")
		}
		return ParsedSpec{Kind: SpecInterval, Every: d, Source: "duration"}, nil
	}

	return ParsedSpec{}, fmt.Errorf(
		"invalid schedule %q (use cron like '*/5 * * * *', HH:MM like '02:30', or duration like '55m')",
		raw,
	)
}

// Schedule builds the cron.Schedule for p. Cron expressions are evaluated in
// loc unless they carry their own CRON_TZ/TZ prefix.
func (p ParsedSpec) Schedule(loc *time.Location) (cron.Schedule, error) {
	switch p.Kind {
	case SpecInterval:
		if p.Every <= 0 {
			return nil, fmt.Errorf("interval must be > 0")
		}
		return cron.Every(p.Every), nil
	case SpecCron:
		expr := p.Cron
		if loc != nil && !strings.HasPrefix(expr, "CRON_TZ=") && !strings.HasPrefix(expr, "TZ=") {
			expr = "CRON_TZ=" + loc.String() + " " + expr
		}
		sched, err := standardParser.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid cron %q: %w", p.Cron, err)
		}
		return sched, nil
	default:
		return nil, fmt.Errorf("unknown schedule kind %d", p.Kind)
	}
}

func parseInterval(v string) (time.Duration, string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, "", fmt.Errorf("interval required")
	}
	if reHHMM.MatchString(v) {
		d, _, err := parseHHMMDuration(v)
		return d, "hhmm", err
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, "", fmt.Errorf("invalid interval %q (use HH:MM or Go duration like '55m'/'2h30m')", v)
	}
	if d <= 0 {
		return 0, "", fmt.Errorf("interval must be > 0")
	}
	return d, "duration", nil
}

func parseHHMMDuration(v string) (time.Duration, string, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, "", fmt.Errorf("invalid HH:MM %q", v)
	}
	var hh int
	for i := 0; i < len(m[1]); i++ {
		hh = hh*10 + int(m[1][i]-'0')
	}
	mm := int(m[2][0]-'0')*10 + int(m[2][1]-'0')
	if mm > 59 {
		return 0, "", fmt.Errorf("invalid minutes in %q", v)
	}
	d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	if d <= 0 {
		return 0, "", fmt.Errorf("interval must be > 0")
	}
	return d, "hhmm", nil
}
