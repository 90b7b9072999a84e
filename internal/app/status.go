package app

import (
	"fmt"
	"strings"
	"time"

	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/task/scheduler"
)

// Status is the operator view served on /status and the owner /status command.
type Status struct {
	Uptime      string                         `json:"uptime"`
	Ready       bool                           `json:"ready"`
	Jobs        int                            `json:"jobs"`
	Sessions    int                            `json:"sessions"`
	Notifier    bool                           `json:"notifier_enabled"`
	Scheduler   scheduler.Snapshot             `json:"scheduler"`
	Supervisors map[string]supervisor.Counters `json:"supervisors"`
}

func (a *App) status() Status {
	st := Status{
		Ready:       a.rem.Ready(),
		Jobs:        a.reg.Len(),
		Sessions:    a.sessions.Len(),
		Notifier:    a.notif.Enabled(),
		Scheduler:   a.engine.Snapshot(),
		Supervisors: map[string]supervisor.Counters{},
	}
	if !a.started.IsZero() {
		st.Uptime = time.Since(a.started).Truncate(time.Second).String()
	}
	for name, sup := range map[string]*supervisor.Supervisor{
		"app":      a.sup,
		"telegram": a.adapter.Supervisor(),
		"router":   a.router.Supervisor(),
		"notifier": a.notif.Supervisor(),
	} {
		if sup != nil {
			st.Supervisors[name] = sup.Counters()
		}
	}
	return st
}

func (a *App) statusText() string {
	return formatStatus(a.status())
}

func formatStatus(st Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "uptime     %s\n", st.Uptime)
	fmt.Fprintf(&b, "ready      %t\n", st.Ready)
	fmt.Fprintf(&b, "timezone   %s\n", st.Scheduler.Timezone)
	fmt.Fprintf(&b, "jobs       %d (timers %d)\n", st.Jobs, st.Scheduler.Live)
	fmt.Fprintf(&b, "fired      %d\n", st.Scheduler.Fired)
	fmt.Fprintf(&b, "rearm_fail %d\n", st.Scheduler.RearmFailures)
	fmt.Fprintf(&b, "panics     %d\n", st.Scheduler.Panics)
	fmt.Fprintf(&b, "sessions   %d\n", st.Sessions)
	fmt.Fprintf(&b, "notifier   %t", st.Notifier)
	return b.String()
}
