package app

import (
	"context"
	"strings"
	"time"

	"remindbot/internal/config"
	logx "remindbot/pkg/logx"
)

// reloadLoop applies committed config changes to the running components.
func (a *App) reloadLoop(c context.Context, sub chan *config.Config) {
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-c.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// coalesce bursts to the newest config
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(c, last, next)
			last = next
		}
	}
}

func (a *App) applyConfig(c context.Context, prev, next *config.Config) {
	ch := config.Diff(prev, next)
	if ch.Empty() {
		a.log.Info("config reloaded (no changes)")
		return
	}

	if ch.Has("logging") || ch.Has("telegram") {
		a.logs.Apply(mapLogConfig(next))
	}
	if ch.Has("telegram") {
		a.router.SetOwners(next.Telegram.OwnerUserIDs)
	}
	if ch.Has("selection") {
		a.sessions.SetTTL(mapSessionTTL(next))
	}
	if ch.Has("reminders") {
		a.rem.Apply(mapLifecycleConfig(next))
	}
	if ch.Has("scheduler") && prev.Scheduler.Resync != next.Scheduler.Resync {
		if err := a.rem.StartResync(strings.TrimSpace(next.Scheduler.Resync)); err != nil {
			a.log.Warn("resync not re-armed", logx.Err(err))
		}
	}
	if ch.Has("notifier") {
		a.applyNotifier(c, next)
	}
	if ch.Has("ops") {
		a.ops.Reconfigure(c, mapOpsConfig(next))
	}

	if len(ch.RestartRequired) > 0 {
		a.log.Warn("config changed; restart required for some settings",
			logx.String("sections", strings.Join(ch.RestartRequired, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Fields...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) applyNotifier(c context.Context, next *config.Config) {
	nc := mapNotifierConfig(next)
	wasEnabled := a.notif.Enabled()
	a.notif.Apply(nc)
	switch {
	case wasEnabled && !nc.Enabled:
		a.log.Info("notifier disabled via config; reminders go direct")
		stopCtx, cancel := context.WithTimeout(c, 3*time.Second)
		a.notif.Stop(stopCtx)
		cancel()
	case !wasEnabled && nc.Enabled:
		a.log.Info("notifier enabled via config")
		a.notif.Start(c)
	}
}
