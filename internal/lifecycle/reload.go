package lifecycle

import (
	"context"
	"errors"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	"remindbot/internal/task/scheduler"
	logx "remindbot/pkg/logx"
)

// ReloadReport summarizes one reconciliation pass.
type ReloadReport struct {
	Records int           `json:"records"`
	Armed   int           `json:"armed"`
	Kept    int           `json:"kept"`
	Skipped int           `json:"skipped"`
	Failed  int           `json:"failed"`
	Removed int           `json:"removed"`
	Took    time.Duration `json:"took"`
}

// Reload rebuilds the registry from the store: one job per parseable record,
// and no job without a record. Corrupt rows are logged and skipped. A store
// read failure leaves the registry untouched.
//
// A job whose recipient and weekly slot are unchanged stays armed, so an
// occurrence due at the instant of the reload still fires.
//
// The first successful Reload marks the manager ready. After Stop it
// returns ErrStopped.
func (m *Manager) Reload(ctx context.Context) (ReloadReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return ReloadReport{}, reminder.E(reminder.KindScheduling, "reload", reminder.ErrStopped)
	}

	start := time.Now()
	recs, err := m.store.GetAll(ctx)
	if err != nil {
		m.log.Error("reload: reading reminders failed", logx.Err(err))
		return ReloadReport{}, reminder.E(reminder.KindPersistence, "reload", err)
	}

	rep := ReloadReport{Records: len(recs)}
	keep := make(map[reminder.ID]struct{}, len(recs))
	for _, r := range recs {
		sp, err := reminder.ParseRecord(r)
		if err != nil {
			rep.Skipped++
			m.log.Warn("reload: skipping corrupt reminder", logx.String("id", r.ID.String()), logx.Err(err))
			continue
		}
		keep[sp.ID] = struct{}{}
		w, err := m.weekly(sp)
		if err == nil && m.reg.Holds(sp.ID, sp.OwnerChat, w) {
			rep.Kept++
			continue
		}
		if err == nil {
			err = m.armWeekly(sp, w)
		}
		if err != nil {
			rep.Failed++
			m.log.Error("reload: arming reminder failed", logx.String("id", sp.ID.String()), logx.Err(err))
			continue
		}
		rep.Armed++
	}
	rep.Removed = len(m.reg.Retain(keep))
	rep.Took = time.Since(start)

	first := !m.ready.Swap(true)
	m.log.Info("reminders reloaded",
		logx.Int("records", rep.Records), logx.Int("armed", rep.Armed), logx.Int("kept", rep.Kept),
		logx.Int("skipped", rep.Skipped), logx.Int("failed", rep.Failed),
		logx.Int("removed", rep.Removed), logx.Bool("first", first),
		logx.Duration("took", rep.Took))
	if m.bus != nil {
		m.bus.Publish(eventbus.Event{Type: eventbus.TypeReloadDone, Time: m.engine.Now(), Data: rep})
	}
	return rep, nil
}

// StartResync arms a periodic Reload on the engine. Interval specs get a
// startup spread so the first rerun does not coincide with boot. An empty
// spec disables resync.
func (m *Manager) StartResync(spec string) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return reminder.E(reminder.KindScheduling, "resync", reminder.ErrStopped)
	}
	if m.resync != nil {
		m.resync.Cancel()
		m.resync = nil
	}
	m.mu.Unlock()
	if spec == "" {
		return nil
	}

	p, err := scheduler.ParseSchedule(spec)
	if err != nil {
		return reminder.E(reminder.KindValidation, "resync schedule", err)
	}
	sched, err := p.Schedule(m.engine.Location())
	if err != nil {
		return reminder.E(reminder.KindValidation, "resync schedule", err)
	}
	sched, jitter := scheduler.WithStartupSpread(p, sched, m.engine.Now(), "resync")

	h, err := m.engine.Arm("resync", sched, func(ctx context.Context, _ time.Time) {
		if _, err := m.Reload(ctx); err != nil && !errors.Is(err, reminder.ErrStopped) {
			m.log.Warn("periodic resync failed", logx.Err(err))
		}
	})
	if err != nil {
		return reminder.E(reminder.KindScheduling, "resync", err)
	}
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		h.Cancel()
		return reminder.E(reminder.KindScheduling, "resync", reminder.ErrStopped)
	}
	m.resync = h
	m.mu.Unlock()
	m.log.Info("resync armed", logx.String("spec", spec), logx.Duration("spread", jitter), logx.Time("next", h.Next()))
	return nil
}
