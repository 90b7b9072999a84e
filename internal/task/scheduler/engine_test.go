package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

type fireLog struct {
	mu  sync.Mutex
	ats []time.Time
}

func (f *fireLog) fire(_ context.Context, at time.Time) {
	f.mu.Lock()
	f.ats = append(f.ats, at)
	f.mu.Unlock()
}

func (f *fireLog) all() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.ats...)
}

func newTestEngine(t *testing.T, start time.Time) (*Engine, *ManualClock) {
	t.Helper()
	clk := NewManualClock(start)
	e := NewEngine(Config{Location: time.UTC}, clk, logx.Nop(), nil)
	t.Cleanup(e.Stop)
	return e, clk
}

func mustWeekly(t *testing.T, h, m int, days ...reminder.Weekday) Weekly {
	t.Helper()
	w, err := NewWeekly(reminder.TimeOfDay{Hour: h, Minute: m}, reminder.MustDaySet(days...), time.UTC)
	require.NoError(t, err)
	return w
}

func TestEngineFiresAndRearms(t *testing.T) {
	t.Parallel()
	e, clk := newTestEngine(t, mon(9, 0, 0))
	var fl fireLog
	h, err := e.Arm("r1", mustWeekly(t, 14, 30, reminder.Monday, reminder.Wednesday, reminder.Friday), fl.fire)
	require.NoError(t, err)
	assert.Equal(t, mon(14, 30, 0), h.Next())

	clk.Advance(14 * 24 * time.Hour)

	want := []time.Time{
		mon(14, 30, 0),
		mon(14, 30, 0).AddDate(0, 0, 2),
		mon(14, 30, 0).AddDate(0, 0, 4),
		mon(14, 30, 0).AddDate(0, 0, 7),
		mon(14, 30, 0).AddDate(0, 0, 9),
		mon(14, 30, 0).AddDate(0, 0, 11),
	}
	assert.Equal(t, want, fl.all())
	assert.Equal(t, mon(14, 30, 0).AddDate(0, 0, 14), h.Next())
	assert.Equal(t, want[len(want)-1], h.Prev())
	assert.Equal(t, 1, clk.Pending())
	assert.Equal(t, uint64(6), e.Snapshot().Fired)
}

func TestEngineCancelStopsFutureFires(t *testing.T) {
	t.Parallel()
	e, clk := newTestEngine(t, mon(9, 0, 0))
	var fl fireLog
	h, err := e.Arm("r1", mustWeekly(t, 10, 0, reminder.Monday), fl.fire)
	require.NoError(t, err)

	assert.True(t, h.Cancel())
	assert.False(t, h.Cancel())
	assert.False(t, h.Active())
	assert.True(t, h.Next().IsZero())

	clk.Advance(30 * 24 * time.Hour)
	assert.Empty(t, fl.all())
	assert.Equal(t, 0, clk.Pending())
	assert.Equal(t, 0, e.Snapshot().Live)
}

func TestEngineCancelDuringFire(t *testing.T) {
	t.Parallel()
	e, clk := newTestEngine(t, mon(9, 0, 0))
	var (
		h     *Handle
		calls int
	)
	h, err := e.Arm("r1", mustWeekly(t, 10, 0, reminder.Monday), func(context.Context, time.Time) {
		calls++
		h.Cancel()
	})
	require.NoError(t, err)

	clk.Advance(21 * 24 * time.Hour)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, clk.Pending())
	assert.Zero(t, e.Snapshot().RearmFailures)
}

func TestEnginePanicDoesNotBreakSchedule(t *testing.T) {
	t.Parallel()
	e, clk := newTestEngine(t, mon(9, 0, 0))
	calls := 0
	_, err := e.Arm("boom", mustWeekly(t, 10, 0, reminder.Monday), func(context.Context, time.Time) {
		calls++
		panic("boom")
	})
	require.NoError(t, err)

	clk.Advance(15 * 24 * time.Hour)
	assert.Equal(t, 3, calls)
	assert.Equal(t, uint64(3), e.Snapshot().Panics)
	assert.Equal(t, 1, clk.Pending())
}

type onceSchedule struct {
	at   time.Time
	used bool
}

func (s *onceSchedule) Next(t time.Time) time.Time {
	if s.used || !s.at.After(t) {
		return time.Time{}
	}
	s.used = true
	return s.at
}

func TestEngineRearmFailureIsObservable(t *testing.T) {
	t.Parallel()
	clk := NewManualClock(mon(9, 0, 0))
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()
	e := NewEngine(Config{Location: time.UTC}, clk, logx.Nop(), bus)
	defer e.Stop()

	var fl fireLog
	h, err := e.Arm("once", &onceSchedule{at: mon(10, 0, 0)}, fl.fire)
	require.NoError(t, err)

	clk.Advance(2 * time.Hour)
	assert.Len(t, fl.all(), 1)
	assert.False(t, h.Active())
	assert.Equal(t, uint64(1), e.Snapshot().RearmFailures)

	var types []string
	for len(events) > 0 {
		ev := <-events
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{eventbus.TypeJobFired, eventbus.TypeJobRearmFailed}, types)
}

func TestEngineArmErrors(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t, mon(9, 0, 0))

	_, err := e.Arm("never", Weekly{}, func(context.Context, time.Time) {})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoNextFire))

	_, err = e.Arm("nil", nil, nil)
	assert.Error(t, err)

	e.Stop()
	_, err = e.Arm("late", mustWeekly(t, 10, 0, reminder.Monday), func(context.Context, time.Time) {})
	assert.True(t, errors.Is(err, ErrEngineStopped))
}

func TestEngineStopCancelsLiveHandles(t *testing.T) {
	t.Parallel()
	e, clk := newTestEngine(t, mon(9, 0, 0))
	var fl fireLog
	for i := 0; i < 3; i++ {
		_, err := e.Arm("r", mustWeekly(t, 10+i, 0, reminder.Monday), fl.fire)
		require.NoError(t, err)
	}
	require.Equal(t, 3, clk.Pending())
	e.Stop()
	assert.Equal(t, 0, clk.Pending())
	assert.True(t, e.Snapshot().Stopped)
	clk.Advance(7 * 24 * time.Hour)
	assert.Empty(t, fl.all())
}

func TestEngineFireContextCarriesTimeout(t *testing.T) {
	t.Parallel()
	clk := NewManualClock(mon(9, 0, 0))
	e := NewEngine(Config{Location: time.UTC, FireTimeout: time.Minute}, clk, logx.Nop(), nil)
	defer e.Stop()
	var hasDeadline bool
	_, err := e.Arm("r", mustWeekly(t, 10, 0, reminder.Monday), func(ctx context.Context, _ time.Time) {
		_, hasDeadline = ctx.Deadline()
	})
	require.NoError(t, err)
	clk.Advance(2 * time.Hour)
	assert.True(t, hasDeadline)
}

func TestEngineWithSystemClock(t *testing.T) {
	t.Parallel()
	e := NewEngine(Config{}, SystemClock(), logx.Nop(), nil)
	defer e.Stop()

	fired := make(chan time.Time, 8)
	_, err := e.Arm("tick", cron.Every(time.Second), func(_ context.Context, at time.Time) {
		select {
		case fired <- at:
		default:
		}
	})
	require.NoError(t, err)

	var prev time.Time
	for i := 0; i < 2; i++ {
		select {
		case at := <-fired:
			if !prev.IsZero() {
				assert.True(t, at.After(prev), "fires must move forward")
			}
			prev = at
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for fire")
		}
	}
}
