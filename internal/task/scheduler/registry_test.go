package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/reminder"
)

func armAt(t *testing.T, e *Engine, hour int) *Handle {
	t.Helper()
	h, err := e.Arm(fmt.Sprintf("job-%d", hour), mustWeekly(t, hour, 0, reminder.Monday), func(context.Context, time.Time) {})
	require.NoError(t, err)
	return h
}

func TestRegistryRegisterReplacesAndCancels(t *testing.T) {
	t.Parallel()
	e, clk := newTestEngine(t, mon(9, 0, 0))
	r := NewRegistry()

	first := armAt(t, e, 10)
	assert.False(t, r.Register("7", 100, first))
	second := armAt(t, e, 11)
	assert.True(t, r.Register("7", 100, second))

	assert.False(t, first.Active())
	assert.True(t, second.Active())
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 1, clk.Pending())

	info, ok := r.Lookup("7")
	require.True(t, ok)
	assert.Equal(t, reminder.ID("7"), info.ID)
	assert.Equal(t, int64(100), info.Recipient)
	assert.Equal(t, mon(11, 0, 0), info.Next)
}

func TestRegistryCancel(t *testing.T) {
	t.Parallel()
	e, clk := newTestEngine(t, mon(9, 0, 0))
	r := NewRegistry()
	r.Register("a", 1, armAt(t, e, 10))

	assert.True(t, r.Cancel("a"))
	assert.False(t, r.Cancel("a"))
	assert.False(t, r.Cancel("missing"))
	_, ok := r.Lookup("a")
	assert.False(t, ok)
	assert.Equal(t, 0, clk.Pending())
}

func TestRegistryHolds(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t, mon(9, 0, 0))
	r := NewRegistry()
	h := armAt(t, e, 10)
	r.Register("a", 1, h)

	assert.True(t, r.Holds("a", 1, mustWeekly(t, 10, 0, reminder.Monday)))
	assert.False(t, r.Holds("a", 2, mustWeekly(t, 10, 0, reminder.Monday)), "recipient changed")
	assert.False(t, r.Holds("a", 1, mustWeekly(t, 11, 0, reminder.Monday)), "time changed")
	assert.False(t, r.Holds("a", 1, mustWeekly(t, 10, 0, reminder.Monday, reminder.Friday)), "days changed")
	assert.False(t, r.Holds("missing", 1, mustWeekly(t, 10, 0, reminder.Monday)))

	h.Cancel()
	assert.False(t, r.Holds("a", 1, mustWeekly(t, 10, 0, reminder.Monday)), "inactive handle")
}

func TestRegistryRetainAndCancelAll(t *testing.T) {
	t.Parallel()
	e, clk := newTestEngine(t, mon(9, 0, 0))
	r := NewRegistry()
	r.Register("a", 1, armAt(t, e, 10))
	r.Register("b", 1, armAt(t, e, 11))
	r.Register("c", 2, armAt(t, e, 12))

	dropped := r.Retain(map[reminder.ID]struct{}{"b": {}})
	assert.Equal(t, []reminder.ID{"a", "c"}, dropped)
	assert.Equal(t, []reminder.ID{"b"}, r.IDs())
	assert.Equal(t, 1, clk.Pending())

	assert.Equal(t, 1, r.CancelAll())
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, clk.Pending())
}

func TestRegistrySnapshotOrder(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t, mon(9, 0, 0))
	r := NewRegistry()
	r.Register("late", 1, armAt(t, e, 20))
	r.Register("early", 1, armAt(t, e, 10))

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, reminder.ID("early"), snap[0].ID)
	assert.Equal(t, reminder.ID("late"), snap[1].ID)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	t.Parallel()
	e, clk := newTestEngine(t, mon(9, 0, 0))
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := reminder.ID(fmt.Sprintf("%d", i%4))
			h, err := e.Arm("job", mustWeekly(t, 10, i%60, reminder.Monday), func(context.Context, time.Time) {})
			if err != nil {
				return
			}
			r.Register(id, int64(i), h)
			if info, ok := r.Lookup(id); ok {
				_ = info.Next
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, r.Len())
	assert.Equal(t, 4, clk.Pending())
}
