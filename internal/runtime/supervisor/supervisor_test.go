package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestGoRecordsFirstErrorAndCancels(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithCancelOnError(true))
	boom := errors.New("boom")
	s.Go("fails", func(context.Context) error { return boom })
	s.Go0("waits", func(ctx context.Context) { <-ctx.Done() })

	err := s.Wait(waitCtx(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, int64(0), s.Counters().Active)
	assert.Equal(t, uint64(2), s.Counters().Started)
}

func TestGoRecoversPanic(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Go0("panics", func(context.Context) { panic("bad") })
	err := s.Wait(waitCtx(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic in panics")
	assert.Equal(t, uint64(1), s.Counters().Panics)
}

func TestGoRestartRestartsUntilCancelled(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart("flaky", func(ctx context.Context) error {
		if runs.Add(1) >= 3 {
			<-ctx.Done()
			return ctx.Err()
		}
		return errors.New("transient")
	}, WithRestartBackoff(time.Millisecond, 5*time.Millisecond), WithPublishFirstError(true))

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 3*time.Second, 5*time.Millisecond)
	s.Cancel()
	err := s.Wait(waitCtx(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transient")
	assert.Equal(t, uint64(2), s.Counters().Restarts)
}

func TestGoRestartGivesUp(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart("broken", func(context.Context) error {
		runs.Add(1)
		panic("always")
	}, WithRestartBackoff(time.Millisecond, time.Millisecond), WithMaxRestarts(2))

	require.NoError(t, s.Wait(waitCtx(t)))
	assert.Equal(t, int32(3), runs.Load())
}

func TestStopCleanExit(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Go0("loop", func(ctx context.Context) { <-ctx.Done() })
	assert.NoError(t, s.Stop(waitCtx(t)))
}
