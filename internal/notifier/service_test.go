package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/eventbus"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type fakeAdapter struct {
	mu    sync.Mutex
	sent  []string
	fails int // fail the first N sends
	calls int
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }
func (f *fakeAdapter) EditText(context.Context, kit.MessageRef, string, *kit.SendOptions) error {
	return nil
}
func (f *fakeAdapter) AnswerCallback(context.Context, string, string) error { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fails {
		return kit.MessageRef{}, errors.New("telegram: 502")
	}
	f.sent = append(f.sent, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) snapshot() ([]string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...), f.calls
}

func baseConfig() Config {
	return Config{
		Enabled:       true,
		Workers:       1,
		QueueSize:     16,
		RatePerSec:    1000,
		RetryMax:      2,
		RetryBase:     time.Millisecond,
		RetryMaxDelay: 2 * time.Millisecond,
		DedupWindow:   time.Hour,
	}
}

func startService(t *testing.T, cfg Config, ad kit.Adapter, bus eventbus.Bus, st storage.Store) *Service {
	t.Helper()
	svc := New(cfg, ad, logx.Nop(), bus, st)
	svc.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		svc.Stop(ctx)
	})
	return svc
}

func TestNotifyDelivers(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	svc := startService(t, baseConfig(), ad, nil, nil)

	require.NoError(t, svc.Notify(context.Background(), kit.Notification{Key: "reminder:1:100", Target: kit.ChatTarget{ChatID: 42}, Text: "Study now"}))
	require.Eventually(t, func() bool { s, _ := ad.snapshot(); return len(s) == 1 }, 2*time.Second, 5*time.Millisecond)
	sent, _ := ad.snapshot()
	assert.Equal(t, []string{"Study now"}, sent)
	require.Eventually(t, func() bool { return len(svc.History()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(42), svc.History()[0].ChatID)
}

func TestNotifyDedupsSameOccurrence(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()
	svc := startService(t, baseConfig(), ad, bus, nil)

	n := kit.Notification{Key: "reminder:1:100", Target: kit.ChatTarget{ChatID: 42}, Text: "x"}
	require.NoError(t, svc.Notify(context.Background(), n))
	require.NoError(t, svc.Notify(context.Background(), n))
	n.Key = "reminder:1:200"
	require.NoError(t, svc.Notify(context.Background(), n))

	require.Eventually(t, func() bool { s, _ := ad.snapshot(); return len(s) == 2 }, 2*time.Second, 5*time.Millisecond)

	deduped := 0
	timeout := time.After(time.Second)
	for deduped == 0 {
		select {
		case ev := <-events:
			if ev.Type == eventbus.TypeNotifyDeduped {
				deduped++
				assert.Equal(t, "reminder:1:100", ev.Data.(NotificationEvent).Key)
			}
		case <-timeout:
			t.Fatal("no deduped event")
		}
	}
}

func TestNotifyRetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{fails: 2}
	svc := startService(t, baseConfig(), ad, nil, nil)

	require.NoError(t, svc.Notify(context.Background(), kit.Notification{Target: kit.ChatTarget{ChatID: 1}, Text: "hi"}))
	require.Eventually(t, func() bool { s, _ := ad.snapshot(); return len(s) == 1 }, 2*time.Second, 5*time.Millisecond)
	_, calls := ad.snapshot()
	assert.Equal(t, 3, calls)
}

func TestBreakerOpensAndFailsFast(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{fails: 1000}
	cfg := baseConfig()
	cfg.RetryMax = 0
	cfg.BreakerFailures = 2
	cfg.BreakerCooldown = time.Hour
	bus := eventbus.New()
	events, unsub := bus.Subscribe(64)
	defer unsub()
	svc := startService(t, cfg, ad, bus, nil)

	for i := 0; i < 4; i++ {
		require.NoError(t, svc.Notify(context.Background(), kit.Notification{Target: kit.ChatTarget{ChatID: 1}, Text: "x"}))
	}
	failed := 0
	timeout := time.After(2 * time.Second)
	for failed < 4 {
		select {
		case ev := <-events:
			if ev.Type == eventbus.TypeNotifyFailed {
				failed++
			}
		case <-timeout:
			t.Fatalf("saw %d failures", failed)
		}
	}
	_, calls := ad.snapshot()
	assert.Equal(t, 2, calls, "open breaker must not reach the adapter")
}

func TestNotifyStates(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	cfg.Enabled = false
	off := New(cfg, &fakeAdapter{}, logx.Nop(), nil, nil)
	assert.ErrorIs(t, off.Notify(context.Background(), kit.Notification{Text: "x"}), ErrDisabled)

	idle := New(baseConfig(), &fakeAdapter{}, logx.Nop(), nil, nil)
	assert.ErrorIs(t, idle.Notify(context.Background(), kit.Notification{Text: "x"}), ErrStopped)

	idle.Start(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	idle.Stop(ctx)
	assert.ErrorIs(t, idle.Notify(context.Background(), kit.Notification{Text: "x"}), ErrStopped)
}

func TestPersistentDedupSurvivesRestart(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	defer st.Close()
	future := time.Now().Add(time.Hour)
	require.NoError(t, st.PutDedup(context.Background(), "reminder:9:500", future))

	cfg := baseConfig()
	cfg.PersistDedup = true
	ad := &fakeAdapter{}
	svc := startService(t, cfg, ad, nil, st)

	require.NoError(t, svc.Notify(context.Background(), kit.Notification{Key: "reminder:9:500", Target: kit.ChatTarget{ChatID: 9}, Text: "x"}))
	require.NoError(t, svc.Notify(context.Background(), kit.Notification{Key: "reminder:9:600", Target: kit.ChatTarget{ChatID: 9}, Text: "y"}))
	require.Eventually(t, func() bool { s, _ := ad.snapshot(); return len(s) == 1 }, 2*time.Second, 5*time.Millisecond)
	sent, _ := ad.snapshot()
	assert.Equal(t, []string{"y"}, sent)

	require.Eventually(t, func() bool {
		_, ok, _ := st.GetDedup(context.Background(), "reminder:9:600")
		return ok
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRetryDelayBounds(t *testing.T) {
	t.Parallel()
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	for attempt := 1; attempt <= 6; attempt++ {
		d := retryDelay(cfg, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
	d := retryDelay(cfg, 1)
	assert.GreaterOrEqual(t, d, 70*time.Millisecond)
	assert.LessOrEqual(t, d, 130*time.Millisecond)
}
