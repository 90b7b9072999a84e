package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"remindbot/internal/eventbus"
	rtsup "remindbot/internal/runtime/supervisor"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

type job struct {
	n   kit.Notification
	key string
}

type dedupWrite struct {
	key   string
	until time.Time
}

// Service is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	adapter kit.Adapter
	bus     eventbus.Bus
	store   storage.Store

	cfg     Config
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan job
	sup      *rtsup.Supervisor
	stopDone chan struct{} // non-nil while stopping

	dmu   sync.Mutex
	dedup map[string]time.Time

	persistCh chan dedupWrite

	hmu     sync.Mutex
	history []HistoryItem

	now func() time.Time
}

// New builds the service. store may be nil; dedup then stays in memory.
func New(cfg Config, adapter kit.Adapter, log logx.Logger, bus eventbus.Bus, store storage.Store) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		adapter: adapter,
		log:     log.With(logx.String("comp", "notifier")),
		bus:     bus,
		store:   store,
		dedup:   map[string]time.Time{},
		now:     time.Now,
	}
	s.applyLocked(cfg)
	return s
}

// Supervisor returns the worker supervisor (nil if not started).
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply swaps limits and retry policy. Worker and queue sizes take effect
// on the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 512
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 5000
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}

	prev := s.cfg
	s.cfg = cfg
	// Burst = rate so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	if s.breaker == nil || prev.BreakerFailures != cfg.BreakerFailures || prev.BreakerCooldown != cfg.BreakerCooldown {
		s.breaker = s.newBreaker(cfg)
	}
}

func (s *Service) newBreaker(cfg Config) *gobreaker.CircuitBreaker {
	if cfg.BreakerFailures <= 0 {
		return nil
	}
	threshold := uint32(cfg.BreakerFailures)
	log := s.log
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "telegram.send",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", logx.String("breaker", name), logx.String("from", from.String()), logx.String("to", to.String()))
		},
	})
}

// Start is idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}

	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	workers := s.cfg.Workers
	if s.cfg.PersistDedup && s.store != nil {
		s.persistCh = make(chan dedupWrite, 1024)
	}
	// Delivery failures never take down the app.
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log), rtsup.WithCancelOnError(false))
	sup, q, pch, st := s.sup, s.queue, s.persistCh, s.store
	s.mu.Unlock()

	if pch != nil {
		sup.GoRestart("dedup.persist", func(c context.Context) error {
			s.persistLoop(c, pch, st)
			return s.exitReason(c, "persist loop")
		}, rtsup.WithPublishFirstError(true))
	}
	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			return s.exitReason(c, "worker")
		}, rtsup.WithPublishFirstError(true))
	}
	s.log.Debug("notifier started", logx.Int("workers", workers))
}

// exitReason classifies a loop return: clean on shutdown, an error otherwise
// so the supervisor restarts it.
func (s *Service) exitReason(c context.Context, what string) error {
	s.mu.Lock()
	stopping := s.stopDone != nil
	s.mu.Unlock()
	if stopping {
		return context.Canceled
	}
	if c.Err() != nil {
		return c.Err()
	}
	return errors.New("notifier " + what + " exited unexpectedly")
}

// Stop stops intake and drains the queue best-effort until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	q, pch, sup := s.queue, s.persistCh, s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		// In-flight enqueues finish before the queue closes.
		s.sendWG.Wait()
		close(q)
		if pch != nil {
			close(pch)
		}
		if sup != nil {
			_ = sup.Wait(context.Background())
		}

		s.mu.Lock()
		s.queue = nil
		s.persistCh = nil
		s.stopDone = nil
		s.sup = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if sup != nil {
			sup.Cancel()
		}
	}
}

// Notify enqueues n. A duplicate of a recent Key is dropped silently.
func (s *Service) Notify(ctx context.Context, n kit.Notification) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	window, max, persist := s.cfg.DedupWindow, s.cfg.DedupMaxEntries, s.cfg.PersistDedup
	st, pch := s.store, s.persistCh
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	if window > 0 && n.Key != "" {
		if !s.dedupAllow(ctx, n.Key, window, max, persist, st, pch) {
			s.publish(eventbus.TypeNotifyDeduped, n, 0, nil)
			return nil
		}
	}

	select {
	case q <- job{n: n, key: n.Key}:
		s.publish(eventbus.TypeNotifyQueued, n, 0, nil)
		return nil
	default:
		s.publish(eventbus.TypeNotifyDropped, n, 0, ErrQueueFull)
		return ErrQueueFull
	}
}

func (s *Service) publish(typ string, n kit.Notification, attempts int, err error) {
	if s.bus == nil {
		return
	}
	now := s.now()
	ev := NotificationEvent{ChatID: n.Target.ChatID, ThreadID: n.Target.ThreadID, Key: n.Key, At: now, Attempts: attempts}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: ev})
}

// History returns recent successful deliveries, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) appendHistory(n kit.Notification) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: s.now(), ChatID: n.Target.ChatID, Key: n.Key})
	if len(s.history) > 300 {
		s.history = s.history[len(s.history)-300:]
	}
	s.hmu.Unlock()
}

func (s *Service) persistLoop(ctx context.Context, ch <-chan dedupWrite, st storage.Store) {
	for {
		select {
		case <-ctx.Done():
			return
		case w, ok := <-ch:
			if !ok {
				return
			}
			cctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
			if err := st.PutDedup(cctx, w.key, w.until); err != nil {
				s.log.Debug("dedup persist failed", logx.String("key", w.key), logx.Err(err))
			}
			cancel()
		}
	}
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.sendWithRetry(ctx, j)
		}
	}
}
