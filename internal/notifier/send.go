package notifier

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/sony/gobreaker"

	"remindbot/internal/eventbus"
	logx "remindbot/pkg/logx"
)

func (s *Service) sendWithRetry(runCtx context.Context, j job) {
	s.mu.Lock()
	cfg, lim, ad, cb := s.cfg, s.limiter, s.adapter, s.breaker
	s.mu.Unlock()

	if ad == nil || j.n.Text == "" {
		return
	}

	maxAttempts := 1 + cfg.RetryMax
	var (
		lastErr  error
		attempts int
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if lim != nil {
			if err := lim.Wait(runCtx); err != nil {
				return
			}
		}
		attempts = attempt

		err := s.sendOnce(runCtx, cfg, cb, j)
		if err == nil {
			s.appendHistory(j.n)
			s.publish(eventbus.TypeNotifySent, j.n, attempts, nil)
			return
		}
		lastErr = err
		s.log.Debug("send failed", logx.String("key", j.key), logx.Int("attempt", attempt), logx.Int("max", maxAttempts), logx.Err(err))

		// An open breaker fails fast; retrying inside the cooldown is pointless.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) || attempt >= maxAttempts {
			break
		}
		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-runCtx.Done():
			t.Stop()
			return
		}
	}

	s.log.Warn("delivery failed", logx.String("key", j.key), logx.Int64("chat", j.n.Target.ChatID), logx.Int("attempts", attempts), logx.Err(lastErr))
	s.publish(eventbus.TypeNotifyFailed, j.n, attempts, lastErr)
}

func (s *Service) sendOnce(runCtx context.Context, cfg Config, cb *gobreaker.CircuitBreaker, j job) error {
	call := func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(runCtx, cfg.SendTimeout)
		defer cancel()
		_, err := s.adapter.SendText(ctx, j.n.Target, j.n.Text, j.n.Options)
		return nil, err
	}
	if cb == nil {
		_, err := call()
		return err
	}
	_, err := cb.Execute(call)
	return err
}

// retryDelay is the wait before attempt+1: base*2^(attempt-1), capped,
// with 0.7..1.3 jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	if d < 0 {
		return 0
	}
	return d
}
