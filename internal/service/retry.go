package service

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/safa0/google-rangerz/internal/domain"
)

// RetryPolicy ограниченные повторы с экспоненциальной задержкой и джиттером ±10%.
// Повторяются только ошибки внешних сервисов (domain.IsRetryable).
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// sleep подменяется в тестах
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy 3 попытки, 1s, 2s, не больше 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

// Delay задержка перед попыткой attempt+1: base * 2^(attempt-1) ± 10%, не меньше base и не больше max.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	jitter := delay * 0.1
	delay += jitter * (rand.Float64()*2 - 1)

	wait := time.Duration(delay)
	if wait < p.BaseDelay {
		wait = p.BaseDelay
	}
	if p.MaxDelay > 0 && wait > p.MaxDelay {
		wait = p.MaxDelay
	}
	return wait
}

// Do вызывает op, пока она не вернет nil, неповторяемую ошибку или не кончатся попытки.
// onRetry вызывается перед каждой паузой.
func (p RetryPolicy) Do(ctx context.Context, op func(attempt int) error, onRetry func(attempt int, err error, wait time.Duration)) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(attempt); err == nil {
			return nil
		}
		if !domain.IsRetryable(err) || attempt == attempts {
			return err
		}
		wait := p.Delay(attempt)
		if onRetry != nil {
			onRetry(attempt, err, wait)
		}
		if sleepErr := sleep(ctx, wait); sleepErr != nil {
			return err
		}
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
