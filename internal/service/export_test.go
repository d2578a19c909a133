package service

import (
	"context"
	"time"
)

// WithSleep подменяет паузу между попытками.
func WithSleep(p RetryPolicy, sleep func(ctx context.Context, d time.Duration) error) RetryPolicy {
	p.sleep = sleep
	return p
}
