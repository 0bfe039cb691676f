package infrastructure

import (
	"context"
	"time"
)

// RetryPolicy is a bounded attempt budget with a multiplicative delay.
// A Factor of 1 gives a fixed delay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      float64
}

// FixedPolicy returns a policy with a constant inter-attempt delay
func FixedPolicy(attempts int, delay time.Duration) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, BaseDelay: delay, Factor: 1}
}

// Attempts returns the attempt budget, never less than one
func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Delay returns the wait before the given zero-based attempt index
func (p RetryPolicy) Delay(attempt int) time.Duration {
	factor := p.Factor
	if factor <= 0 {
		factor = 1
	}
	d := float64(p.BaseDelay)
	for i := 0; i < attempt; i++ {
		d *= factor
	}
	return time.Duration(d)
}

// Wait sleeps for Delay(attempt) or until ctx is done
func (p RetryPolicy) Wait(ctx context.Context, attempt int) error {
	return sleepContext(ctx, p.Delay(attempt))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
