package awsauth

import (
	"context"
	"time"
)

// RetryPolicy bounds retries for throttled API calls. Only transient
// throttling errors are retried; permanent failures return immediately.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// BaseDelay is the wait before the first retry; it doubles after each
	// subsequent throttled attempt.
	BaseDelay time.Duration
}

// DefaultRetryPolicy returns the standard bounded backoff: 3 attempts,
// 200ms base delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond}
}

// Do runs op, retrying while it fails with a throttling error and attempts
// remain. The final throttled error is returned when the budget is exhausted.
// Context cancellation interrupts the backoff sleep and returns ctx.Err().
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := p.BaseDelay
	var err error
	for i := 0; i < attempts; i++ {
		if err = op(); err == nil || !IsThrottling(err) {
			return err
		}
		if i == attempts-1 {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return err
}
