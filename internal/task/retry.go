package task

import (
	"context"
	"time"

	"github.com/finsight/finsight/internal/faults"
)

// DefaultMaxAttempts bounds retries of flaky operations.
const DefaultMaxAttempts = 3

// Retry runs fn up to maxAttempts times with exponential backoff between
// attempts. Only errors classified as transient are retried; fatal errors
// abort immediately without consuming remaining attempts. The last error is
// returned when attempts are exhausted.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func(ctx context.Context) error) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxAttempts || !faults.IsTransient(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}
