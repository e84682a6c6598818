package task

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/finsight/finsight/internal/faults"
)

func TestRetryEventualSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("hiccup %d: %w", calls, faults.ErrTransientIO)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryFatalAbortsImmediately(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func(ctx context.Context) error {
		calls++
		return faults.ErrCorruptIndex
	})
	if !errors.Is(err, faults.ErrCorruptIndex) {
		t.Fatalf("err = %v, want ErrCorruptIndex", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (fatal must not consume attempts)", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func(ctx context.Context) error {
		calls++
		return faults.ErrTransientIO
	})
	if !errors.Is(err, faults.ErrTransientIO) {
		t.Fatalf("err = %v, want ErrTransientIO", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryBackoffGrows(t *testing.T) {
	var gaps []time.Duration
	last := time.Now()
	calls := 0
	_ = Retry(context.Background(), 3, 10*time.Millisecond, func(ctx context.Context) error {
		if calls > 0 {
			gaps = append(gaps, time.Since(last))
		}
		last = time.Now()
		calls++
		return faults.ErrTransientIO
	})
	if len(gaps) != 2 {
		t.Fatalf("got %d gaps, want 2", len(gaps))
	}
	if gaps[0] < 10*time.Millisecond {
		t.Errorf("first backoff %v shorter than base delay", gaps[0])
	}
	if gaps[1] < 2*gaps[0]/3 {
		t.Errorf("second backoff %v did not grow from %v", gaps[1], gaps[0])
	}
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, 5, 50*time.Millisecond, func(ctx context.Context) error {
		return faults.ErrTransientIO
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
