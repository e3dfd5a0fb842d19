package query

import (
	"context"
	"time"
)

// Policy bounds the executor's poll loop: attempt count and exponential
// backoff with a cap. The zero value is not valid; use DefaultPolicy or
// build one from configuration.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy matches the retriever's historical budget: ten attempts,
// delays doubling from one second up to ten minutes.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 10,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Minute,
	}
}

// Delay returns the backoff before the given 1-based attempt's retry.
func (p Policy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			break
		}
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Sleeper is an injectable cancellable wait, so tests run without real time.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// TimerSleeper waits on a timer, aborting when the context is cancelled.
type TimerSleeper struct{}

func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
