package worker

import (
	"context"
	"time"
)

// Backoff returns how long to wait before the next attempt after the given
// number of consecutive failures (starting at 1).
type Backoff interface {
	Next(failures int) time.Duration
}

// FixedBackoff always waits the same interval.
type FixedBackoff struct {
	Interval time.Duration
}

func (b FixedBackoff) Next(int) time.Duration { return b.Interval }

// ExponentialBackoff doubles Base per consecutive failure, capped at Max.
type ExponentialBackoff struct {
	Base time.Duration
	Max  time.Duration
}

func (b ExponentialBackoff) Next(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	d := b.Base
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= b.Max || d <= 0 {
			return b.Max
		}
	}
	if d > b.Max {
		return b.Max
	}
	return d
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real-time SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
