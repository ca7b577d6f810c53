// Package loop implements the generation-evaluation control loop that turns
// a user request into a validated, normalized response.
package loop

import (
	"context"
	"time"
)

// Backoff computes retry delays: Delay(n) = Base * 2^n. Cap bounds the delay
// so late attempts do not wait unreasonably long; a zero Cap means uncapped.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

// DefaultBackoff is the retry policy used by both model calls.
func DefaultBackoff() Backoff {
	return Backoff{
		Base: time.Second,
		Cap:  60 * time.Second,
	}
}

// Delay returns the wait duration before retrying after the given attempt.
// It is deterministic and monotonically non-decreasing in attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := b.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if b.Cap > 0 && d >= b.Cap {
			return b.Cap
		}
	}
	if b.Cap > 0 && d > b.Cap {
		return b.Cap
	}
	return d
}

// sleeper waits for the given duration, returning early with the context's
// error if it is cancelled. Tests substitute a recording implementation.
type sleeper func(ctx context.Context, d time.Duration) error

func defaultSleeper(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
