// Package backoff provides the single retry/backoff policy shared by all
// upstream calls.
package backoff

import (
	"context"
	"math/rand"
	"time"
)

// Policy describes a capped, attempt-proportional backoff with jitter.
type Policy struct {
	Base        time.Duration // delay after the first failed attempt
	Cap         time.Duration // upper bound on any single delay
	Jitter      float64       // fraction of the delay randomized, 0..1
	MaxAttempts int
}

// DefaultPolicy matches the vendor rate limits we talk to: short first wait,
// linear growth, capped at a few seconds.
func DefaultPolicy() Policy {
	return Policy{
		Base:        500 * time.Millisecond,
		Cap:         5 * time.Second,
		Jitter:      0.2,
		MaxAttempts: 3,
	}
}

// WithAttempts returns a copy of the policy with a different attempt budget.
func (p Policy) WithAttempts(n int) Policy {
	p.MaxAttempts = n
	return p
}

// Delay computes the wait before retrying after the given 1-based attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(attempt) * p.Base
	if p.Cap > 0 && d > p.Cap {
		d = p.Cap
	}
	if p.Jitter > 0 {
		spread := float64(d) * p.Jitter
		d += time.Duration((rand.Float64()*2 - 1) * spread)
		if d < 0 {
			d = 0
		}
	}
	return d
}

// Sleep blocks for the attempt's delay or until ctx is done.
func (p Policy) Sleep(ctx context.Context, attempt int) error {
	t := time.NewTimer(p.Delay(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
