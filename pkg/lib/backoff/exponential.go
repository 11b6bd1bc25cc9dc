package backoff

import (
	"context"
	"math/rand"
	"time"
)

// Exponential doubles the wait on every attempt up to a maximum, with up to
// 20% random jitter to keep retrying callers from synchronizing.
type Exponential struct {
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func NewExponential(baseBackoff, maxBackoff time.Duration) *Exponential {
	return &Exponential{
		BaseBackoff: baseBackoff,
		MaxBackoff:  maxBackoff,
	}
}

func (b *Exponential) Backoff(ctx context.Context, attempts int) {
	duration := b.BackoffDuration(attempts)
	if duration <= 0 {
		return
	}
	select {
	case <-time.After(duration):
	case <-ctx.Done():
	}
}

func (b *Exponential) BackoffDuration(attempts int) time.Duration {
	if attempts <= 0 {
		return 0
	}
	duration := b.BaseBackoff << uint(attempts-1)
	if duration > b.MaxBackoff || duration <= 0 {
		duration = b.MaxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(duration)/5 + 1)) //nolint:gosec // jitter needs no crypto rand
	return duration + jitter
}

// compile-time interface check
var _ Backoff = (*Exponential)(nil)
