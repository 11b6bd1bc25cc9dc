package backoff

import (
	"context"
	"time"
)

// Noop never waits, regardless of the number of attempts.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (b *Noop) Backoff(ctx context.Context, attempts int) {
}

func (b *Noop) BackoffDuration(attempts int) time.Duration {
	return 0
}

// compile-time interface check
var _ Backoff = (*Noop)(nil)
