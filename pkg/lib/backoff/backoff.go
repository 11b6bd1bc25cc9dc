package backoff

import (
	"context"
	"time"
)

// Backoff blocks between retry attempts. attempts is the number of attempts
// made so far; implementations must return immediately for zero attempts and
// honor context cancellation while waiting.
type Backoff interface {
	Backoff(ctx context.Context, attempts int)
	BackoffDuration(attempts int) time.Duration
}
