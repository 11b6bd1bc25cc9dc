package selection

import "sync"

// Thresholds holds the staleness limits shared between selection scoring and
// post-request response validation. A single instance is owned by the Selector
// and handed to whoever validates responses, so that runtime updates through
// the setters take effect on both sides at once.
type Thresholds struct {
	mu                     sync.RWMutex
	unhealthyBlockDiff     int64
	unhealthySlotDiffPlays *int64
}

func NewThresholds(blockDiff int64, slotDiffPlays *int64) *Thresholds {
	return &Thresholds{
		unhealthyBlockDiff:     blockDiff,
		unhealthySlotDiffPlays: slotDiffPlays,
	}
}

// BlockDiff returns the maximum tolerated block indexing lag.
func (t *Thresholds) BlockDiff() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.unhealthyBlockDiff
}

// SlotDiffPlays returns the maximum tolerated plays slot lag, or nil when the
// slot staleness check is disabled.
func (t *Thresholds) SlotDiffPlays() *int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.unhealthySlotDiffPlays
}

func (t *Thresholds) SetBlockDiff(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unhealthyBlockDiff = n
}

func (t *Thresholds) SetSlotDiffPlays(n *int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unhealthySlotDiffPlays = n
}
