package util

import (
	"sync"
	"time"
)

// Backoff paces retries of failed operations, chiefly asset downloads:
// the delay doubles on every attempt until it reaches maxDelay. Safe for
// concurrent use.
type Backoff struct {
	mu       sync.Mutex
	initial  time.Duration
	maxDelay time.Duration
	attempt  uint
}

// NewBackoff returns a backoff starting at initial and capped at maxDelay.
func NewBackoff(initial, maxDelay time.Duration) *Backoff {
	return &Backoff{initial: initial, maxDelay: maxDelay}
}

// Next returns the delay for this attempt and advances the schedule.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := b.initial << b.attempt
	// A non-positive value means the shift overflowed.
	if d <= 0 || d > b.maxDelay {
		d = b.maxDelay
	}
	b.attempt++
	return d
}
