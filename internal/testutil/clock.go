package testutil

import (
	"sync"
	"time"
)

// FixedClock is a test clock that only moves when told to.
//
// The same scenario with the same FixedClock start produces
// byte-identical batch names and ledger timestamps.
//
// Thread-safety: all methods are safe for concurrent use via internal
// mutex.
type FixedClock struct {
	mu sync.Mutex
	at time.Time
}

// NewFixedClock creates a clock pinned to the given instant.
func NewFixedClock(at time.Time) *FixedClock {
	return &FixedClock{at: at}
}

// Now returns the pinned instant.
//
// Implements engine.Clock.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

// Advance moves the clock forward by d. Tests use it to separate ledger
// rows that must not share a timestamp.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = c.at.Add(d)
}
