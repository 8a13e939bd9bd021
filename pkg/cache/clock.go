package cache

import (
	"sync"
	"time"
)

// Clock tells the cache what time it is.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// SimClock is a Clock that can be moved forward, for max-age tests.
type SimClock struct {
	mu     sync.RWMutex
	offset time.Duration
}

// NewSimClock creates a SimClock with no offset.
func NewSimClock() *SimClock {
	return &SimClock{}
}

// Now returns the wall clock shifted by the accumulated offset.
func (c *SimClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Now().Add(c.offset)
}

// Advance moves the clock forward by d.
func (c *SimClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset += d
}
