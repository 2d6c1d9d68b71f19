package auth

import (
	"sync"
	stdtime "time"
)

// FakeClock is a Clock that only moves when told to. Safe for concurrent
// use, so an httptest server and the test goroutine can share one.
type FakeClock struct {
	mu  sync.Mutex
	now stdtime.Time
}

// NewFakeClock returns a FakeClock stopped at t.
func NewFakeClock(t stdtime.Time) *FakeClock {
	return &FakeClock{now: t}
}

func (c *FakeClock) Now() stdtime.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time.
func (c *FakeClock) Advance(d stdtime.Duration) stdtime.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Set jumps to t, which may be in the past.
func (c *FakeClock) Set(t stdtime.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
