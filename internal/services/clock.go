package services

import (
	"sync"
	"time"
)

// Clock supplies the logical time (unix seconds) that deadlines are compared
// against. Readings never decrease.
type Clock interface {
	Now() uint64
}

// SystemClock reads wall time and clamps it so that it never goes backwards.
type SystemClock struct {
	mu   sync.Mutex
	last uint64
}

func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

func (c *SystemClock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := uint64(time.Now().Unix())
	if now < c.last {
		return c.last
	}
	c.last = now
	return now
}

// ManualClock is a clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now uint64
}

func NewManualClock(start uint64) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by seconds.
func (c *ManualClock) Advance(seconds uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += seconds
}

// Set moves the clock to t; earlier values are ignored.
func (c *ManualClock) Set(t uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t > c.now {
		c.now = t
	}
}
