package util

import (
	"sync"
	"time"
)

type Clock interface {
	After(d time.Duration) <-chan time.Time
	Now() time.Time
}

type RealClock struct{}

func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (RealClock) Now() time.Time                         { return time.Now() }

// FakeClock is a manually-advanced clock for deterministic tests.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After fires immediately once the fake time has been advanced past d.
// Waiters poll rather than block so tests cannot deadlock on a frozen clock.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	deadline := c.Now().Add(d)
	ch := make(chan time.Time, 1)
	go func() {
		for {
			now := c.Now()
			if !now.Before(deadline) {
				ch <- now
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()
	return ch
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}
