package testfixtures

import (
	"sync"
	"time"
)

// Clock is a hand-driven time source pinned to the event time zone. Services
// read it through NowFunc; tests move it with Set, SetWall, NextDay or Advance.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

// NewClock starts at start, or at ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NowFunc returns the injectable form of Now. A nil clock falls back to time.Now.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}

// Advance moves the clock by d, which may be negative to simulate skew.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	return c.current
}

// SetWall moves the clock to hour:minute on its current calendar day in the
// event time zone.
func (c *Clock) SetWall(hour, minute int) time.Time {
	return c.wall(0, hour, minute)
}

// NextDay moves the clock to hour:minute on the following calendar day.
func (c *Clock) NextDay(hour, minute int) time.Time {
	return c.wall(1, hour, minute)
}

func (c *Clock) wall(days, hour, minute int) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	local := c.current.In(EventLocation())
	c.current = time.Date(local.Year(), local.Month(), local.Day()+days, hour, minute, 0, 0, EventLocation())
	return c.current
}
