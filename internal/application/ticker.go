package application

import (
	"context"
	"time"
)

// DefaultProjectionInterval is the refresh cadence of live attendance views.
const DefaultProjectionInterval = 30 * time.Second

// Ticker drives a fixed-cadence refresh loop for display clients.
type Ticker struct {
	interval time.Duration
	// newTicker is swapped in tests.
	newTicker func(time.Duration) (<-chan time.Time, func())
}

// NewTicker constructs a Ticker. Non-positive intervals select DefaultProjectionInterval.
func NewTicker(interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = DefaultProjectionInterval
	}
	return &Ticker{interval: interval, newTicker: func(d time.Duration) (<-chan time.Time, func()) {
		t := time.NewTicker(d)
		return t.C, t.Stop
	}}
}

// Interval returns the refresh cadence.
func (t *Ticker) Interval() time.Duration {
	return t.interval
}

// Watch calls fn immediately and then on every tick until ctx is cancelled or
// fn returns an error. Cancellation is not reported as an error.
func (t *Ticker) Watch(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		return err
	}
	ticks, stop := t.newTicker(t.interval)
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticks:
			if err := fn(ctx); err != nil {
				return err
			}
		}
	}
}
