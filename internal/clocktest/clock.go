// Package clocktest adapts quartz mock clocks to the resilience.Clock
// interface for deterministic timing in tests.
package clocktest

import (
	"testing"
	"time"

	"github.com/coder/quartz"

	"github.com/mlindgren/outreach/resilience"
)

// Clock wraps quartz.Mock to implement resilience.Clock.
type Clock struct {
	*quartz.Mock
}

// New creates a mock clock for testing.
func New(t testing.TB) *Clock {
	return &Clock{Mock: quartz.NewMock(t)}
}

// Now returns the mock's current time.
func (c *Clock) Now() time.Time {
	return c.Mock.Now()
}

// Since returns the mock time elapsed since t.
func (c *Clock) Since(t time.Time) time.Duration {
	return c.Mock.Since(t)
}

// After returns a channel that fires once the mock clock advances past d.
func (c *Clock) After(d time.Duration) <-chan time.Time {
	timer := c.Mock.NewTimer(d)
	return timer.C
}

var _ resilience.Clock = (*Clock)(nil)
