package clock

import (
	"sync"
	"time"

	clk "github.com/benbjohnson/clock"
)

// Clock provides the time operations the watchdog schedules against.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

func New() Clock {
	return clk.New()
}

// MockClock only moves when Advance is called. Channels returned by After fire once the
// clock passes their deadline. It records every requested delay so tests can assert on
// what was scheduled.
type MockClock struct {
	mock      *clk.Mock
	mu        sync.Mutex
	calls     []time.Duration
	deadlines []time.Time
}

var _ Clock = (*MockClock)(nil)

func NewMock(t time.Time) *MockClock {
	mock := clk.NewMock()
	mock.Set(t)

	return &MockClock{mock: mock}
}

func (c *MockClock) Now() time.Time {
	return c.mock.Now()
}

func (c *MockClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.calls = append(c.calls, d)
	c.deadlines = append(c.deadlines, c.mock.Now().Add(d))
	c.mu.Unlock()

	return c.mock.After(d)
}

// Advance moves the clock forward and fires every timer that is now due.
func (c *MockClock) Advance(d time.Duration) {
	c.mock.Add(d)
}

// Calls returns the durations passed to After so far.
func (c *MockClock) Calls() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]time.Duration(nil), c.calls...)
}

// Pending returns how many After channels have a deadline still ahead of the clock.
func (c *MockClock) Pending() int {
	now := c.mock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	pending := 0

	for _, deadline := range c.deadlines {
		if deadline.After(now) {
			pending++
		}
	}

	return pending
}
