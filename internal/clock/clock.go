package clock

import (
	"sync"
	"time"
)

// Clock provides the current time to the timer components.
// This interface allows time to be driven by tests.
type Clock interface {
	Now() time.Time
}

// Real provides actual system time.
type Real struct{}

// Now returns the current system time.
func (Real) Now() time.Time {
	return time.Now()
}

// Test is a manually advanced clock for tests.
type Test struct {
	mu      sync.Mutex
	current time.Time
}

// NewTest returns a test clock frozen at start.
func NewTest(start time.Time) *Test {
	return &Test{current: start}
}

// Now returns the test time.
func (t *Test) Now() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Set moves the clock to an absolute time.
func (t *Test) Set(now time.Time) {
	t.mu.Lock()
	t.current = now
	t.mu.Unlock()
}

// Advance moves the clock forward by d.
func (t *Test) Advance(d time.Duration) {
	t.mu.Lock()
	t.current = t.current.Add(d)
	t.mu.Unlock()
}

// ElapsedSeconds returns the whole seconds between start and now.
// A now earlier than start (clock skew) yields 0.
func ElapsedSeconds(start, now time.Time) int64 {
	if start.IsZero() {
		return 0
	}
	secs := int64(now.Sub(start) / time.Second)
	if secs < 0 {
		return 0
	}
	return secs
}
