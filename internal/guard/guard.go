package guard

import "time"

// DefaultWindow is how long after check-in backend totals are ignored.
const DefaultWindow = 5 * time.Minute

// Guard suppresses reconciliation right after check-in so a new session
// always starts its display from zero.
type Guard struct {
	Window time.Duration
}

// New creates a guard with the given window, or DefaultWindow if window is zero.
func New(window time.Duration) Guard {
	if window <= 0 {
		window = DefaultWindow
	}
	return Guard{Window: window}
}

// Active reports whether now falls inside the fresh-session window that
// starts at checkIn. It is evaluated on every read; nothing is scheduled.
func (g Guard) Active(checkIn, now time.Time) bool {
	if checkIn.IsZero() {
		return false
	}
	window := g.Window
	if window <= 0 {
		window = DefaultWindow
	}
	return now.Sub(checkIn) < window
}

// Remaining returns how much of the window is left, or 0 once expired.
func (g Guard) Remaining(checkIn, now time.Time) time.Duration {
	if !g.Active(checkIn, now) {
		return 0
	}
	window := g.Window
	if window <= 0 {
		window = DefaultWindow
	}
	return window - now.Sub(checkIn)
}
