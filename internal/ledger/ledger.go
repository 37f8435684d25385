package ledger

import (
	"errors"
	"time"

	"github.com/goodtune/worktimer/internal/clock"
)

var (
	// ErrClosed is returned when a transition is applied to a ledger with no open session.
	ErrClosed = errors.New("ledger: session is closed")

	// ErrInvalidStatus is returned when a transition targets a state other than online or offline.
	ErrInvalidStatus = errors.New("ledger: invalid target status")
)

// Ledger tracks the online/offline state of one attendance session and the
// seconds banked in each state by closed segments.
//
// A Ledger is not safe for concurrent use; its owner serializes access.
type Ledger struct {
	state          SessionState
	onlineSeconds  int64
	offlineSeconds int64
	lastChange     time.Time
}

// Snapshot is a point-in-time copy of the ledger with live figures resolved.
type Snapshot struct {
	Status             Status
	Since              time.Time
	AccumulatedOnline  int64
	AccumulatedOffline int64
	WorkingSeconds     int64
	OfflineSeconds     int64
	LastStatusChange   time.Time
}

// New returns a closed ledger.
func New() *Ledger {
	return &Ledger{state: Closed{}}
}

// Initialize opens a session at checkIn in the Online state with empty accumulators.
func (l *Ledger) Initialize(checkIn time.Time) {
	l.state = Online{Since: checkIn}
	l.onlineSeconds = 0
	l.offlineSeconds = 0
	l.lastChange = checkIn
}

// Apply moves the ledger to next at now, banking the elapsed time of the
// state being left. It reports false when next is already the current state.
func (l *Ledger) Apply(next Status, now time.Time) (bool, error) {
	if next != StatusOnline && next != StatusOffline {
		return false, ErrInvalidStatus
	}

	switch st := l.state.(type) {
	case Closed, nil:
		return false, ErrClosed
	case Online:
		if next == StatusOnline {
			return false, nil
		}
		l.onlineSeconds += clock.ElapsedSeconds(st.Since, now)
	case Offline:
		if next == StatusOffline {
			return false, nil
		}
		l.offlineSeconds += clock.ElapsedSeconds(st.Since, now)
	}

	l.state = open(next, now)
	l.lastChange = now
	return true, nil
}

// Resume sets the open state from backend data without banking any time.
// The accumulators are left for reconciliation to fill in.
func (l *Ledger) Resume(status Status, lastChange time.Time) error {
	if status != StatusOnline && status != StatusOffline {
		return ErrInvalidStatus
	}
	l.state = open(status, lastChange)
	l.lastChange = lastChange
	return nil
}

// Overwrite replaces both accumulators. Negative values are stored as zero.
func (l *Ledger) Overwrite(online, offline int64) {
	if online < 0 {
		online = 0
	}
	if offline < 0 {
		offline = 0
	}
	l.onlineSeconds = online
	l.offlineSeconds = offline
}

// WorkingSeconds is the banked online time plus the open online segment.
func (l *Ledger) WorkingSeconds(now time.Time) int64 {
	if st, ok := l.state.(Online); ok {
		return l.onlineSeconds + clock.ElapsedSeconds(st.Since, now)
	}
	return l.onlineSeconds
}

// OfflineSeconds is the banked offline time plus the open offline segment.
func (l *Ledger) OfflineSeconds(now time.Time) int64 {
	if st, ok := l.state.(Offline); ok {
		return l.offlineSeconds + clock.ElapsedSeconds(st.Since, now)
	}
	return l.offlineSeconds
}

// State returns the current session state.
func (l *Ledger) State() SessionState {
	if l.state == nil {
		return Closed{}
	}
	return l.state
}

// Status returns the status of the current state.
func (l *Ledger) Status() Status {
	return l.State().Status()
}

// Accumulated returns the banked seconds, excluding the open segment.
func (l *Ledger) Accumulated() (online, offline int64) {
	return l.onlineSeconds, l.offlineSeconds
}

// LastChange returns the time of the most recent transition.
func (l *Ledger) LastChange() time.Time {
	return l.lastChange
}

// Teardown closes the ledger and clears every field.
func (l *Ledger) Teardown() {
	l.state = Closed{}
	l.onlineSeconds = 0
	l.offlineSeconds = 0
	l.lastChange = time.Time{}
}

// Snapshot resolves the live figures as of now.
func (l *Ledger) Snapshot(now time.Time) Snapshot {
	since, _ := Since(l.state)
	return Snapshot{
		Status:             l.Status(),
		Since:              since,
		AccumulatedOnline:  l.onlineSeconds,
		AccumulatedOffline: l.offlineSeconds,
		WorkingSeconds:     l.WorkingSeconds(now),
		OfflineSeconds:     l.OfflineSeconds(now),
		LastStatusChange:   l.lastChange,
	}
}
