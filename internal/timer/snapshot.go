package timer

import (
	"time"

	"github.com/goodtune/worktimer/internal/api"
	"github.com/goodtune/worktimer/internal/display"
	"github.com/goodtune/worktimer/internal/ledger"
)

// Snapshot is what views render: the session, its state and the live totals.
type Snapshot struct {
	AttendanceID     string           `json:"attendance_id,omitempty"`
	UserID           string           `json:"user_id,omitempty"`
	CheckIn          *time.Time       `json:"check_in,omitempty"`
	WorkLocation     api.WorkLocation `json:"work_location,omitempty"`
	Status           ledger.Status    `json:"status"`
	Since            *time.Time       `json:"since,omitempty"`
	WorkingSeconds   int64            `json:"working_seconds"`
	OfflineSeconds   int64            `json:"offline_seconds"`
	WorkingHours     string           `json:"working_hours"`
	OfflineHours     string           `json:"offline_hours"`
	LastStatusChange *time.Time       `json:"last_status_change,omitempty"`
	FreshSession     bool             `json:"fresh_session"`
	At               time.Time        `json:"at"`
}

// Open reports whether the snapshot describes an open session.
func (s Snapshot) Open() bool {
	return s.Status == ledger.StatusOnline || s.Status == ledger.StatusOffline
}

func (s *Service) snapshotLocked(now time.Time) Snapshot {
	ls := s.ledger.Snapshot(now)
	snap := Snapshot{
		Status:         ls.Status,
		WorkingSeconds: ls.WorkingSeconds,
		OfflineSeconds: ls.OfflineSeconds,
		WorkingHours:   display.Format(ls.WorkingSeconds),
		OfflineHours:   display.Format(ls.OfflineSeconds),
		At:             now,
	}

	if s.session != nil {
		checkIn := s.session.CheckIn
		snap.AttendanceID = s.session.AttendanceID
		snap.UserID = s.session.UserID
		snap.CheckIn = &checkIn
		snap.WorkLocation = s.session.WorkLocation
		snap.FreshSession = s.guard.Active(checkIn, now)
	}
	if !ls.Since.IsZero() {
		since := ls.Since
		snap.Since = &since
	}
	if !ls.LastStatusChange.IsZero() {
		last := ls.LastStatusChange
		snap.LastStatusChange = &last
	}

	return snap
}
