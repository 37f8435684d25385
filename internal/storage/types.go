package storage

import "time"

// DateFormat is the layout of the date keys used by HistoryStore.
const DateFormat = "2006-01-02"

// SessionRecord is the persisted form of an open attendance session.
type SessionRecord struct {
	AttendanceID     string    `json:"attendance_id"`
	UserID           string    `json:"user_id"`
	CheckIn          time.Time `json:"check_in"`
	WorkLocation     string    `json:"work_location"`
	Status           string    `json:"status"`
	LastStatusChange time.Time `json:"last_status_change"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// DailyTotals aggregates finished sessions per day and user.
type DailyTotals struct {
	Date           string `json:"date"`
	UserID         string `json:"user_id"`
	OnlineSeconds  int64  `json:"online_seconds"`
	OfflineSeconds int64  `json:"offline_seconds"`
	Sessions       int64  `json:"sessions"`
}
