package api

import (
	"bytes"
	"encoding/json"
	"io"
	"time"
)

// ID is a backend identifier. The backend emits ids as either JSON strings
// or numbers; both decode to the same string form.
type ID string

// UnmarshalJSON implements json.Unmarshaler for string and numeric ids.
func (id *ID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// WorkLocation is where the employee works for a session.
type WorkLocation string

const (
	LocationOffice       WorkLocation = "office"
	LocationWorkFromHome WorkLocation = "work_from_home"
)

// Geolocation is the device position reported at check-in and checkout.
type Geolocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Attendance is the attendance record returned by check-in and checkout.
type Attendance struct {
	ID           ID           `json:"id"`
	UserID       ID           `json:"user_id"`
	CheckIn      time.Time    `json:"check_in"`
	CheckOut     *time.Time   `json:"check_out,omitempty"`
	TotalHours   float64      `json:"total_hours"`
	WorkLocation WorkLocation `json:"work_location"`
}

// CheckInRequest carries the identity, position and selfie for a check-in.
type CheckInRequest struct {
	UserID       string
	Location     Geolocation
	WorkLocation WorkLocation
	Selfie       io.Reader
	SelfieName   string
}

// CheckOutRequest carries the fields for closing an attendance record.
type CheckOutRequest struct {
	AttendanceID string
	UserID       string
	Location     Geolocation
	Selfie       io.Reader
	SelfieName   string
	WorkSummary  string
}

// StatusChange is the body of the online-status-change call.
type StatusChange struct {
	AttendanceID string `json:"attendance_id"`
	IsOnline     bool   `json:"is_online"`
	Reason       string `json:"reason,omitempty"`
}

// WorkingHours is the backend's cumulative ledger for one attendance record.
type WorkingHours struct {
	TotalOnlineSeconds  int64
	TotalOfflineSeconds int64
	IsCurrentlyOnline   bool
}

// workingHoursResponse accepts either total_online_seconds or the older total_seconds.
type workingHoursResponse struct {
	TotalOnlineSeconds  *int64 `json:"total_online_seconds"`
	TotalSeconds        *int64 `json:"total_seconds"`
	TotalOfflineSeconds int64  `json:"total_offline_seconds"`
	IsCurrentlyOnline   bool   `json:"is_currently_online"`
}

func (r workingHoursResponse) normalize() WorkingHours {
	wh := WorkingHours{
		TotalOfflineSeconds: r.TotalOfflineSeconds,
		IsCurrentlyOnline:   r.IsCurrentlyOnline,
	}
	switch {
	case r.TotalOnlineSeconds != nil:
		wh.TotalOnlineSeconds = *r.TotalOnlineSeconds
	case r.TotalSeconds != nil:
		wh.TotalOnlineSeconds = *r.TotalSeconds
	}
	return wh
}

// UserStatus is the online status of a user, used to resume a session after restart.
type UserStatus struct {
	IsCheckedIn      bool       `json:"is_checked_in"`
	CheckedOut       bool       `json:"checked_out"`
	IsOnline         bool       `json:"is_online"`
	LastStatusChange *time.Time `json:"last_status_change,omitempty"`
	AttendanceID     ID         `json:"attendance_id,omitempty"`
	CheckIn          *time.Time `json:"check_in,omitempty"`
}

// Open reports whether the user has a session that has not been checked out.
func (s UserStatus) Open() bool {
	return s.IsCheckedIn && !s.CheckedOut
}

// TeamMember is one entry of the all-users online status listing.
type TeamMember struct {
	UserID           ID         `json:"user_id"`
	Name             string     `json:"name"`
	IsCheckedIn      bool       `json:"is_checked_in"`
	IsOnline         bool       `json:"is_online"`
	LastStatusChange *time.Time `json:"last_status_change,omitempty"`
}

type wfhStatusResponse struct {
	Approved bool `json:"approved"`
}

type statusChangeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}
