package ledger

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status names the two toggleable sub-states of an open session plus the
// terminal state after checkout.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusClosed  Status = "closed"
)

// ParseStatus accepts "online" or "offline" in any case.
func ParseStatus(s string) (Status, error) {
	switch normalized := Status(strings.ToLower(strings.TrimSpace(s))); normalized {
	case StatusOnline, StatusOffline:
		return normalized, nil
	default:
		return "", fmt.Errorf("invalid status: %s (must be online or offline)", s)
	}
}

// StatusFromOnline maps the backend's is_online flag to a Status.
func StatusFromOnline(online bool) Status {
	if online {
		return StatusOnline
	}
	return StatusOffline
}

// UnmarshalJSON implements json.Unmarshaler. Unknown states are rejected.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if Status(strings.ToLower(raw)) == StatusClosed {
		*s = StatusClosed
		return nil
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// SessionState is one of Online, Offline or Closed. Only the open states
// carry a start time, so a ledger can never have both timers running.
type SessionState interface {
	Status() Status
	sessionState()
}

// Online is the state while the employee is actively working.
type Online struct {
	Since time.Time
}

// Offline is the state while work is paused.
type Offline struct {
	Since time.Time
}

// Closed is the state before check-in and after checkout.
type Closed struct{}

func (Online) Status() Status  { return StatusOnline }
func (Offline) Status() Status { return StatusOffline }
func (Closed) Status() Status  { return StatusClosed }

func (Online) sessionState()  {}
func (Offline) sessionState() {}
func (Closed) sessionState()  {}

// Since returns the start of the open segment, or false for Closed.
func Since(s SessionState) (time.Time, bool) {
	switch st := s.(type) {
	case Online:
		return st.Since, true
	case Offline:
		return st.Since, true
	default:
		return time.Time{}, false
	}
}

func open(status Status, since time.Time) SessionState {
	if status == StatusOnline {
		return Online{Since: since}
	}
	return Offline{Since: since}
}
