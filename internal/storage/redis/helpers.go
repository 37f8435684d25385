package redis

import (
	"fmt"
	"strconv"
	"time"

	"github.com/goodtune/worktimer/internal/storage"
)

// formatTime renders t for a hash field; the zero time is stored as "".
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// parseSessionRecord converts a Redis hash to SessionRecord
func parseSessionRecord(data map[string]string) (*storage.SessionRecord, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	checkIn, err := parseTime(data["check_in"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse check_in: %w", err)
	}

	lastChange, err := parseTime(data["last_status_change"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse last_status_change: %w", err)
	}

	updatedAt, err := parseTime(data["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return &storage.SessionRecord{
		AttendanceID:     data["attendance_id"],
		UserID:           data["user_id"],
		CheckIn:          checkIn,
		WorkLocation:     data["work_location"],
		Status:           data["status"],
		LastStatusChange: lastChange,
		UpdatedAt:        updatedAt,
	}, nil
}

// parseDailyTotals converts a Redis hash to DailyTotals
func parseDailyTotals(data map[string]string) (*storage.DailyTotals, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	online, err := strconv.ParseInt(data["online_seconds"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse online_seconds: %w", err)
	}

	offline, err := strconv.ParseInt(data["offline_seconds"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse offline_seconds: %w", err)
	}

	sessions, err := strconv.ParseInt(data["sessions"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sessions: %w", err)
	}

	return &storage.DailyTotals{
		Date:           data["date"],
		UserID:         data["user_id"],
		OnlineSeconds:  online,
		OfflineSeconds: offline,
		Sessions:       sessions,
	}, nil
}
