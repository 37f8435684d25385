package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store represents the root storage interface.
type Store interface {
	Close() error
	Sessions() SessionStore
	History() HistoryStore
}

// SessionStore persists the open attendance session so a restarted daemon
// can find and resume it.
type SessionStore interface {
	Save(ctx context.Context, record SessionRecord) error
	Load(ctx context.Context, userID string) (*SessionRecord, error)
	Delete(ctx context.Context, userID string) error
	ListOpen(ctx context.Context) ([]SessionRecord, error)
}

// HistoryStore keeps per-day online/offline totals of finished sessions.
type HistoryStore interface {
	IncrementDaily(ctx context.Context, date, userID string, onlineSeconds, offlineSeconds int64) error
	GetDaily(ctx context.Context, date, userID string) (*DailyTotals, error)
	ListDaily(ctx context.Context, date string) ([]DailyTotals, error)
	DeleteDailyBefore(ctx context.Context, cutoffDate string) (int, error)
}
