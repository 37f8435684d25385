// Package memory provides a process-local storage.Store for development and
// for running without Redis. Nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goodtune/worktimer/internal/storage"
)

// Store implements storage.Store with maps guarded by a mutex.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]storage.SessionRecord
	daily    map[string]map[string]storage.DailyTotals // date -> user -> totals
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		sessions: make(map[string]storage.SessionRecord),
		daily:    make(map[string]map[string]storage.DailyTotals),
	}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Sessions returns the SessionStore implementation.
func (s *Store) Sessions() storage.SessionStore { return (*sessionStore)(s) }

// History returns the HistoryStore implementation.
func (s *Store) History() storage.HistoryStore { return (*historyStore)(s) }

type sessionStore Store

func (s *sessionStore) Save(_ context.Context, record storage.SessionRecord) error {
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now()
	}
	s.mu.Lock()
	s.sessions[record.UserID] = record
	s.mu.Unlock()
	return nil
}

func (s *sessionStore) Load(_ context.Context, userID string) (*storage.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.sessions[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &record, nil
}

func (s *sessionStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
	return nil
}

func (s *sessionStore) ListOpen(_ context.Context) ([]storage.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]storage.SessionRecord, 0, len(s.sessions))
	for _, r := range s.sessions {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].UserID < records[j].UserID })
	return records, nil
}

type historyStore Store

func (s *historyStore) IncrementDaily(_ context.Context, date, userID string, onlineSeconds, offlineSeconds int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byUser, ok := s.daily[date]
	if !ok {
		byUser = make(map[string]storage.DailyTotals)
		s.daily[date] = byUser
	}
	totals := byUser[userID]
	totals.Date = date
	totals.UserID = userID
	totals.OnlineSeconds += onlineSeconds
	totals.OfflineSeconds += offlineSeconds
	totals.Sessions++
	byUser[userID] = totals
	return nil
}

func (s *historyStore) GetDaily(_ context.Context, date, userID string) (*storage.DailyTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	totals, ok := s.daily[date][userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &totals, nil
}

func (s *historyStore) ListDaily(_ context.Context, date string) ([]storage.DailyTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]storage.DailyTotals, 0, len(s.daily[date]))
	for _, totals := range s.daily[date] {
		list = append(list, totals)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UserID < list[j].UserID })
	return list, nil
}

func (s *historyStore) DeleteDailyBefore(_ context.Context, cutoffDate string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int
	for date, byUser := range s.daily {
		if date < cutoffDate {
			deleted += len(byUser)
			delete(s.daily, date)
		}
	}
	return deleted, nil
}
