package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/worktimer/internal/storage"
	"github.com/redis/go-redis/v9"
)

var (
	saveSession   = redis.NewScript(saveSessionScript)
	deleteSession = redis.NewScript(deleteSessionScript)
)

type sessionStore struct {
	client *redis.Client
}

func sessionKey(userID string) string {
	return fmt.Sprintf("%s:session:%s", keyPrefix, userID)
}

func openSetKey() string {
	return keyPrefix + ":sessions:open"
}

// Save creates or replaces the open session record for a user
func (s *sessionStore) Save(ctx context.Context, record storage.SessionRecord) error {
	if record.UserID == "" {
		return fmt.Errorf("session record requires a user id")
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now()
	}

	keys := []string{sessionKey(record.UserID), openSetKey()}
	args := []interface{}{
		record.UserID,
		record.AttendanceID,
		formatTime(record.CheckIn),
		record.WorkLocation,
		record.Status,
		formatTime(record.LastStatusChange),
		formatTime(record.UpdatedAt),
	}

	return saveSession.Run(ctx, s.client, keys, args...).Err()
}

// Load retrieves the open session record for a user
func (s *sessionStore) Load(ctx context.Context, userID string) (*storage.SessionRecord, error) {
	data, err := s.client.HGetAll(ctx, sessionKey(userID)).Result()
	if err != nil {
		return nil, err
	}

	return parseSessionRecord(data)
}

// Delete removes the session record for a user
func (s *sessionStore) Delete(ctx context.Context, userID string) error {
	keys := []string{sessionKey(userID), openSetKey()}
	return deleteSession.Run(ctx, s.client, keys, userID).Err()
}

// ListOpen returns every persisted open session
func (s *sessionStore) ListOpen(ctx context.Context) ([]storage.SessionRecord, error) {
	userIDs, err := s.client.SMembers(ctx, openSetKey()).Result()
	if err != nil {
		return nil, err
	}

	if len(userIDs) == 0 {
		return []storage.SessionRecord{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(userIDs))
	for i, id := range userIDs {
		cmds[i] = pipe.HGetAll(ctx, sessionKey(id))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	records := make([]storage.SessionRecord, 0, len(userIDs))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}

		record, err := parseSessionRecord(data)
		if err == nil {
			records = append(records, *record)
		}
	}

	return records, nil
}
