package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/worktimer/internal/storage"
	"github.com/redis/go-redis/v9"
)

var incrementDaily = redis.NewScript(incrementDailyScript)

type historyStore struct {
	client *redis.Client
	ttl    time.Duration
}

func dailyKey(date, userID string) string {
	return fmt.Sprintf("%s:history:daily:%s:%s", keyPrefix, date, userID)
}

func dailyIndexKey(date string) string {
	return fmt.Sprintf("%s:history:daily:index:%s", keyPrefix, date)
}

func datesKey() string {
	return keyPrefix + ":history:dates"
}

// IncrementDaily atomically adds a finished session to a user's daily totals
func (s *historyStore) IncrementDaily(ctx context.Context, date, userID string, onlineSeconds, offlineSeconds int64) error {
	keys := []string{dailyKey(date, userID), dailyIndexKey(date), datesKey()}
	args := []interface{}{date, userID, onlineSeconds, offlineSeconds, int64(s.ttl / time.Second)}

	return incrementDaily.Run(ctx, s.client, keys, args...).Err()
}

// GetDaily retrieves the totals for a user on a date
func (s *historyStore) GetDaily(ctx context.Context, date, userID string) (*storage.DailyTotals, error) {
	data, err := s.client.HGetAll(ctx, dailyKey(date, userID)).Result()
	if err != nil {
		return nil, err
	}

	return parseDailyTotals(data)
}

// ListDaily returns the totals of every user on a date
func (s *historyStore) ListDaily(ctx context.Context, date string) ([]storage.DailyTotals, error) {
	userIDs, err := s.client.SMembers(ctx, dailyIndexKey(date)).Result()
	if err != nil {
		return nil, err
	}

	if len(userIDs) == 0 {
		return []storage.DailyTotals{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(userIDs))
	for i, id := range userIDs {
		cmds[i] = pipe.HGetAll(ctx, dailyKey(date, id))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	totals := make([]storage.DailyTotals, 0, len(userIDs))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}

		daily, err := parseDailyTotals(data)
		if err == nil {
			totals = append(totals, *daily)
		}
	}

	return totals, nil
}

// DeleteDailyBefore removes every date strictly before cutoffDate.
// Keys also carry a TTL, so this mostly catches entries written without one.
func (s *historyStore) DeleteDailyBefore(ctx context.Context, cutoffDate string) (int, error) {
	dates, err := s.client.SMembers(ctx, datesKey()).Result()
	if err != nil {
		return 0, err
	}

	var deleted int
	for _, date := range dates {
		// Dates are YYYY-MM-DD so string order is chronological
		if date >= cutoffDate {
			continue
		}

		userIDs, err := s.client.SMembers(ctx, dailyIndexKey(date)).Result()
		if err != nil {
			return deleted, err
		}

		keys := make([]string, 0, len(userIDs))
		for _, id := range userIDs {
			keys = append(keys, dailyKey(date, id))
		}

		pipe := s.client.TxPipeline()
		var del *redis.IntCmd
		if len(keys) > 0 {
			del = pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, dailyIndexKey(date))
		pipe.SRem(ctx, datesKey(), date)
		if _, err := pipe.Exec(ctx); err != nil {
			return deleted, err
		}

		if del != nil {
			deleted += int(del.Val())
		}
	}

	return deleted, nil
}
