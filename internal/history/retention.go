package history

import (
	"context"
	"time"

	"github.com/goodtune/worktimer/internal/storage"
	"github.com/rs/zerolog"
)

const defaultRetentionDays = 90

// RetentionScheduler prunes daily totals older than the retention period once a day.
type RetentionScheduler struct {
	history       storage.HistoryStore
	retentionDays int
	runTime       time.Time // Time of day to prune (only hour and minute are used)
	now           func() time.Time
	logger        zerolog.Logger
	stopChan      chan struct{}
}

// NewRetentionScheduler creates a new retention scheduler. runTime is HH:MM.
func NewRetentionScheduler(history storage.HistoryStore, retentionDays int, runTime string, logger zerolog.Logger) (*RetentionScheduler, error) {
	parsedTime, err := time.Parse("15:04", runTime)
	if err != nil {
		return nil, err
	}

	if retentionDays <= 0 {
		retentionDays = defaultRetentionDays
	}

	return &RetentionScheduler{
		history:       history,
		retentionDays: retentionDays,
		runTime:       parsedTime,
		now:           time.Now,
		logger:        logger.With().Str("component", "history-retention").Logger(),
		stopChan:      make(chan struct{}),
	}, nil
}

// Start begins the retention scheduler
func (rs *RetentionScheduler) Start() {
	go rs.run()
	rs.logger.Info().
		Str("run_time", rs.runTime.Format("15:04")).
		Int("retention_days", rs.retentionDays).
		Msg("History retention scheduler started")
}

// Stop stops the retention scheduler
func (rs *RetentionScheduler) Stop() {
	close(rs.stopChan)
	rs.logger.Info().Msg("History retention scheduler stopped")
}

func (rs *RetentionScheduler) run() {
	for {
		next := rs.nextRun()
		wait := next.Sub(rs.now())

		rs.logger.Debug().
			Time("next_run", next).
			Dur("wait_duration", wait).
			Msg("Scheduled next history prune")

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			_, _ = rs.Prune(context.Background())
		case <-rs.stopChan:
			timer.Stop()
			return
		}
	}
}

// nextRun returns the next occurrence of the run time of day
func (rs *RetentionScheduler) nextRun() time.Time {
	now := rs.now()

	today := time.Date(
		now.Year(), now.Month(), now.Day(),
		rs.runTime.Hour(), rs.runTime.Minute(), 0, 0,
		now.Location(),
	)

	if now.After(today) {
		return today.AddDate(0, 0, 1)
	}
	return today
}

// Prune deletes daily totals dated before the retention cutoff.
func (rs *RetentionScheduler) Prune(ctx context.Context) (int, error) {
	cutoffDate := rs.now().AddDate(0, 0, -rs.retentionDays).Format(storage.DateFormat)

	deleted, err := rs.history.DeleteDailyBefore(ctx, cutoffDate)
	if err != nil {
		rs.logger.Error().Err(err).Msg("Failed to prune daily history")
		return 0, err
	}

	rs.logger.Info().
		Int("entries_deleted", deleted).
		Str("cutoff_date", cutoffDate).
		Msg("Daily history pruned")

	return deleted, nil
}
