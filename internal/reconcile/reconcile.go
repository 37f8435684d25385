// Package reconcile corrects the local session ledger against the backend's
// cumulative working-hours totals.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/worktimer/internal/api"
	"github.com/goodtune/worktimer/internal/clock"
	"github.com/goodtune/worktimer/internal/guard"
	"github.com/goodtune/worktimer/internal/ledger"
	"github.com/goodtune/worktimer/internal/metrics"
	"github.com/rs/zerolog"
)

// ErrSuppressed is returned by Poll while the fresh-session guard is active.
var ErrSuppressed = errors.New("reconcile: suppressed by fresh-session guard")

// HoursSource fetches the backend totals for an attendance record.
type HoursSource interface {
	WorkingHours(ctx context.Context, attendanceID string) (api.WorkingHours, error)
}

// Session identifies the attendance record being reconciled.
type Session struct {
	AttendanceID string
	CheckIn      time.Time
}

// Result describes what a reconciliation changed.
type Result struct {
	Online  int64
	Offline int64
	Flipped bool
	Status  ledger.Status
}

// Engine polls the backend and overwrites ledger accumulators.
type Engine struct {
	source  HoursSource
	guard   guard.Guard
	timeout time.Duration
	logger  zerolog.Logger
}

// NewEngine creates an engine. A zero timeout means api.DefaultTimeout.
func NewEngine(source HoursSource, g guard.Guard, timeout time.Duration, logger zerolog.Logger) *Engine {
	if timeout <= 0 {
		timeout = api.DefaultTimeout
	}
	return &Engine{
		source:  source,
		guard:   g,
		timeout: timeout,
		logger:  logger.With().Str("component", "reconcile").Logger(),
	}
}

// Poll fetches working hours for sess unless the guard is active at now.
// No request is made while suppressed.
func (e *Engine) Poll(ctx context.Context, sess Session, now time.Time) (api.WorkingHours, error) {
	if sess.AttendanceID == "" {
		metrics.ReconciliationsTotal.WithLabelValues("skipped").Inc()
		return api.WorkingHours{}, fmt.Errorf("reconcile: no attendance id")
	}

	if e.guard.Active(sess.CheckIn, now) {
		metrics.ReconciliationsTotal.WithLabelValues("suppressed").Inc()
		e.logger.Debug().
			Str("attendance_id", sess.AttendanceID).
			Dur("remaining", e.guard.Remaining(sess.CheckIn, now)).
			Msg("Fresh session, skipping reconciliation")
		return api.WorkingHours{}, ErrSuppressed
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	wh, err := e.source.WorkingHours(ctx, sess.AttendanceID)
	if err != nil {
		metrics.ReconciliationsTotal.WithLabelValues("failed").Inc()
		e.logger.Warn().
			Err(err).
			Str("attendance_id", sess.AttendanceID).
			Msg("Failed to fetch working hours, keeping local totals")
		return api.WorkingHours{}, fmt.Errorf("failed to fetch working hours: %w", err)
	}

	return wh, nil
}

// Apply writes wh into l as of now. If the backend reports a different
// online state, the ledger is resumed in that state starting at now.
func (e *Engine) Apply(l *ledger.Ledger, wh api.WorkingHours, now time.Time) Result {
	result := Result{Status: l.Status()}

	if result.Status == ledger.StatusClosed {
		metrics.ReconciliationsTotal.WithLabelValues("skipped").Inc()
		return result
	}

	remote := ledger.StatusFromOnline(wh.IsCurrentlyOnline)
	if remote != result.Status {
		// The toggle already happened remotely; only the local state follows.
		if err := l.Resume(remote, now); err == nil {
			e.logger.Info().
				Str("local", string(result.Status)).
				Str("state", string(remote)).
				Msg("Backend reports a different state, following backend")
			result.Flipped = true
			result.Status = remote
			metrics.RemoteStateCorrections.Inc()
		}
	}

	result.Online, result.Offline = Correct(wh, l.State(), now)
	l.Overwrite(result.Online, result.Offline)

	metrics.ReconciliationsTotal.WithLabelValues("applied").Inc()
	e.logger.Debug().
		Int64("online_seconds", result.Online).
		Int64("offline_seconds", result.Offline).
		Str("state", string(result.Status)).
		Msg("Reconciled with backend")

	return result
}

// Reconcile polls and applies in one step. Callers that share l with other
// goroutines should call Poll and Apply separately under their own lock.
func (e *Engine) Reconcile(ctx context.Context, sess Session, l *ledger.Ledger, now time.Time) (Result, error) {
	wh, err := e.Poll(ctx, sess, now)
	if err != nil {
		return Result{Status: l.Status()}, err
	}
	return e.Apply(l, wh, now), nil
}

// Correct converts backend totals, which include the open segment, into
// accumulator values that exclude it. The live tick adds the open segment
// back, so the display equals the backend total at now.
func Correct(wh api.WorkingHours, state ledger.SessionState, now time.Time) (online, offline int64) {
	online, offline = wh.TotalOnlineSeconds, wh.TotalOfflineSeconds

	switch st := state.(type) {
	case ledger.Online:
		online -= clock.ElapsedSeconds(st.Since, now)
	case ledger.Offline:
		offline -= clock.ElapsedSeconds(st.Since, now)
	}

	if online < 0 {
		online = 0
	}
	if offline < 0 {
		offline = 0
	}
	return online, offline
}
