// Package timer owns the open attendance session: it drives the live display
// tick, the periodic backend reconciliation and every state change, and
// publishes snapshots to any number of subscribers.
package timer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goodtune/worktimer/internal/api"
	"github.com/goodtune/worktimer/internal/clock"
	"github.com/goodtune/worktimer/internal/guard"
	"github.com/goodtune/worktimer/internal/ledger"
	"github.com/goodtune/worktimer/internal/metrics"
	"github.com/goodtune/worktimer/internal/reconcile"
	"github.com/goodtune/worktimer/internal/storage"
	"github.com/rs/zerolog"
)

var (
	// ErrNoSession is returned when an operation needs an open session and there is none.
	ErrNoSession = errors.New("timer: no open session")

	// ErrAlreadyCheckedIn is returned by CheckIn and Resume while a session is open.
	ErrAlreadyCheckedIn = errors.New("timer: already checked in")

	// ErrToggleInFlight is returned when a status change is requested while another is pending.
	ErrToggleInFlight = errors.New("timer: status change already in progress")

	// ErrSessionClosed is returned when the session closed while a change was being applied.
	ErrSessionClosed = errors.New("timer: session closed")
)

// Backend is the subset of the attendance API the service drives.
type Backend interface {
	reconcile.HoursSource
	CheckIn(ctx context.Context, req api.CheckInRequest) (*api.Attendance, error)
	CheckOut(ctx context.Context, req api.CheckOutRequest) (*api.Attendance, error)
	ChangeStatus(ctx context.Context, change api.StatusChange) error
	UserStatus(ctx context.Context, userID string) (*api.UserStatus, error)
	WorkFromHomeApproved(ctx context.Context, userID string, date time.Time) (bool, error)
}

// Config holds the service timings.
type Config struct {
	UserID             string
	TickInterval       time.Duration
	ReconcileInterval  time.Duration
	RequestTimeout     time.Duration
	FreshSessionWindow time.Duration
}

// Session describes the open attendance record.
type Session struct {
	AttendanceID string           `json:"attendance_id"`
	UserID       string           `json:"user_id"`
	CheckIn      time.Time        `json:"check_in"`
	WorkLocation api.WorkLocation `json:"work_location"`
}

// Service is the single owner of the session ledger.
type Service struct {
	cfg      Config
	backend  Backend
	sessions storage.SessionStore
	history  storage.HistoryStore
	clock    clock.Clock
	guard    guard.Guard
	engine   *reconcile.Engine
	logger   zerolog.Logger

	// opMu serializes operations that call the backend and then change the ledger.
	opMu     sync.Mutex
	toggling atomic.Bool

	mu      sync.RWMutex
	ledger  *ledger.Ledger
	session *Session

	subMu       sync.Mutex
	subscribers map[uint64]func(Snapshot)
	nextSubID   uint64

	// resumePending is set while the last Resume failed for a reason other
	// than there being no open session.
	resumePending atomic.Bool

	loopMu sync.Mutex
	parent context.Context
	loops  *loopGroup
	retry  *loopGroup
}

// loopGroup is one generation of background loops sharing a cancel func.
type loopGroup struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newLoopGroup(parent context.Context) (*loopGroup, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &loopGroup{cancel: cancel}, ctx
}

func (g *loopGroup) wait() {
	if g != nil {
		g.wg.Wait()
	}
}

// New creates a service with no open session.
func New(cfg Config, backend Backend, store storage.Store, clk clock.Clock, logger zerolog.Logger) *Service {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = 10 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = api.DefaultTimeout
	}
	if clk == nil {
		clk = clock.Real{}
	}

	g := guard.New(cfg.FreshSessionWindow)

	return &Service{
		cfg:         cfg,
		backend:     backend,
		sessions:    store.Sessions(),
		history:     store.History(),
		clock:       clk,
		guard:       g,
		engine:      reconcile.NewEngine(backend, g, cfg.RequestTimeout, logger),
		logger:      logger.With().Str("component", "timer").Logger(),
		ledger:      ledger.New(),
		subscribers: make(map[uint64]func(Snapshot)),
	}
}

// Start enables the tick and reconciliation loops. They run while a session
// is open and until ctx is cancelled or Stop is called. A failed Resume is
// retried on the reconciliation interval while no session is open.
func (s *Service) Start(ctx context.Context) {
	s.loopMu.Lock()
	s.parent = ctx
	if s.retry == nil {
		g, gctx := newLoopGroup(ctx)
		s.retry = g
		g.wg.Add(1)
		go s.every(gctx, &g.wg, s.cfg.ReconcileInterval, s.retryResume)
	}
	s.loopMu.Unlock()

	if s.Session() != nil {
		s.startLoops()
	}

	s.logger.Info().
		Dur("tick_interval", s.cfg.TickInterval).
		Dur("reconcile_interval", s.cfg.ReconcileInterval).
		Msg("Session timer started")
}

// Stop cancels all loops and waits for them to exit.
func (s *Service) Stop() {
	s.loopMu.Lock()
	s.parent = nil
	loops, retry := s.loops, s.retry
	s.loops, s.retry = nil, nil
	s.loopMu.Unlock()

	for _, g := range []*loopGroup{loops, retry} {
		if g != nil {
			g.cancel()
			g.wait()
		}
	}

	s.logger.Info().Msg("Session timer stopped")
}

func (s *Service) startLoops() {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()

	if s.parent == nil || s.loops != nil {
		return
	}

	g, ctx := newLoopGroup(s.parent)
	s.loops = g

	g.wg.Add(2)
	go s.every(ctx, &g.wg, s.cfg.TickInterval, func(context.Context) { s.Tick() })
	go s.every(ctx, &g.wg, s.cfg.ReconcileInterval, func(ctx context.Context) { _ = s.Reconcile(ctx) })
}

// detachLoops cancels the session loops and returns their generation so the
// caller can wait for it without holding opMu.
func (s *Service) detachLoops() *loopGroup {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()

	g := s.loops
	s.loops = nil
	if g != nil {
		g.cancel()
	}
	return g
}

func (s *Service) every(ctx context.Context, wg *sync.WaitGroup, interval time.Duration, fn func(context.Context)) {
	defer wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fn(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) retryResume(ctx context.Context) {
	if !s.resumePending.Load() || s.Session() != nil {
		return
	}
	if _, err := s.Resume(ctx); err != nil {
		if !errors.Is(err, ErrNoSession) {
			s.logger.Warn().Err(err).Msg("Failed to resume session, will retry")
		}
		return
	}
	s.logger.Info().Msg("Session resumed after retry")
}

// Subscribe registers fn to receive every published snapshot. The returned
// function removes the subscription.
func (s *Service) Subscribe(fn func(Snapshot)) func() {
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subscribers, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Service) publish(snap Snapshot) {
	s.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// Session returns a copy of the open session, or nil.
func (s *Service) Session() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil
	}
	sess := *s.session
	return &sess
}

// Snapshot returns the live figures as of now.
func (s *Service) Snapshot() Snapshot {
	now := s.clock.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(now)
}

// Tick publishes the live snapshot. It never changes the ledger.
func (s *Service) Tick() Snapshot {
	snap := s.Snapshot()
	if snap.Status == ledger.StatusClosed {
		return snap
	}

	metrics.WorkingSeconds.Set(float64(snap.WorkingSeconds))
	metrics.OfflineSeconds.Set(float64(snap.OfflineSeconds))
	if snap.Status == ledger.StatusOnline {
		metrics.SessionOnline.Set(1)
	} else {
		metrics.SessionOnline.Set(0)
	}

	s.publish(snap)
	return snap
}

// Reconcile corrects the ledger against the backend totals. Failures are
// logged and leave the ledger unchanged; the returned error is informational.
func (s *Service) Reconcile(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	// A loop stopped while waiting for opMu must not touch a newer session.
	if err := ctx.Err(); err != nil {
		return err
	}

	sess := s.Session()
	if sess == nil {
		return ErrNoSession
	}

	// Totals are as of the query, so the open segment is subtracted up to
	// the same instant and the request latency stays on the display.
	queriedAt := s.clock.Now()
	rs := reconcile.Session{AttendanceID: sess.AttendanceID, CheckIn: sess.CheckIn}
	wh, err := s.engine.Poll(ctx, rs, queriedAt)
	if err != nil {
		return err
	}

	s.mu.Lock()
	result := s.engine.Apply(s.ledger, wh, queriedAt)
	record := s.recordLocked()
	snap := s.snapshotLocked(s.clock.Now())
	s.mu.Unlock()

	if result.Flipped {
		s.persist(ctx, record)
	}
	s.publish(snap)
	return nil
}

// CheckIn opens a new session. The work location is derived from today's
// work-from-home approval unless req sets it.
func (s *Service) CheckIn(ctx context.Context, req api.CheckInRequest) (Snapshot, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.Session() != nil {
		return Snapshot{}, ErrAlreadyCheckedIn
	}

	if req.UserID == "" {
		req.UserID = s.cfg.UserID
	}
	if req.WorkLocation == "" {
		req.WorkLocation = s.workLocation(ctx, req.UserID)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	attendance, err := s.backend.CheckIn(callCtx, req)
	cancel()
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to check in: %w", err)
	}

	now := s.clock.Now()
	sess := &Session{
		AttendanceID: string(attendance.ID),
		UserID:       req.UserID,
		CheckIn:      now,
		WorkLocation: req.WorkLocation,
	}
	if attendance.WorkLocation != "" {
		sess.WorkLocation = attendance.WorkLocation
	}

	s.mu.Lock()
	s.ledger = ledger.New()
	s.ledger.Initialize(now)
	s.session = sess
	record := s.recordLocked()
	snap := s.snapshotLocked(now)
	s.mu.Unlock()

	s.persist(ctx, record)
	s.resumePending.Store(false)

	s.logger.Info().
		Str("attendance_id", sess.AttendanceID).
		Str("work_location", string(sess.WorkLocation)).
		Msg("Checked in")

	s.startLoops()
	s.publish(snap)
	return snap, nil
}

func (s *Service) workLocation(ctx context.Context, userID string) api.WorkLocation {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	approved, err := s.backend.WorkFromHomeApproved(ctx, userID, s.clock.Now())
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to fetch work-from-home status, assuming office")
		return api.LocationOffice
	}
	if approved {
		return api.LocationWorkFromHome
	}
	return api.LocationOffice
}

// CheckOut closes the session, records its totals in the daily history and
// returns the final snapshot.
func (s *Service) CheckOut(ctx context.Context, req api.CheckOutRequest) (Snapshot, error) {
	snap, loops, err := s.checkOut(ctx, req)
	if err != nil {
		return Snapshot{}, err
	}
	// The loops may be waiting on opMu, so wait only after releasing it.
	loops.wait()
	return snap, nil
}

func (s *Service) checkOut(ctx context.Context, req api.CheckOutRequest) (Snapshot, *loopGroup, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	sess := s.Session()
	if sess == nil {
		return Snapshot{}, nil, ErrNoSession
	}

	req.AttendanceID = sess.AttendanceID
	if req.UserID == "" {
		req.UserID = sess.UserID
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	_, err := s.backend.CheckOut(callCtx, req)
	cancel()
	if err != nil {
		return Snapshot{}, nil, fmt.Errorf("failed to check out: %w", err)
	}

	now := s.clock.Now()
	s.mu.Lock()
	final := s.snapshotLocked(now)
	s.ledger.Teardown()
	s.session = nil
	closed := s.snapshotLocked(now)
	s.mu.Unlock()

	loops := s.detachLoops()

	date := sess.CheckIn.Format(storage.DateFormat)
	if err := s.history.IncrementDaily(ctx, date, sess.UserID, final.WorkingSeconds, final.OfflineSeconds); err != nil {
		s.logger.Warn().Err(err).Str("attendance_id", sess.AttendanceID).Msg("Failed to record daily totals")
	}
	if err := s.sessions.Delete(ctx, sess.UserID); err != nil {
		s.logger.Warn().Err(err).Str("attendance_id", sess.AttendanceID).Msg("Failed to delete session record")
	}

	metrics.WorkingSeconds.Set(0)
	metrics.OfflineSeconds.Set(0)
	metrics.SessionOnline.Set(0)

	s.logger.Info().
		Str("attendance_id", sess.AttendanceID).
		Int64("online_seconds", final.WorkingSeconds).
		Int64("offline_seconds", final.OfflineSeconds).
		Msg("Checked out")

	s.publish(closed)

	final.Status = ledger.StatusClosed
	return final, loops, nil
}

// SetStatus toggles the session to target. The backend is told first and
// the ledger changes only once it accepts.
func (s *Service) SetStatus(ctx context.Context, target ledger.Status, reason string) (Snapshot, error) {
	if target != ledger.StatusOnline && target != ledger.StatusOffline {
		return Snapshot{}, ledger.ErrInvalidStatus
	}

	if !s.toggling.CompareAndSwap(false, true) {
		metrics.TogglesTotal.WithLabelValues(string(target), "in_flight").Inc()
		return Snapshot{}, ErrToggleInFlight
	}
	defer s.toggling.Store(false)

	s.opMu.Lock()
	defer s.opMu.Unlock()

	sess := s.Session()
	if sess == nil {
		return Snapshot{}, ErrNoSession
	}

	current := s.Snapshot()
	if current.Status == target {
		metrics.TogglesTotal.WithLabelValues(string(target), "unchanged").Inc()
		return current, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	err := s.backend.ChangeStatus(callCtx, api.StatusChange{
		AttendanceID: sess.AttendanceID,
		IsOnline:     target == ledger.StatusOnline,
		Reason:       reason,
	})
	cancel()
	if err != nil {
		metrics.TogglesTotal.WithLabelValues(string(target), "failed").Inc()
		return Snapshot{}, fmt.Errorf("failed to change status: %w", err)
	}

	now := s.clock.Now()
	s.mu.Lock()
	_, err = s.ledger.Apply(target, now)
	record := s.recordLocked()
	snap := s.snapshotLocked(now)
	s.mu.Unlock()

	if errors.Is(err, ledger.ErrClosed) {
		return Snapshot{}, ErrSessionClosed
	}
	if err != nil {
		return Snapshot{}, err
	}

	s.persist(ctx, record)
	metrics.TogglesTotal.WithLabelValues(string(target), "applied").Inc()

	s.logger.Info().
		Str("attendance_id", sess.AttendanceID).
		Str("state", string(target)).
		Str("reason", reason).
		Msg("Status changed")

	s.publish(snap)
	return snap, nil
}

// Resume restores a session after a restart from the persisted record and
// the backend's view of the user. Accumulators start at zero until the next
// reconciliation fills them in.
func (s *Service) Resume(ctx context.Context) (Snapshot, error) {
	snap, err := s.resume(ctx)
	s.resumePending.Store(err != nil && !errors.Is(err, ErrNoSession) && !errors.Is(err, ErrAlreadyCheckedIn))
	return snap, err
}

func (s *Service) resume(ctx context.Context) (Snapshot, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.Session() != nil {
		return Snapshot{}, ErrAlreadyCheckedIn
	}

	userID := s.cfg.UserID
	record, err := s.sessions.Load(ctx, userID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return Snapshot{}, fmt.Errorf("failed to load session record: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	status, err := s.backend.UserStatus(callCtx, userID)
	cancel()
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to fetch user status: %w", err)
	}

	if !status.Open() {
		if record != nil {
			if err := s.sessions.Delete(ctx, userID); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to delete stale session record")
			}
			s.logger.Info().Str("attendance_id", record.AttendanceID).Msg("Dropped stale session record")
		}
		return Snapshot{}, ErrNoSession
	}

	sess := resumedSession(userID, status, record, s.clock.Now())
	lastChange := sess.CheckIn
	switch {
	case status.LastStatusChange != nil:
		lastChange = *status.LastStatusChange
	case record != nil && !record.LastStatusChange.IsZero():
		lastChange = record.LastStatusChange
	}

	l := ledger.New()
	if err := l.Resume(ledger.StatusFromOnline(status.IsOnline), lastChange); err != nil {
		return Snapshot{}, err
	}

	now := s.clock.Now()
	s.mu.Lock()
	s.ledger = l
	s.session = sess
	newRecord := s.recordLocked()
	snap := s.snapshotLocked(now)
	s.mu.Unlock()

	s.persist(ctx, newRecord)

	s.logger.Info().
		Str("attendance_id", sess.AttendanceID).
		Str("state", string(snap.Status)).
		Time("last_status_change", lastChange).
		Msg("Resumed session")

	s.startLoops()
	s.publish(snap)
	return snap, nil
}

func resumedSession(userID string, status *api.UserStatus, record *storage.SessionRecord, now time.Time) *Session {
	sess := &Session{
		AttendanceID: string(status.AttendanceID),
		UserID:       userID,
		WorkLocation: api.LocationOffice,
	}
	if status.CheckIn != nil {
		sess.CheckIn = *status.CheckIn
	}
	if record != nil {
		if sess.AttendanceID == "" {
			sess.AttendanceID = record.AttendanceID
		}
		if sess.CheckIn.IsZero() {
			sess.CheckIn = record.CheckIn
		}
		if record.WorkLocation != "" {
			sess.WorkLocation = api.WorkLocation(record.WorkLocation)
		}
	}
	if sess.CheckIn.IsZero() {
		sess.CheckIn = now
	}
	return sess
}

func (s *Service) recordLocked() storage.SessionRecord {
	if s.session == nil {
		return storage.SessionRecord{}
	}
	return storage.SessionRecord{
		AttendanceID:     s.session.AttendanceID,
		UserID:           s.session.UserID,
		CheckIn:          s.session.CheckIn,
		WorkLocation:     string(s.session.WorkLocation),
		Status:           string(s.ledger.Status()),
		LastStatusChange: s.ledger.LastChange(),
		UpdatedAt:        s.clock.Now(),
	}
}

func (s *Service) persist(ctx context.Context, record storage.SessionRecord) {
	if record.UserID == "" {
		return
	}
	if err := s.sessions.Save(ctx, record); err != nil {
		s.logger.Warn().Err(err).Str("attendance_id", record.AttendanceID).Msg("Failed to persist session record")
	}
}
