// Package control serves the local JSON API through which views read and
// drive the session owned by the daemon.
package control

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/goodtune/worktimer/internal/api"
	"github.com/goodtune/worktimer/internal/ledger"
	"github.com/goodtune/worktimer/internal/timer"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// SessionService is the session owner the API drives.
type SessionService interface {
	Snapshot() timer.Snapshot
	CheckIn(ctx context.Context, req api.CheckInRequest) (timer.Snapshot, error)
	CheckOut(ctx context.Context, req api.CheckOutRequest) (timer.Snapshot, error)
	SetStatus(ctx context.Context, target ledger.Status, reason string) (timer.Snapshot, error)
	Subscribe(fn func(timer.Snapshot)) func()
}

// RosterView lists the cached team status.
type RosterView interface {
	List() []api.TeamMember
	OnlineCount() int
	LastRefresh() time.Time
}

// Server is the control API HTTP server.
type Server struct {
	service  SessionService
	roster   RosterView
	router   *mux.Router
	server   *http.Server
	listener net.Listener
	logger   zerolog.Logger

	// baseCancel ends every in-flight request context, including event streams.
	baseCancel context.CancelFunc
}

// NewServer creates a control server. roster may be nil when the team poll is disabled.
func NewServer(addr string, service SessionService, roster RosterView, logger zerolog.Logger) *Server {
	router := mux.NewRouter()

	s := &Server{
		service: service,
		roster:  roster,
		router:  router,
		logger:  logger.With().Str("component", "control").Logger(),
	}

	s.setupRoutes()

	baseCtx, baseCancel := context.WithCancel(context.Background())
	s.baseCancel = baseCancel

	s.server = &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
		// No WriteTimeout: the event stream is long-lived.
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(LoggingMiddleware(s.logger))

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/session", s.handleSession).Methods("GET")
	s.router.HandleFunc("/session/check-in", s.handleCheckIn).Methods("POST")
	s.router.HandleFunc("/session/check-out", s.handleCheckOut).Methods("POST")
	s.router.HandleFunc("/session/status", s.handleStatus).Methods("POST")
	s.router.HandleFunc("/session/events", s.handleEvents).Methods("GET")

	s.router.HandleFunc("/roster", s.handleRoster).Methods("GET")
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the control server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting control server")

	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated control listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Control server error")
		}
	}()

	return nil
}

// Stop gracefully stops the control server.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping control server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown waits for handlers; event streams only return once their
	// request context is done.
	s.baseCancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("control server shutdown: %w", err)
	}

	return nil
}
