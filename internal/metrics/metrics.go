package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Backend API metrics
	BackendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worktimer_backend_requests_total",
			Help: "Total requests made to the attendance backend",
		},
		[]string{"endpoint", "result"},
	)

	BackendRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worktimer_backend_request_duration_seconds",
			Help:    "Attendance backend request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Reconciliation metrics
	ReconciliationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worktimer_reconciliations_total",
			Help: "Reconciliation polls by outcome (applied, suppressed, failed, skipped)",
		},
		[]string{"result"},
	)

	RemoteStateCorrections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "worktimer_remote_state_corrections_total",
			Help: "Times the backend reported a different online state than the local ledger",
		},
	)

	// Toggle metrics
	TogglesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worktimer_toggles_total",
			Help: "Manual status toggles by target state and outcome",
		},
		[]string{"state", "result"},
	)

	// Session metrics
	WorkingSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worktimer_working_seconds",
			Help: "Working (online) seconds of the open session",
		},
	)

	OfflineSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worktimer_offline_seconds",
			Help: "Offline seconds of the open session",
		},
	)

	SessionOnline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worktimer_session_online",
			Help: "1 while the open session is online, 0 otherwise",
		},
	)

	// Roster metrics
	RosterUsersOnline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worktimer_roster_users_online",
			Help: "Number of team members currently online",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		BackendRequestsTotal,
		BackendRequestDuration,
		ReconciliationsTotal,
		RemoteStateCorrections,
		TogglesTotal,
		WorkingSeconds,
		OfflineSeconds,
		SessionOnline,
		RosterUsersOnline,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
