package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/worktimer/internal/api"
	"github.com/goodtune/worktimer/internal/config"
	"github.com/goodtune/worktimer/internal/control"
	"github.com/goodtune/worktimer/internal/history"
	"github.com/goodtune/worktimer/internal/metrics"
	"github.com/goodtune/worktimer/internal/roster"
	"github.com/goodtune/worktimer/internal/storage"
	"github.com/goodtune/worktimer/internal/storage/memory"
	"github.com/goodtune/worktimer/internal/storage/redis"
	"github.com/goodtune/worktimer/internal/systemd"
	"github.com/goodtune/worktimer/internal/timer"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// historyPruneTime is the local time of day old daily totals are pruned.
const historyPruneTime = "03:00"

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the worktimer daemon",
	Long:  `Run the session timer, backend reconciliation, optional team roster poll, control API and metrics endpoints.`,
	RunE:  runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Str("user_id", cfg.Backend.UserID).
		Msg("Starting worktimer")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to get systemd listeners")
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Initialize storage
	store, err := openStorage(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().Str("type", cfg.Storage.Type).Msg("Storage initialized")

	// Initialize backend client
	requestTimeout := parseDuration(cfg.Backend.RequestTimeout, api.DefaultTimeout)
	client, err := api.NewClient(api.Config{
		BaseURL: cfg.Backend.BaseURL,
		Token:   cfg.Backend.Token,
		Timeout: requestTimeout,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize backend client")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize session timer
	service := timer.New(timer.Config{
		UserID:             cfg.Backend.UserID,
		TickInterval:       parseDuration(cfg.Timer.TickInterval, time.Second),
		ReconcileInterval:  parseDuration(cfg.Timer.ReconcileInterval, 10*time.Second),
		RequestTimeout:     requestTimeout,
		FreshSessionWindow: parseDuration(cfg.Timer.FreshSessionWindow, 5*time.Minute),
	}, client, store, nil, logger)

	service.Start(ctx)
	defer service.Stop()

	// Pick up a session left open by a previous run or another device
	if snap, err := service.Resume(ctx); err != nil {
		if errors.Is(err, timer.ErrNoSession) {
			logger.Info().Msg("No open session to resume")
		} else {
			logger.Warn().Err(err).Msg("Failed to resume session, retrying on the reconcile interval")
		}
	} else {
		logger.Info().
			Str("attendance_id", snap.AttendanceID).
			Str("state", string(snap.Status)).
			Msg("Session resumed")
	}

	// Initialize team roster
	var rosterView control.RosterView
	if cfg.Roster.Enabled {
		teamRoster, err := roster.New(client, roster.Config{
			PollInterval:   parseDuration(cfg.Roster.PollInterval, 15*time.Second),
			RequestTimeout: requestTimeout,
			CacheSize:      cfg.Roster.CacheSize,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize team roster")
		}
		teamRoster.Start()
		defer teamRoster.Stop()
		rosterView = teamRoster
	}

	// Initialize history retention
	retention, err := history.NewRetentionScheduler(store.History(), cfg.Storage.HistoryRetentionDays, historyPruneTime, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize history retention")
	}
	retention.Start()
	defer retention.Stop()

	// Start control server
	controlServer := control.NewServer(
		fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.ControlPort),
		service,
		rosterView,
		logger,
	)
	if sdListeners.Control != nil {
		controlServer.SetListener(sdListeners.Control)
	}
	if err := controlServer.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start control server")
	}

	// Start metrics server
	metricsServer := metrics.NewServer(
		fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort),
		logger,
	)
	if sdListeners.Metrics != nil {
		metricsServer.SetListener(sdListeners.Metrics)
	}
	if err := metricsServer.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start metrics server")
	}

	logger.Info().Msg("worktimer started successfully")

	// Notify systemd that we're ready
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	} else {
		logger.Debug().Msg("Sent systemd ready notification")
	}

	var watchdog <-chan time.Time
	if interval := systemd.WatchdogInterval(); interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		watchdog = ticker.C
	}

	// Wait for signals (shutdown or forced reconciliation)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

loop:
	for {
		select {
		case <-watchdog:
			_ = systemd.NotifyWatchdog()
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				logger.Info().Msg("SIGHUP received, reconciling with backend...")
				if err := service.Reconcile(ctx); err != nil {
					logger.Warn().Err(err).Msg("Forced reconciliation did not apply")
				}
				continue
			}
			logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received, gracefully stopping...")
			break loop
		}
	}

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	if err := controlServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping control server")
	}
	if err := metricsServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping metrics server")
	}

	logger.Info().Msg("worktimer stopped")
	return nil
}

// openStorage opens the configured storage backend
func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "", "redis":
		return redis.Open(cfg.Redis, cfg.HistoryRetentionDays)
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
