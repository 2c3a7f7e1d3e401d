package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/ttw/internal/config"
	"github.com/goodtune/ttw/internal/instance"
	"github.com/goodtune/ttw/internal/metrics"
	"github.com/goodtune/ttw/internal/observe"
	"github.com/goodtune/ttw/internal/systemd"
	"github.com/goodtune/ttw/internal/usage"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Start the focus tracker",
	Long: `Start the tracker daemon. It polls the focused window and idle time and
records focus sessions until interrupted. Only one tracker may run at a time.`,
	Args: rangeArgs(0, 0),
	RunE: runTrack,
}

func init() {
	rootCmd.AddCommand(trackCmd)
}

func runTrack(cmd *cobra.Command, args []string) error {
	// Load configuration; the tracker refuses to run on defaults alone
	cfg, err := config.LoadForDaemon(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting ttw tracker")

	// Only one writer may own the session log
	guard := instance.NewFileGuard(cfg.Instance.LockPath)
	if err := guard.Acquire(); err != nil {
		return err
	}
	defer func() {
		if err := guard.Release(); err != nil {
			logger.Error().Err(err).Msg("Failed to release instance lock")
		}
	}()

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Initialize storage
	store, err := openStorage(cfg.Storage, false)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Str("path", cfg.Storage.Path).
		Msg("Storage initialized")

	// Initialize observers
	source := observe.NewCommandSource(cfg.Observer.WindowCommand, nil)
	idle := observe.NewCommandIdleDetector(observe.IdleConfig{
		IdleCommand:      cfg.Observer.IdleCommand,
		PlaybackCommand:  cfg.Observer.PlaybackCommand,
		Threshold:        parseDuration(cfg.Tracker.IdleThreshold, 5*time.Minute),
		PlaybackOverride: cfg.Observer.PlaybackOverride,
	}, nil)

	tracker := usage.NewTracker(store.Sessions(), source, idle, usage.Config{
		PollInterval:    parseDuration(cfg.Tracker.PollInterval, usage.DefaultPollInterval),
		StartupAttempts: cfg.Tracker.StartupAttempts,
		StartupBackoff:  parseDuration(cfg.Tracker.StartupBackoff, usage.DefaultStartupBackoff),
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Metrics Server
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled || sdListeners.Metrics != nil {
		metricsServer = metrics.NewServer(cfg.Metrics.ListenAddress, logger)

		// Use systemd socket-activated listener if available
		if sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}

		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start Metrics Server: %w", err)
		}
		defer func() {
			if err := metricsServer.Stop(); err != nil {
				logger.Error().Err(err).Msg("Error stopping Metrics Server")
			}
		}()
	}

	if err := tracker.Start(ctx); err != nil {
		return err
	}

	// Initialize Summary Scheduler
	if cfg.Summary.DailyTime != "" {
		summaryScheduler, err := usage.NewSummaryScheduler(store.Sessions(), cfg.Summary.DailyTime, cfg.Summary.Top, nil, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize Summary Scheduler: %w", err)
		}
		summaryScheduler.Start()
		defer summaryScheduler.Stop()
	}

	// Notify systemd that the first session is recorded
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	} else {
		logger.Debug().Msg("Sent systemd ready notification")
	}

	pollInterval := parseDuration(cfg.Tracker.PollInterval, usage.DefaultPollInterval)
	go func() {
		healthy := func() bool { return time.Since(tracker.LastTick()) < 10*pollInterval+time.Second }
		if err := systemd.RunWatchdog(ctx, healthy); err != nil {
			logger.Warn().Err(err).Msg("systemd watchdog stopped")
		}
	}()

	err = tracker.Loop(ctx)

	// Notify systemd that we're stopping
	if nerr := systemd.NotifyStopping(); nerr != nil {
		logger.Warn().Err(nerr).Msg("Failed to send systemd stopping notification")
	}

	if err != nil {
		logger.Error().Err(err).Msg("Tracker failed")
		return err
	}

	logger.Info().Msg("ttw tracker stopped")
	return nil
}
