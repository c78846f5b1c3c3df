package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/goodtune/activityd/internal/api"
	"github.com/goodtune/activityd/internal/config"
	"github.com/goodtune/activityd/internal/dispatch"
	"github.com/goodtune/activityd/internal/hook"
	"github.com/goodtune/activityd/internal/idle"
	"github.com/goodtune/activityd/internal/loginctl"
	"github.com/goodtune/activityd/internal/metrics"
	"github.com/goodtune/activityd/internal/platform"
	"github.com/goodtune/activityd/internal/settings"
	"github.com/goodtune/activityd/internal/storage"
	"github.com/goodtune/activityd/internal/storage/memory"
	"github.com/goodtune/activityd/internal/storage/redis"
	"github.com/goodtune/activityd/internal/storage/sqlite"
	"github.com/goodtune/activityd/internal/systemd"
	"github.com/goodtune/activityd/internal/tracking"
	"github.com/goodtune/activityd/internal/usage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the activity tracking daemon",
	Long:  `Log the configured user in, track activity until SIGINT or SIGTERM, then close every open span.`,
	RunE:  runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting activityd")

	initialDelay, period, hookPoll, err := cfg.Idle.Durations()
	if err != nil {
		return err
	}

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Initialize storage
	store, err := openStorage(cfg.Storage)
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
		Msg("Storage initialized")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start the login session
	service := tracking.NewService(store.Usage(), logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := service.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to close usage records")
		}
	}()

	if _, err := service.Login(ctx, cfg.Tracking.UserID); err != nil {
		return fmt.Errorf("failed to start login session: %w", err)
	}
	if _, err := service.Start(usage.CategoryFocus); err != nil {
		return fmt.Errorf("failed to start focus tracking: %w", err)
	}

	// Idle detection runs its transitions on a single loop goroutine
	loop := dispatch.NewLoop(dispatch.DefaultBuffer, logger)
	defer loop.Stop()

	source := platform.NewIdleTimeSource()
	if closer, ok := source.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	detector, err := idle.New(
		idle.Config{InitialDelay: initialDelay, Period: period},
		idle.Deps{
			Source:    source,
			Threshold: settings.NewFile(cfg.Settings.Path),
			Installer: hook.NewPollInstaller(source, hookPoll, logger),
			Poster:    loop,
			Logger:    logger,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to initialize idle detector: %w", err)
	}
	defer func() {
		if err := detector.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close idle detector")
		}
	}()

	service.Attach(detector)

	logger.Info().
		Dur("initial_delay", initialDelay).
		Dur("period", period).
		Str("settings", cfg.Settings.Path).
		Msg("Idle detector started")

	// Initialize retention scheduler
	retention, err := usage.NewRetentionScheduler(store.Usage(), cfg.Tracking.PruneTime, cfg.Tracking.RetentionDays, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize retention scheduler: %w", err)
	}
	retention.Start()
	defer retention.Stop()

	// Initialize Metrics Server
	if cfg.Metrics.Enabled {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Metrics.BindAddress, cfg.Metrics.Port)
		metricsServer := metrics.NewServer(metricsAddr, logger)
		if sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}
		metricsServer.Handle("/api/", api.NewRouter(
			api.NewUsageHandler(store.Usage(), logger),
			api.NewStatusHandler(service.Journal(), detector),
			logger,
		))
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			if err := metricsServer.Stop(); err != nil {
				logger.Error().Err(err).Msg("Error stopping Metrics Server")
			}
		}()
	}

	if cfg.Tracking.WatchLocks && runtime.GOOS == "linux" {
		go func() {
			if err := loginctl.WatchLocks(ctx, "", service, logger); err != nil {
				logger.Warn().Err(err).Msg("Session lock tracking unavailable")
			}
		}()
	}

	go systemd.RunWatchdog(ctx, logger)

	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	}

	logger.Info().
		Int64("user_id", service.UserID()).
		Str("login_id", service.SessionID()).
		Msg("activityd startup complete")

	<-ctx.Done()

	logger.Info().Msg("Shutdown signal received, gracefully stopping...")

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	// Deferred calls stop idle detection before the tracking shutdown
	// closes every open span.
	return nil
}

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "sqlite", "":
		return sqlite.Open(cfg.Path)
	case "redis":
		return redis.Open(cfg.Redis)
	case "memory":
		return memory.Open(cfg.Memory.Size)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	// Set log level
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

	// Set output format
	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
