package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/voicetally/internal/api"
	"github.com/goodtune/voicetally/internal/command"
	"github.com/goodtune/voicetally/internal/config"
	"github.com/goodtune/voicetally/internal/metrics"
	"github.com/goodtune/voicetally/internal/notify"
	"github.com/goodtune/voicetally/internal/presence"
	"github.com/goodtune/voicetally/internal/systemd"
	"github.com/goodtune/voicetally/internal/usage"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start voicetally server",
	Long:  `Start the voicetally server with the event and query API, the daily report scheduler and the metrics endpoint.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
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
		Msg("Starting voicetally")

	loc, err := cfg.Tracking.Location()
	if err != nil {
		return fmt.Errorf("invalid tracking timezone: %w", err)
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
		Int("cache_size", cfg.Storage.CacheSize).
		Msg("Storage initialized")

	// Initialize notifications
	notifier, err := notify.New(cfg.Notify, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize notifier: %w", err)
	}
	relay := notify.NewRelay(notifier, parseDuration(cfg.Notify.Timeout, 10*time.Second), logger)

	logger.Info().Str("type", cfg.Notify.Type).Msg("Notifier initialized")

	// Initialize accounting core
	clock := usage.RealClock{}
	tracker := usage.NewTracker(store.Usage(), loc, logger)
	query := usage.NewQuery(store.Usage())
	generator := usage.NewGenerator(store.Usage(), logger)

	// Reports are dispatched synchronously so a failed push leaves today retryable
	scheduler := usage.NewReportScheduler(generator, store.Reports(), notifier, usage.SchedulerConfig{
		Location:       loc,
		Clock:          clock,
		CatchUpOnStart: cfg.Report.CatchUpOnStart,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Report.Enabled {
		scheduler.Start(ctx)
	}

	presenceHandler := presence.NewHandler(tracker, relay, clock, presence.Config{
		ChannelID:   cfg.Tracking.ChannelID,
		ChannelName: cfg.Tracking.ChannelName,
	}, logger)
	commandHandler := command.NewHandler(query, generator, clock, loc, logger)

	// Initialize API Server
	deps := api.Deps{
		Presence:  presenceHandler,
		Commands:  commandHandler,
		Query:     query,
		Generator: generator,
		Reports:   scheduler,
		Health:    store.Ping,
	}
	if cfg.GitHub.Enabled {
		deps.GitHub = relay
	}

	apiAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.HTTPPort)
	apiServer := api.NewServer(apiAddr, deps, logger)
	if sdListeners.HTTP != nil {
		apiServer.SetListener(sdListeners.HTTP)
	}

	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API Server: %w", err)
	}

	// Initialize Metrics Server
	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	metricsServer := metrics.NewServer(metricsAddr, store.Ping, logger)
	if sdListeners.Metrics != nil {
		metricsServer.SetListener(sdListeners.Metrics)
	}

	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start Metrics Server: %w", err)
	}

	logger.Info().
		Str("api", apiAddr).
		Str("metrics", metricsAddr).
		Str("channel_id", cfg.Tracking.ChannelID).
		Str("timezone", loc.String()).
		Bool("reports", cfg.Report.Enabled).
		Bool("github_relay", cfg.GitHub.Enabled).
		Msg("voicetally startup complete")

	relay.Send(notify.ReadyMessage)

	// Notify systemd that we're ready to serve requests
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	} else {
		logger.Debug().Msg("Sent systemd ready notification")
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan

	logger.Info().Msg("Shutdown signal received, gracefully stopping...")

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Stop accepting events before draining notifications
	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error stopping API Server")
	}

	scheduler.Stop()
	cancel()
	relay.Wait()

	if err := metricsServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping Metrics Server")
	}

	logger.Info().Msg("voicetally stopped")
	return nil
}
