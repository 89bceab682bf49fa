package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cropadvisor/internal/advisor"
	"cropadvisor/internal/alert"
	"cropadvisor/internal/bus"
	"cropadvisor/internal/channel"
	"cropadvisor/internal/config"
	"cropadvisor/internal/metrics"
	"cropadvisor/internal/service"
	"cropadvisor/internal/state"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "cropadvisor",
		Short: "Crop Advisor: bilingual farming advice over Telegram and WhatsApp",
		Long:  "Crop Advisor answers farmers' crop and fertilizer questions over Telegram and WhatsApp, diagnoses crop diseases from photos, and pushes periodic weather alerts to subscribed chats.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.cropadvisor/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(gatewayCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(cropdataCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func setupLogger(cfg *config.Config) {
	level := slog.LevelInfo
	switch cfg.General.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	out := os.Stderr
	if cfg.General.LogFile != "" {
		f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			logger.Warn("cannot open log file, logging to stderr", "path", cfg.General.LogFile, "err", err)
		} else {
			out = f
		}
	}

	logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists: %s", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and store summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}

			fmt.Printf("cropadvisor v%s\n", version)
			fmt.Printf("telegram: enabled=%v\n", cfg.Channels.Telegram.Enabled)
			fmt.Printf("whatsapp: enabled=%v webhook=%s\n", cfg.Channels.WhatsApp.Enabled, cfg.Channels.WhatsApp.WebhookPath)
			fmt.Printf("alerts:   enabled=%v interval=%dm\n", cfg.Alerts.Enabled, cfg.Alerts.IntervalMinutes)

			store, err := state.Open(cfg.Store.DBPath, logger)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer store.Close()

			subs, err := store.LoadSubscriptions(cmd.Context())
			if err != nil {
				return err
			}
			crops, err := store.ListCrops(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("store:    %d subscriptions, %d crop records (%s)\n", len(subs), len(crops), cfg.Store.DBPath)
			return nil
		},
	}
}

func cropdataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cropdata",
		Short: "Manage the crop data records used by weather alerts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Import crop records from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			store, err := state.Open(cfg.Store.DBPath, logger)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer store.Close()

			n, err := store.ImportCropsFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			logger.Info("crop data imported", "records", n, "file", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored crop records",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			store, err := state.Open(cfg.Store.DBPath, logger)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer store.Close()

			crops, err := store.ListCrops(cmd.Context())
			if err != nil {
				return err
			}
			for _, c := range crops {
				fmt.Printf("%s\t%s\t%s\n", c.Location, c.Crop, c.CropHindi)
			}
			return nil
		},
	})

	return cmd
}

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the advisory gateway (channels, advisor loop, alert scheduler)",
		RunE:  runGateway,
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Message bus (closed during graceful shutdown below)
	messageBus := bus.New(100, logger)

	store, err := state.Open(cfg.Store.DBPath, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	sessionMap, err := store.LoadSessions(ctx)
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}
	subMap, err := store.LoadSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("load subscriptions: %w", err)
	}
	sessions := advisor.NewSessionStore(sessionMap, store, logger)
	registry := advisor.NewSubscriptionRegistry(subMap, store, logger)
	logger.Info("state restored", "sessions", len(sessionMap), "subscriptions", len(subMap))

	recommender := service.NewRecommendClient(service.RecommendClientConfig{
		BaseURL: cfg.Services.Recommend.BaseURL,
		Timeout: time.Duration(cfg.Services.Recommend.TimeoutSeconds) * time.Second,
		Logger:  logger,
	})
	visionClient := service.NewVisionClient(service.VisionClientConfig{
		APIBase: cfg.Services.Vision.APIBase,
		APIKey:  cfg.Services.Vision.APIKey,
		Model:   cfg.Services.Vision.Model,
		Logger:  logger,
	})
	weatherClient := service.NewWeatherClient(service.WeatherClientConfig{
		APIBase: cfg.Services.Weather.APIBase,
		APIKey:  cfg.Services.Weather.APIKey,
		Logger:  logger,
	})

	loop := advisor.NewLoop(advisor.LoopConfig{
		Bus:       messageBus,
		Sessions:  sessions,
		Registry:  registry,
		Recommend: recommender,
		Vision:    visionClient,
		Logger:    logger,
	})
	go loop.Run(ctx)

	if cfg.Alerts.Enabled {
		scheduler, err := alert.NewScheduler(alert.SchedulerConfig{
			Registry:        registry,
			Weather:         weatherClient,
			Crops:           store,
			Bus:             messageBus,
			IntervalMinutes: cfg.Alerts.IntervalMinutes,
			Concurrency:     cfg.Alerts.Concurrency,
			Logger:          logger,
		})
		if err != nil {
			return err
		}
		go func() {
			if err := scheduler.Start(ctx); err != nil {
				logger.Error("alert scheduler error", "err", err)
			}
		}()
	} else {
		logger.Info("weather alerts disabled")
	}

	var telegramCh *channel.Telegram
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token != "" {
		telegramCh = channel.NewTelegram(channel.TelegramConfig{
			Token:     cfg.Channels.Telegram.Token,
			ParseMode: cfg.Channels.Telegram.ParseMode,
			Logger:    logger,
		})
		go func() {
			if err := telegramCh.Start(ctx, messageBus); err != nil {
				logger.Error("telegram channel error", "err", err)
			}
		}()
		logger.Info("telegram channel enabled")
	} else {
		logger.Info("telegram channel disabled")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Collector.Handler())

	var whatsappCh *channel.WhatsApp
	if cfg.Channels.WhatsApp.Enabled {
		whatsappCh = channel.NewWhatsApp(channel.WhatsAppChannelConfig{
			Config: cfg.Channels.WhatsApp,
			Logger: logger,
		})
		if err := whatsappCh.Start(ctx, messageBus); err != nil {
			return fmt.Errorf("whatsapp channel: %w", err)
		}
		mux.Handle(cfg.Channels.WhatsApp.WebhookPath, whatsappCh.Handler())
		logger.Info("whatsapp channel enabled")
	} else {
		logger.Info("whatsapp channel disabled")
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port),
		Handler: mux,
	}
	go func() {
		logger.Info("gateway HTTP listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("gateway HTTP error", "err", err)
		}
	}()

	logger.Info("gateway started. Press Ctrl+C to stop.")

	// Block until shutdown signal
	<-ctx.Done()
	logger.Info("shutting down gateway...")

	// Graceful shutdown with timeout
	const shutdownTimeout = 10 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		if telegramCh != nil {
			telegramCh.Stop()
		}
		if whatsappCh != nil {
			whatsappCh.Stop()
		}
		srv.Shutdown(shutdownCtx)
		messageBus.Close()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		shutdownErr = fmt.Errorf("shutdown timed out")
	}

	return shutdownErr
}
