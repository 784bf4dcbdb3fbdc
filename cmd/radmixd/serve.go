package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"

	"github.com/radmix/compositor/internal/compositor"
	"github.com/radmix/compositor/internal/config"
	"github.com/radmix/compositor/internal/logging"
	"github.com/radmix/compositor/internal/metrics"
	"github.com/radmix/compositor/internal/notify"
	"github.com/radmix/compositor/internal/segstore"
	"github.com/radmix/compositor/internal/xerrors"
)

func serveCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the compositor engine and serve mixed audio to adapters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	settings, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logging.Init(logging.Options{
		LogDir:     settings.Logging.Dir,
		LogFile:    settings.Logging.File,
		Level:      logging.ParseLevel(settings.Logging.Level),
		MaxSizeMB:  settings.Logging.MaxSizeMB,
		MaxBackups: settings.Logging.MaxBackups,
		MaxAgeDays: settings.Logging.MaxAgeDays,
	})

	if settings.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{Dsn: settings.Sentry.DSN}); err != nil {
			logging.Warn("failed to initialize Sentry", "error", err)
		} else {
			xerrors.SetTelemetryReporter(xerrors.NewSentryReporter(true))
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := segstore.New(settings.SegStore.CacheLimitBytes)

	registry := compositor.NewRegistry(compositor.Options{
		BufSize:         settings.Compositor.BufSize,
		LookaheadSec:    settings.Compositor.LookaheadSec,
		PollInterval:    time.Duration(settings.Compositor.PollIntervalMs) * time.Millisecond,
		ActiveThreshold: settings.Compositor.ActiveThreshold,
	})

	monitor, err := compositor.NewHealthMonitor(registry, store, 30*time.Second)
	if err != nil {
		return fmt.Errorf("starting health monitor: %w", err)
	}
	go monitor.Run(ctx)

	if settings.MQTT.Enabled {
		notifier := notify.NewNotifier(notify.Config{
			Broker:      settings.MQTT.Broker,
			Username:    settings.MQTT.Username,
			Password:    settings.MQTT.Password,
			TopicPrefix: settings.MQTT.TopicPrefix,
		})
		if err := notifier.Connect(ctx); err != nil {
			logging.Warn("failed to connect to MQTT broker at startup", "error", err)
		}
		defer notifier.Disconnect()

		notify.AddEventHook(func(ev notify.Event) {
			if err := notifier.Publish(ctx, ev); err != nil {
				logging.Warn("failed to publish lifecycle event", "type", ev.Type, "composition", ev.CompositionID, "error", err)
			}
		})
	}

	var metricsServer *http.Server
	if settings.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{Addr: settings.Metrics.ListenAddr, Handler: mux}
		go func() {
			logging.Info("metrics endpoint listening", "addr", settings.Metrics.ListenAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logging.Error("metrics server stopped", "error", err)
			}
		}()
	}

	logging.Info("radmixd started")
	<-ctx.Done()
	logging.Info("radmixd shutting down")

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}

	return nil
}
