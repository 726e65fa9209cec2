package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"profilebus/internal/config"
	"profilebus/internal/database"
	"profilebus/internal/events"
	"profilebus/internal/logging"
	"profilebus/internal/metrics"
	"profilebus/internal/notify"
	"profilebus/internal/processor"
)

func main() {
	configPath := flag.String("config", os.Getenv("PROFILEBUS_CONFIG"), "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := logging.New("info", true, os.Stderr)
		boot.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Pretty, os.Stdout)
	logger.Info().Msg("starting event processor")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pub, err := events.NewPublisher(ctx, cfg.Redis.ConnOptions(), &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize event processor, make sure Redis is running")
	}
	sub, err := events.NewSubscriber(ctx, cfg.Redis.ConnOptions(), cfg.Subscriber.Options(), &logger)
	if err != nil {
		_ = pub.Close()
		logger.Fatal().Err(err).Msg("failed to initialize event processor, make sure Redis is running")
	}
	proc := processor.New(pub, &logger)
	logger.Info().Msg("event processor initialized")

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
	}

	sink := buildSink(cfg.Notifications, &logger)
	if err := sub.SubscribeTopics(ctx, routes(proc, sink, &logger)); err != nil {
		_ = sub.Close()
		_ = pub.Close()
		logger.Fatal().Err(err).Msg("failed to subscribe")
	}
	logger.Info().Msg("subscribed to all topics, listening for events")

	g, gctx := errgroup.WithContext(ctx)
	if port := cfg.Monitoring.HealthCheckPort; port > 0 {
		g.Go(func() error { return serve(gctx, "health", port, healthMux(pub, sub), &logger) })
	}
	if cfg.Monitoring.PrometheusEnabled && cfg.Monitoring.PrometheusPort > 0 {
		g.Go(func() error { return serve(gctx, "metrics", cfg.Monitoring.PrometheusPort, metricsMux(), &logger) })
	}
	if cfg.Backup.Enabled {
		db, err := database.NewDB(cfg.Database.Path, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("scheduled backups disabled")
		} else {
			defer db.Close()
			backups := database.NewBackupService(db, cfg.Backup, &logger)
			g.Go(func() error {
				backups.Start(gctx)
				return nil
			})
		}
	}

	<-gctx.Done()
	logger.Info().Msg("shutting down event processor")

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Subscriber.StopTimeout+time.Second)
	defer cancel()
	_ = sub.Stop(stopCtx)
	if err := pub.Close(); err != nil {
		logger.Warn().Err(err).Msg("failed to close publisher")
	}
	if err := sub.Close(); err != nil {
		logger.Warn().Err(err).Msg("failed to close subscriber")
	}
	serverErr := g.Wait()
	if serverErr != nil {
		logger.Error().Err(serverErr).Msg("server error")
	}

	logger.Info().Msg("event processor stopped")
	logger.Info().Interface("stats", proc.Stats()).Msg("final stats")
	if serverErr != nil {
		os.Exit(1)
	}
}

// buildSink logs every notification and, when configured, posts it to
// Telegram. Delivery is bounded so handlers are never held for long.
func buildSink(cfg config.NotificationsConfig, logger *zerolog.Logger) notify.Sink {
	sinks := notify.Multi{notify.NewLogSink(logger)}
	if cfg.Telegram.Enabled() {
		bot, err := notify.NewTelegramBot(cfg.Telegram.BotToken, cfg.Telegram.Debug, cfg.Timeout)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram notifications disabled")
		} else {
			sinks = append(sinks, notify.NewTelegramSink(bot, cfg.Telegram.ChatID))
			logger.Info().Int64("chat_id", cfg.Telegram.ChatID).Msg("telegram notifications enabled")
		}
	}
	return notify.NewBounded(sinks, notify.BoundedOptions{
		MaxOpen:       cfg.MaxOpen,
		Timeout:       cfg.Timeout,
		RatePerSecond: cfg.RatePerSecond,
		Burst:         cfg.Burst,
	}, logger)
}
