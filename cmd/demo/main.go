package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"profilebus/internal/config"
	"profilebus/internal/events"
	"profilebus/internal/logging"
)

func main() {
	configPath := flag.String("config", os.Getenv("PROFILEBUS_CONFIG"), "path to YAML config")
	delay := flag.Duration("delay", 0, "pause between events (overrides demo.delay)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := logging.New("info", true, os.Stderr)
		boot.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Pretty, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pub, err := events.NewPublisher(ctx, cfg.Redis.ConnOptions(), &logger)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.Redis.ConnOptions().Addr()).Msg("failed to connect to redis, make sure it is running")
	}
	defer pub.Close()

	d := &demo{pub: pub, delay: cfg.Demo.Delay, logger: &logger}
	if *delay > 0 {
		d.delay = *delay
	}

	logger.Info().Msg("publishing demonstration events, run the processor in another terminal to see them handled")
	if err := d.run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info().Msg("demo interrupted")
			return
		}
		logger.Error().Err(err).Msg("demo failed")
		pub.Close()
		os.Exit(1)
	}
	logger.Info().Msg("demo completed")
}
