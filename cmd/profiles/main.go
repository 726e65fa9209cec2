package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"profilebus/internal/config"
	"profilebus/internal/database"
	"profilebus/internal/events"
	"profilebus/internal/logging"
	"profilebus/internal/profiles"
)

func main() {
	configPath := flag.String("config", os.Getenv("PROFILEBUS_CONFIG"), "path to YAML config")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	// operator output goes to stdout; logs stay on stderr
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Pretty, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(runCLI(ctx, cfg, flag.Args(), &logger))
}

func runCLI(ctx context.Context, cfg *config.Config, args []string, logger *zerolog.Logger) int {
	if len(args) > 0 && args[0] == "ping" {
		a := &app{cfg: cfg, out: os.Stdout, logger: logger}
		return exitCode(a.run(ctx, args), logger)
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open database")
		return 1
	}
	defer db.Close()

	// Profile events are best effort: without Redis the store still works.
	var publisher profiles.EventPublisher
	dialCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	pub, err := events.NewPublisher(dialCtx, cfg.Redis.ConnOptions(), logger)
	cancel()
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, profile events will not be published")
	} else {
		defer pub.Close()
		publisher = pub
	}

	a := &app{
		cfg:    cfg,
		db:     db,
		svc:    profiles.NewService(db, publisher, logger),
		out:    os.Stdout,
		logger: logger,
	}
	return exitCode(a.run(ctx, args), logger)
}

func exitCode(err error, logger *zerolog.Logger) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprint(os.Stderr, usage)
		return 2
	default:
		logger.Error().Err(err).Msg("command failed")
		return 1
	}
}
