package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/modkernel/adapter/cli"
	"github.com/felixgeelhaar/modkernel/internal/app"
	"github.com/felixgeelhaar/modkernel/pkg/config"
	"github.com/felixgeelhaar/modkernel/pkg/observability"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		return 1
	}

	logCfg := cfg.Log()
	logCfg.ServiceVersion = cli.Version
	logger, closeLog, err := observability.NewLogger(logCfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer closeLog.Close()
	slog.SetDefault(logger)
	cli.SetLogger(logger)

	container, err := app.NewContainer(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.Error("failed to initialize kernel", "error", err)
		return 1
	}
	defer func() {
		if err := container.Close(context.Background()); err != nil {
			logger.Warn("kernel closed with errors", "error", err)
		}
	}()
	cli.SetContainer(container)

	if err := cli.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
