// Command accessctl administers permission overrides, ownership and the access
// log from a shell.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/estatecrm/estatecrm/cmd/accessctl/cli"
	"github.com/estatecrm/estatecrm/internal/app"
	"github.com/estatecrm/estatecrm/jobs"
)

func main() {
	os.Exit(run())
}

func run() int {
	if app.InTestMode() {
		return cli.ExitOK
	}
	if len(os.Args) < 2 {
		cli.Usage(os.Stderr)
		return cli.ExitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return cli.ExitError
	}
	// Checks from the CLI are audited synchronously so the command reports a
	// failed write instead of leaving it queued.
	cfg.AuditMode = app.AuditModeSync
	logger := app.NewLogger(cfg)
	if cfg.LogLevel == "" || cfg.LogLevel == "info" {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	rt, err := app.Bootstrap(ctx, cfg, logger, nil)
	if err != nil {
		slog.Default().Error("bootstrap", slog.Any("error", err))
		return cli.ExitError
	}
	defer rt.Close()

	queue := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() { _ = queue.Close() }()

	return cli.NewAccessCLI(rt.Service, rt.Resolver, rt.Audit, queue).Run(ctx, os.Args[1:], cli.Options{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
}
