package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/estatecrm/estatecrm/internal/app"
	"github.com/estatecrm/estatecrm/internal/audit"
	audithttp "github.com/estatecrm/estatecrm/internal/audit/http"
	jobmetrics "github.com/estatecrm/estatecrm/internal/jobs"
	"github.com/estatecrm/estatecrm/internal/observability"
	"github.com/estatecrm/estatecrm/internal/rbac"
	"github.com/estatecrm/estatecrm/internal/roles"
	"github.com/estatecrm/estatecrm/internal/users"
	"github.com/estatecrm/estatecrm/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	metrics := observability.NewMetrics()

	rt, err := app.Bootstrap(ctx, cfg, logger, metrics.Registerer())
	if err != nil {
		logger.Error("bootstrap", slog.Any("error", err))
		os.Exit(1)
	}
	defer rt.Close()

	guard := rbac.Middleware{Checker: rt.Resolver, Logger: logger}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		AccessHandler: rbac.NewHandler(logger, rt.Service, rt.Resolver, guard),
		RolesHandler:  roles.NewHandler(logger, roles.NewService(), guard),
		UsersHandler:  users.NewHandler(logger, users.NewService(rt.Users, rt.RoleCache), guard),
		AuditHandler:  audithttp.NewHandler(logger, rt.Audit, audit.NewExporter(), guard),
		JobHandler:    jobs.NewHandler(inspector, logger),
		Metrics:       metrics,
		Health:        rt.HealthChecks(),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if cfg.EmbedWorker {
		worker, err := jobs.NewWorker(rt.WorkerConfig(jobmetrics.NewMetrics(metrics.Registerer())))
		if err != nil {
			logger.Error("init worker", slog.Any("error", err))
			os.Exit(1)
		}
		group.Go(func() error {
			if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		logger.Error("estatecrm stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
