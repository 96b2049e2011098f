package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/estatecrm/estatecrm/internal/audit"
	jobmetrics "github.com/estatecrm/estatecrm/internal/jobs"
	"github.com/estatecrm/estatecrm/internal/platform/cache"
	"github.com/estatecrm/estatecrm/internal/platform/clock"
	"github.com/estatecrm/estatecrm/internal/platform/db"
	"github.com/estatecrm/estatecrm/internal/rbac"
	"github.com/estatecrm/estatecrm/internal/rbac/pgstore"
	"github.com/estatecrm/estatecrm/internal/users"
	"github.com/estatecrm/estatecrm/jobs"
)

// Runtime holds the connected backends and the access components built on
// them. Every binary starts from one.
type Runtime struct {
	Config *Config
	Logger *slog.Logger

	Pool  *pgxpool.Pool
	Redis *redis.Client
	Queue *jobs.Client

	Store     *pgstore.Store
	Users     *users.Repository
	RoleCache *users.RoleCache
	Audit     *audit.Service
	Service   *rbac.Service
	Resolver  *rbac.Resolver
}

// Bootstrap connects to Postgres and Redis, applies the schema and assembles
// the resolver. The audit recorder follows cfg.AuditMode. registerer may be nil
// when metrics are not exported.
func Bootstrap(ctx context.Context, cfg *Config, logger *slog.Logger, registerer prometheus.Registerer) (*Runtime, error) {
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{Config: cfg, Logger: logger, Pool: pool}

	rt.Redis, err = cache.New(ctx, cache.Options{
		Addr:      cfg.RedisAddr,
		OpTimeout: cfg.RedisTimeout,
		PoolSize:  cfg.RedisPoolSize,
	})
	if err != nil {
		// The role cache degrades to Postgres; async audit cannot.
		if cfg.AsyncAudit() {
			rt.Close()
			return nil, err
		}
		logger.Warn("redis unavailable, role cache disabled", slog.Any("error", err))
	}

	rt.Store = pgstore.New(pool, cfg.StoreTimeout, pgstore.DefaultOwnerColumns())
	if err := rt.Store.Migrate(ctx); err != nil {
		rt.Close()
		return nil, err
	}

	rt.Users = users.NewRepository(pool, cfg.StoreTimeout)
	rt.RoleCache = users.NewRoleCache(rt.Users, rt.Redis, cfg.RoleCacheTTL, logger)
	rt.Audit = audit.NewService(rt.Store)

	var recorder rbac.AuditRecorder = rt.Audit
	if cfg.AsyncAudit() {
		rt.Queue = jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		recorder = rt.Queue.AuditRecorder()
	}

	clk := clock.Real()
	rt.Service = rbac.NewService(rbac.ServiceConfig{
		Roles:     rt.RoleCache,
		Overrides: rt.Store,
		Ownership: rt.Store,
		Clock:     clk,
		Logger:    logger,
	})
	var metrics *rbac.Metrics
	if registerer != nil {
		metrics = rbac.NewMetrics(registerer)
	}
	rt.Resolver, err = rbac.NewResolver(rbac.ResolverConfig{
		Roles:     rt.RoleCache,
		Owners:    rt.Store,
		Overrides: rt.Store,
		Ownership: rt.Store,
		Audit:     recorder,
		Clock:     clk,
		Logger:    logger,
		Metrics:   metrics,
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("app: build resolver: %w", err)
	}
	return rt, nil
}

// WorkerConfig returns the worker setup that delivers queued access-log
// entries and runs the override sweep on cfg.OverrideSweepCron.
func (rt *Runtime) WorkerConfig(metrics *jobmetrics.Metrics) jobs.WorkerConfig {
	auditJob := jobs.NewAuditRecordJob(rt.Audit, rt.Logger, metrics)
	sweepJob := jobs.NewOverrideSweepJob(rt.Service, rt.Logger, metrics)
	cfg := jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: rt.Config.RedisAddr},
		Logger:      rt.Logger,
		Concurrency: rt.Config.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAuditRecord, Handler: auditJob.Handle},
			{Type: jobs.TaskOverrideSweep, Handler: sweepJob.Handle},
		},
	}
	if rt.Config.OverrideSweepCron != "" {
		cfg.Cron = []jobs.CronRegistration{
			{Spec: rt.Config.OverrideSweepCron, Task: jobs.NewOverrideSweepTask()},
		}
	}
	return cfg
}

// HealthChecks probes the backends for /healthz.
func (rt *Runtime) HealthChecks() map[string]HealthChecker {
	checks := map[string]HealthChecker{
		"postgres": func(r *http.Request) error { return rt.Pool.Ping(r.Context()) },
	}
	if rt.Redis != nil {
		checks["redis"] = func(r *http.Request) error { return rt.Redis.Ping(r.Context()).Err() }
	}
	return checks
}

// Close releases every backend connection.
func (rt *Runtime) Close() {
	if rt == nil {
		return
	}
	if rt.Queue != nil {
		if err := rt.Queue.Close(); err != nil && rt.Logger != nil {
			rt.Logger.Warn("queue close", slog.Any("error", err))
		}
	}
	if rt.Redis != nil {
		if err := rt.Redis.Close(); err != nil && rt.Logger != nil {
			rt.Logger.Warn("redis close", slog.Any("error", err))
		}
	}
	if rt.Pool != nil {
		rt.Pool.Close()
	}
}
