package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/estatecrm/estatecrm/internal/jobs"
)

// OverrideSweeper deletes overrides that can no longer take effect.
type OverrideSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// OverrideSweepJob reclaims storage held by expired overrides. Resolution
// already ignores them, so running it or not never changes a decision.
type OverrideSweepJob struct {
	Sweeper OverrideSweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewOverrideSweepJob constructs the job handler.
func NewOverrideSweepJob(sweeper OverrideSweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverrideSweepJob {
	return &OverrideSweepJob{Sweeper: sweeper, Logger: logger, Metrics: metrics}
}

// NewOverrideSweepTask creates the sweep task.
func NewOverrideSweepTask() *asynq.Task {
	return asynq.NewTask(TaskOverrideSweep, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(3))
}

// Handle runs one sweep.
func (j *OverrideSweepJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Sweeper == nil {
		return errors.New("override sweep: dependencies not configured")
	}
	tracker := j.Metrics.Track("override_sweep")
	n, err := j.Sweeper.SweepExpired(ctx)
	if err != nil {
		if j.Logger != nil {
			j.Logger.Error("override sweep failed", slog.Any("error", err))
		}
		return tracker.End(err)
	}
	j.Metrics.AddSwept(n)
	if j.Logger != nil {
		j.Logger.Info("override sweep executed", slog.String("job", "override_sweep"), slog.Int64("deleted", n))
	}
	return tracker.End(nil)
}
