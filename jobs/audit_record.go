package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/estatecrm/estatecrm/internal/audit"
	jobmetrics "github.com/estatecrm/estatecrm/internal/jobs"
)

const auditRetention = 24 * time.Hour

// Enqueuer submits tasks; *asynq.Client satisfies it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AuditEnqueuer records access-log entries asynchronously. The call id is the
// task id, so a retried enqueue of the same entry is dropped by the queue and
// a redelivered task is dropped by the access_log unique key.
type AuditEnqueuer struct {
	client Enqueuer
}

// NewAuditEnqueuer constructs an AuditEnqueuer.
func NewAuditEnqueuer(client Enqueuer) *AuditEnqueuer {
	return &AuditEnqueuer{client: client}
}

// NewAuditRecordTask wraps entry in a task.
func NewAuditRecordTask(entry audit.Entry) (*asynq.Task, error) {
	body, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRecord, body), nil
}

// Record enqueues entry for delivery.
func (e *AuditEnqueuer) Record(ctx context.Context, entry audit.Entry) error {
	task, err := NewAuditRecordTask(entry)
	if err != nil {
		return fmt.Errorf("jobs: encode audit entry: %w", err)
	}
	_, err = e.client.EnqueueContext(ctx, task,
		asynq.TaskID(entry.CallID.String()),
		asynq.Queue(QueueAudit),
		asynq.MaxRetry(25),
		asynq.Retention(auditRetention),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("jobs: enqueue audit entry: %w", err)
	}
	return nil
}

// AuditWriter persists access-log entries.
type AuditWriter interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// AuditRecordJob delivers queued access-log entries.
type AuditRecordJob struct {
	Writer  AuditWriter
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAuditRecordJob constructs the job handler.
func NewAuditRecordJob(writer AuditWriter, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditRecordJob {
	return &AuditRecordJob{Writer: writer, Logger: logger, Metrics: metrics}
}

// Handle writes the entry carried by task. Malformed payloads are not retried.
func (j *AuditRecordJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Writer == nil {
		return errors.New("audit record: dependencies not configured")
	}
	var entry audit.Entry
	if err := json.Unmarshal(task.Payload(), &entry); err != nil {
		return fmt.Errorf("audit record: decode: %v: %w", err, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track("audit_record")
	err := j.Writer.Record(ctx, entry)
	if errors.Is(err, audit.ErrInvalidEntry) {
		err = fmt.Errorf("audit record: %v: %w", err, asynq.SkipRetry)
	}
	if err != nil && j.Logger != nil {
		j.Logger.Error("audit record failed",
			slog.String("call_id", entry.CallID.String()),
			slog.Any("error", err))
	}
	return tracker.End(err)
}
