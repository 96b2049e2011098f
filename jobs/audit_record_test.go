package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatecrm/estatecrm/internal/audit"
	jobmetrics "github.com/estatecrm/estatecrm/internal/jobs"
)

type stubEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (s *stubEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	s.opts = append(s.opts, opts)
	if s.err != nil {
		return nil, s.err
	}
	return &asynq.TaskInfo{ID: "ok"}, nil
}

type stubWriter struct {
	entries []audit.Entry
	err     error
}

func (s *stubWriter) Record(_ context.Context, entry audit.Entry) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func sampleEntry() audit.Entry {
	id := int64(101)
	return audit.Entry{
		CallID:       uuid.MustParse("7d9b7c1e-8a4f-4d7e-9b0c-3f1a2b3c4d5e"),
		UserID:       3,
		ResourceType: "client",
		ResourceID:   &id,
		Action:       "check",
		Permission:   "READ_CLIENT",
		Granted:      true,
		Reason:       "owner",
		At:           time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestAuditEnqueuerUsesCallIDAsTaskID(t *testing.T) {
	stub := &stubEnqueuer{}
	entry := sampleEntry()

	require.NoError(t, NewAuditEnqueuer(stub).Record(context.Background(), entry))
	require.Len(t, stub.tasks, 1)
	assert.Equal(t, TaskAuditRecord, stub.tasks[0].Type())

	var decoded audit.Entry
	require.NoError(t, json.Unmarshal(stub.tasks[0].Payload(), &decoded))
	assert.Equal(t, entry.CallID, decoded.CallID)
	assert.Equal(t, int64(101), *decoded.ResourceID)

	var taskID, queue string
	for _, opt := range stub.opts[0] {
		switch opt.Type() {
		case asynq.TaskIDOpt:
			taskID = opt.Value().(string)
		case asynq.QueueOpt:
			queue = opt.Value().(string)
		}
	}
	assert.Equal(t, entry.CallID.String(), taskID)
	assert.Equal(t, QueueAudit, queue)
}

func TestAuditEnqueuerTreatsDuplicateAsDelivered(t *testing.T) {
	for _, err := range []error{asynq.ErrTaskIDConflict, asynq.ErrDuplicateTask} {
		stub := &stubEnqueuer{err: err}
		assert.NoError(t, NewAuditEnqueuer(stub).Record(context.Background(), sampleEntry()))
	}
}

func TestAuditEnqueuerPropagatesQueueErrors(t *testing.T) {
	boom := errors.New("redis down")
	stub := &stubEnqueuer{err: boom}
	err := NewAuditEnqueuer(stub).Record(context.Background(), sampleEntry())
	assert.ErrorIs(t, err, boom)
}

func TestAuditRecordJobWritesEntry(t *testing.T) {
	writer := &stubWriter{}
	job := NewAuditRecordJob(writer, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewAuditRecordTask(sampleEntry())
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, writer.entries, 1)
	assert.Equal(t, "owner", writer.entries[0].Reason)
}

func TestAuditRecordJobSkipsRetryOnBadPayload(t *testing.T) {
	job := NewAuditRecordJob(&stubWriter{}, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskAuditRecord, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestAuditRecordJobSkipsRetryOnInvalidEntry(t *testing.T) {
	job := NewAuditRecordJob(&stubWriter{err: audit.ErrInvalidEntry}, nil, nil)
	task, err := NewAuditRecordTask(sampleEntry())
	require.NoError(t, err)
	err = job.Handle(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestAuditRecordJobRetriesStoreErrors(t *testing.T) {
	boom := errors.New("connection reset")
	job := NewAuditRecordJob(&stubWriter{err: boom}, nil, nil)
	task, err := NewAuditRecordTask(sampleEntry())
	require.NoError(t, err)
	err = job.Handle(context.Background(), task)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestAuditRecordJobRequiresWriter(t *testing.T) {
	var job *AuditRecordJob
	assert.Error(t, job.Handle(context.Background(), asynq.NewTask(TaskAuditRecord, nil)))
}
