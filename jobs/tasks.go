package jobs

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAudit carries access-log deliveries so a backlog of maintenance
	// work never delays them.
	QueueAudit = "audit"

	// TaskAuditRecord writes one access-log entry.
	TaskAuditRecord = "audit:record"
	// TaskOverrideSweep deletes expired permission overrides.
	TaskOverrideSweep = "overrides:sweep"
)
