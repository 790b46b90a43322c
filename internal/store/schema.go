package store

import "time"

// Schedule type constants for ScheduledTask.ScheduleType.
const (
	ScheduleCron     = "cron"
	ScheduleInterval = "interval"
	ScheduleOnce     = "once"
)

// Task status constants.
const (
	StatusActive    = "active"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
)

// Context mode constants: whether a fired task shares the tenant's group
// conversation or runs isolated.
const (
	ContextGroup    = "group"
	ContextIsolated = "isolated"
)

// ScheduledTask is a durable recurring or one-off job owned by a tenant.
// NextRun is nil only for completed tasks; invalid schedules are rejected
// before a record is ever written.
type ScheduledTask struct {
	ID            string     `json:"id"`
	TenantFolder  string     `json:"tenant_folder"`
	ChatID        string     `json:"chat_id"`
	Prompt        string     `json:"prompt"`
	ScheduleType  string     `json:"schedule_type"`  // cron, interval, once
	ScheduleValue string     `json:"schedule_value"` // expression, ms, or timestamp
	ContextMode   string     `json:"context_mode"`   // group or isolated
	NextRun       *time.Time `json:"next_run,omitempty"`
	LastRun       *time.Time `json:"last_run,omitempty"`
	LastResult    string     `json:"last_result,omitempty"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Schema creates the durable tables. Migrations for older databases are
// applied best-effort in New.
const Schema = `
CREATE TABLE IF NOT EXISTS scheduled_tasks (
	id TEXT PRIMARY KEY,
	tenant_folder TEXT NOT NULL,
	chat_id TEXT NOT NULL,
	prompt TEXT NOT NULL,
	schedule_type TEXT NOT NULL,
	schedule_value TEXT NOT NULL,
	context_mode TEXT NOT NULL DEFAULT 'isolated',
	next_run DATETIME,
	last_run DATETIME,
	last_result TEXT DEFAULT '',
	status TEXT NOT NULL DEFAULT 'active',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_tasks_status_next ON scheduled_tasks(status, next_run);
CREATE INDEX IF NOT EXISTS idx_tasks_tenant ON scheduled_tasks(tenant_folder);

CREATE TABLE IF NOT EXISTS preferences (
	tenant_folder TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (tenant_folder, key)
);
`
