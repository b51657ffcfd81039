package models

import "time"

// JobAction is applied to every message matched by a job.
type JobAction string

const (
	JobActionArchive JobAction = "archive"
)

// Job is a named, user-owned pairing of one rule tree with one action.
type Job struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Name      string    `db:"name" json:"name"`
	Action    JobAction `db:"action" json:"action"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// JobLog records the outcome of one job execution.
type JobLog struct {
	ID             string    `db:"id" json:"id"`
	UserID         string    `db:"user_id" json:"user_id"`
	JobID          string    `db:"job_id" json:"job_id"`
	JobName        string    `db:"job_name" json:"job_name"`
	RunAt          time.Time `db:"run_at" json:"run_at"`
	AffectedCount  int       `db:"affected_count" json:"affected_count"`
	CompiledFilter string    `db:"compiled_filter" json:"compiled_filter"`
}

// JobLogFilter captures list criteria for run logs.
type JobLogFilter struct {
	UserID   string
	JobID    string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}
