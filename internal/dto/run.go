package dto

import "time"

// JobRunLog summarises one job execution.
type JobRunLog struct {
	Date           time.Time `json:"date"`
	JobName        string    `json:"job_name"`
	AffectedCount  int       `json:"affected_count"`
	CompiledFilter string    `json:"compiled_filter"`
}

// RunResponse is returned by the run trigger.
type RunResponse struct {
	UserID string      `json:"user_id"`
	Logs   []JobRunLog `json:"logs"`
}

// JobLogQuery binds the run history filters.
type JobLogQuery struct {
	JobID    string     `form:"job_id" validate:"omitempty,uuid"`
	From     *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To       *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Page     int        `form:"page" validate:"omitempty,min=1"`
	PageSize int        `form:"page_size" validate:"omitempty,min=1,max=200"`
	Format   string     `form:"format" validate:"omitempty,oneof=csv pdf"`
}
