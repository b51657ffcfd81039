package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/inbox-rules-api/internal/models"
)

// JobLogRepository stores run history.
type JobLogRepository struct {
	db       *sqlx.DB
	observer QueryObserver
}

// NewJobLogRepository constructs the repository. observer may be nil.
func NewJobLogRepository(db *sqlx.DB, observer QueryObserver) *JobLogRepository {
	return &JobLogRepository{db: db, observer: observerOrNop(observer)}
}

// Create appends a run log entry.
func (r *JobLogRepository) Create(ctx context.Context, entry *models.JobLog) error {
	defer track(r.observer, "job_logs.create")()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	const query = `INSERT INTO mail_job_logs (id, user_id, job_id, job_name, run_at, affected_count, compiled_filter)
VALUES (:id, :user_id, :job_id, :job_name, :run_at, :affected_count, :compiled_filter)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create job log: %w", err)
	}
	return nil
}

// List returns run logs newest first along with the total match count.
// A non-positive PageSize returns every match.
func (r *JobLogRepository) List(ctx context.Context, filter models.JobLogFilter) ([]models.JobLog, int, error) {
	defer track(r.observer, "job_logs.list")()
	conditions := []string{"user_id = $1"}
	args := []interface{}{filter.UserID}
	if filter.JobID != "" {
		args = append(args, filter.JobID)
		conditions = append(conditions, fmt.Sprintf("job_id = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("run_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("run_at <= $%d", len(args)))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM mail_job_logs"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count job logs: %w", err)
	}

	query := `SELECT id, user_id, job_id, job_name, run_at, affected_count, compiled_filter FROM mail_job_logs` +
		where + ` ORDER BY run_at DESC, id ASC`
	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		args = append(args, filter.PageSize, (page-1)*filter.PageSize)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	var logs []models.JobLog
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list job logs: %w", err)
	}
	return logs, total, nil
}
