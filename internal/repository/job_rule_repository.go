package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/inbox-rules-api/internal/models"
)

const jobRuleColumns = `id, user_id, job_id, group_id, type, sort_order, operator, value, is_active, created_at, updated_at`

// JobRuleRepository persists flat rule records.
type JobRuleRepository struct {
	db       *sqlx.DB
	observer QueryObserver
}

// NewJobRuleRepository constructs the repository. observer may be nil.
func NewJobRuleRepository(db *sqlx.DB, observer QueryObserver) *JobRuleRepository {
	return &JobRuleRepository{db: db, observer: observerOrNop(observer)}
}

// Create inserts one record. An id already used by any other record yields a
// unique violation, see IsUniqueViolation.
func (r *JobRuleRepository) Create(ctx context.Context, rule *models.JobRule) error {
	defer track(r.observer, "job_rules.create")()
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	const query = `INSERT INTO mail_job_rules (id, user_id, job_id, group_id, type, sort_order, operator, value, is_active, created_at, updated_at)
VALUES (:id, :user_id, :job_id, :group_id, :type, :sort_order, :operator, :value, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, rule); err != nil {
		return fmt.Errorf("create job rule: %w", err)
	}
	return nil
}

// Replace overwrites a record in full. The record must belong to the same
// user and job, otherwise sql.ErrNoRows is returned.
func (r *JobRuleRepository) Replace(ctx context.Context, rule *models.JobRule) error {
	defer track(r.observer, "job_rules.replace")()
	rule.UpdatedAt = time.Now().UTC()
	const query = `UPDATE mail_job_rules
SET group_id = :group_id, type = :type, sort_order = :sort_order, operator = :operator, value = :value,
    is_active = :is_active, updated_at = :updated_at
WHERE id = :id AND user_id = :user_id AND job_id = :job_id`
	res, err := r.db.NamedExecContext(ctx, query, rule)
	if err != nil {
		return fmt.Errorf("replace job rule: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListByJob returns every record of a job, active or not.
func (r *JobRuleRepository) ListByJob(ctx context.Context, userID, jobID string) ([]models.JobRule, error) {
	defer track(r.observer, "job_rules.list_by_job")()
	query := `SELECT ` + jobRuleColumns + ` FROM mail_job_rules WHERE user_id = $1 AND job_id = $2`
	var rules []models.JobRule
	if err := r.db.SelectContext(ctx, &rules, query, userID, jobID); err != nil {
		return nil, fmt.Errorf("list job rules: %w", err)
	}
	return rules, nil
}

// ListActiveByUser returns the active records of all of a user's jobs.
func (r *JobRuleRepository) ListActiveByUser(ctx context.Context, userID string) ([]models.JobRule, error) {
	defer track(r.observer, "job_rules.list_active")()
	query := `SELECT ` + jobRuleColumns + ` FROM mail_job_rules WHERE user_id = $1 AND is_active = TRUE`
	var rules []models.JobRule
	if err := r.db.SelectContext(ctx, &rules, query, userID); err != nil {
		return nil, fmt.Errorf("list active job rules: %w", err)
	}
	return rules, nil
}

// FindOwners maps each of the given record ids that already exists to the
// job owning it.
func (r *JobRuleRepository) FindOwners(ctx context.Context, ids []string) (map[string]string, error) {
	owners := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return owners, nil
	}
	defer track(r.observer, "job_rules.find_owners")()
	const query = `SELECT id, job_id FROM mail_job_rules WHERE id::text = ANY($1)`
	var rows []struct {
		ID    string `db:"id"`
		JobID string `db:"job_id"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find job rule owners: %w", err)
	}
	for _, row := range rows {
		owners[row.ID] = row.JobID
	}
	return owners, nil
}
