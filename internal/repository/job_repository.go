package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/inbox-rules-api/internal/models"
)

const jobColumns = `id, user_id, name, action, is_active, created_at, updated_at`

// JobRepository persists job headers.
type JobRepository struct {
	db       *sqlx.DB
	observer QueryObserver
}

// NewJobRepository constructs the repository. observer may be nil.
func NewJobRepository(db *sqlx.DB, observer QueryObserver) *JobRepository {
	return &JobRepository{db: db, observer: observerOrNop(observer)}
}

// Create inserts a job, assigning an id and timestamps when missing.
func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	defer track(r.observer, "jobs.create")()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	const query = `INSERT INTO mail_jobs (id, user_id, name, action, is_active, created_at, updated_at)
VALUES (:id, :user_id, :name, :action, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// Get fetches a job owned by userID regardless of its active flag.
// sql.ErrNoRows is returned unwrapped when it does not exist.
func (r *JobRepository) Get(ctx context.Context, userID, id string) (*models.Job, error) {
	defer track(r.observer, "jobs.get")()
	query := `SELECT ` + jobColumns + ` FROM mail_jobs WHERE user_id = $1 AND id = $2`
	var job models.Job
	if err := r.db.GetContext(ctx, &job, query, userID, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// ListActiveByUser returns the user's active jobs, oldest first.
func (r *JobRepository) ListActiveByUser(ctx context.Context, userID string) ([]models.Job, error) {
	defer track(r.observer, "jobs.list")()
	query := `SELECT ` + jobColumns + ` FROM mail_jobs WHERE user_id = $1 AND is_active = TRUE ORDER BY created_at ASC, id ASC`
	var jobs []models.Job
	if err := r.db.SelectContext(ctx, &jobs, query, userID); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// ExistsByName reports whether another active job of the user carries name.
// excludeID may be empty.
func (r *JobRepository) ExistsByName(ctx context.Context, userID, name, excludeID string) (bool, error) {
	defer track(r.observer, "jobs.exists_by_name")()
	const query = `SELECT EXISTS (
    SELECT 1 FROM mail_jobs
    WHERE user_id = $1 AND name = $2 AND is_active = TRUE AND ($3 = '' OR id::text <> $3)
)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, userID, name, excludeID); err != nil {
		return false, fmt.Errorf("check job name: %w", err)
	}
	return exists, nil
}

// Replace overwrites the mutable columns of a job.
func (r *JobRepository) Replace(ctx context.Context, job *models.Job) error {
	defer track(r.observer, "jobs.replace")()
	job.UpdatedAt = time.Now().UTC()
	const query = `UPDATE mail_jobs SET name = :name, action = :action, is_active = :is_active, updated_at = :updated_at
WHERE id = :id AND user_id = :user_id`
	res, err := r.db.NamedExecContext(ctx, query, job)
	if err != nil {
		return fmt.Errorf("replace job: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
