package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/inbox-rules-api/internal/models"
)

// MailUserRepository tracks users whose mailbox has been connected.
type MailUserRepository struct {
	db       *sqlx.DB
	observer QueryObserver
}

// NewMailUserRepository constructs the repository. observer may be nil.
func NewMailUserRepository(db *sqlx.DB, observer QueryObserver) *MailUserRepository {
	return &MailUserRepository{db: db, observer: observerOrNop(observer)}
}

// Upsert registers or reactivates a mail user.
func (r *MailUserRepository) Upsert(ctx context.Context, user *models.MailUser) error {
	defer track(r.observer, "mail_users.upsert")()
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	const query = `INSERT INTO mail_users (id, email, is_active, created_at, updated_at)
VALUES (:id, :email, :is_active, :created_at, :updated_at)
ON CONFLICT (id)
DO UPDATE SET email = EXCLUDED.email, is_active = EXCLUDED.is_active, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("upsert mail user: %w", err)
	}
	return nil
}

// ListActive returns every active mail user.
func (r *MailUserRepository) ListActive(ctx context.Context) ([]models.MailUser, error) {
	defer track(r.observer, "mail_users.list_active")()
	const query = `SELECT id, email, is_active, created_at, updated_at FROM mail_users WHERE is_active = TRUE ORDER BY id ASC`
	var users []models.MailUser
	if err := r.db.SelectContext(ctx, &users, query); err != nil {
		return nil, fmt.Errorf("list mail users: %w", err)
	}
	return users, nil
}
