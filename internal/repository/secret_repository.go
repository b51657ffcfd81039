package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/inbox-rules-api/internal/models"
)

// SecretRepository stores encrypted secret blobs.
type SecretRepository struct {
	db       *sqlx.DB
	observer QueryObserver
}

// NewSecretRepository constructs the repository. observer may be nil.
func NewSecretRepository(db *sqlx.DB, observer QueryObserver) *SecretRepository {
	return &SecretRepository{db: db, observer: observerOrNop(observer)}
}

// Get returns a secret or sql.ErrNoRows.
func (r *SecretRepository) Get(ctx context.Context, ownerID, name string) (*models.Secret, error) {
	defer track(r.observer, "secrets.get")()
	const query = `SELECT owner_id, name, ciphertext, updated_at FROM secrets WHERE owner_id = $1 AND name = $2`
	var secret models.Secret
	if err := r.db.GetContext(ctx, &secret, query, ownerID, name); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get secret: %w", err)
	}
	return &secret, nil
}

// Upsert writes a secret, replacing any previous value.
func (r *SecretRepository) Upsert(ctx context.Context, secret *models.Secret) error {
	defer track(r.observer, "secrets.upsert")()
	secret.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO secrets (owner_id, name, ciphertext, updated_at)
VALUES (:owner_id, :name, :ciphertext, :updated_at)
ON CONFLICT (owner_id, name)
DO UPDATE SET ciphertext = EXCLUDED.ciphertext, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, secret); err != nil {
		return fmt.Errorf("upsert secret: %w", err)
	}
	return nil
}
