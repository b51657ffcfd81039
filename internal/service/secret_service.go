package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/inbox-rules-api/internal/models"
)

// ErrSecretNotFound is returned by SecretService.Get for unknown secrets.
var ErrSecretNotFound = errors.New("secret not found")

type secretRepository interface {
	Get(ctx context.Context, ownerID, name string) (*models.Secret, error)
	Upsert(ctx context.Context, secret *models.Secret) error
}

type sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(ciphertext []byte) ([]byte, error)
}

// SecretService stores JSON documents encrypted at rest. Application-wide
// secrets use an empty owner id.
type SecretService struct {
	repo   secretRepository
	box    sealer
	logger *zap.Logger
}

// NewSecretService constructs a SecretService.
func NewSecretService(repo secretRepository, box sealer, logger *zap.Logger) *SecretService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SecretService{repo: repo, box: box, logger: logger}
}

// Get decrypts the named secret into dest.
func (s *SecretService) Get(ctx context.Context, ownerID, name string, dest interface{}) error {
	secret, err := s.repo.Get(ctx, ownerID, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s: %w", name, ErrSecretNotFound)
		}
		return fmt.Errorf("load secret %s: %w", name, err)
	}
	plain, err := s.box.Open(secret.Ciphertext)
	if err != nil {
		s.logger.Error("stored secret could not be decrypted", zap.String("owner_id", ownerID), zap.String("name", name), zap.Error(err))
		return fmt.Errorf("open secret %s: %w", name, err)
	}
	if err := json.Unmarshal(plain, dest); err != nil {
		return fmt.Errorf("decode secret %s: %w", name, err)
	}
	return nil
}

// Put encrypts value as JSON and stores it, replacing any previous version.
func (s *SecretService) Put(ctx context.Context, ownerID, name string, value interface{}) error {
	plain, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode secret %s: %w", name, err)
	}
	sealed, err := s.box.Seal(plain)
	if err != nil {
		return fmt.Errorf("seal secret %s: %w", name, err)
	}
	if err := s.repo.Upsert(ctx, &models.Secret{OwnerID: ownerID, Name: name, Ciphertext: sealed}); err != nil {
		return fmt.Errorf("store secret %s: %w", name, err)
	}
	return nil
}
