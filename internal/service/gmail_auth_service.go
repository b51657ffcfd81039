package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/inbox-rules-api/internal/dto"
	"github.com/noah-isme/inbox-rules-api/internal/models"
	appErrors "github.com/noah-isme/inbox-rules-api/pkg/errors"
	"github.com/noah-isme/inbox-rules-api/pkg/logger"
)

type gmailAuthorizer interface {
	AuthURL(ctx context.Context, state string) (string, error)
	Exchange(ctx context.Context, userID, code string) error
	Email(ctx context.Context, userID string) (string, error)
}

type mailUserWriter interface {
	Upsert(ctx context.Context, user *models.MailUser) error
}

// GmailAuthService connects a user's mailbox through the OAuth consent flow.
type GmailAuthService struct {
	auth      gmailAuthorizer
	users     mailUserWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGmailAuthService constructs a GmailAuthService.
func NewGmailAuthService(auth gmailAuthorizer, users mailUserWriter, validate *validator.Validate, logger *zap.Logger) *GmailAuthService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GmailAuthService{auth: auth, users: users, validator: validate, logger: logger}
}

// AuthURL returns the consent URL; the user id travels as OAuth state.
func (s *GmailAuthService) AuthURL(ctx context.Context, userID string) (*dto.GmailAuthURLResponse, error) {
	url, err := s.auth.AuthURL(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &dto.GmailAuthURLResponse{URL: url}, nil
}

// Connect stores the token obtained for code and marks the mailbox active
// so the scheduler picks it up.
func (s *GmailAuthService) Connect(ctx context.Context, userID string, req dto.GmailTokenRequest) (*dto.GmailTokenResponse, error) {
	req.Code = strings.TrimSpace(req.Code)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid gmail token request")
	}
	if err := s.auth.Exchange(ctx, userID, req.Code); err != nil {
		return nil, err
	}

	email := req.Email
	if email == "" {
		found, err := s.auth.Email(ctx, userID)
		if err != nil {
			logger.FromContext(ctx, s.logger).Warn("failed to read mailbox profile", zap.String("user_id", userID), zap.Error(err))
		}
		email = found
	}
	if err := s.users.Upsert(ctx, &models.MailUser{ID: userID, Email: email, IsActive: true}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register mailbox")
	}
	logger.FromContext(ctx, s.logger).Info("mailbox connected", zap.String("user_id", userID))
	return &dto.GmailTokenResponse{UserID: userID, Connected: true}, nil
}
