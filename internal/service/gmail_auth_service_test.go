package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/inbox-rules-api/internal/dto"
	"github.com/noah-isme/inbox-rules-api/internal/models"
	appErrors "github.com/noah-isme/inbox-rules-api/pkg/errors"
)

type authorizerStub struct {
	exchangeErr error
	email       string
	emailErr    error
	codes       []string
}

func (a *authorizerStub) AuthURL(ctx context.Context, state string) (string, error) {
	return "https://accounts.example.com/auth?state=" + state, nil
}

func (a *authorizerStub) Exchange(ctx context.Context, userID, code string) error {
	a.codes = append(a.codes, code)
	return a.exchangeErr
}

func (a *authorizerStub) Email(ctx context.Context, userID string) (string, error) {
	return a.email, a.emailErr
}

type mailUserStub struct {
	users []models.MailUser
}

func (m *mailUserStub) Upsert(ctx context.Context, user *models.MailUser) error {
	m.users = append(m.users, *user)
	return nil
}

func TestGmailAuthServiceAuthURL(t *testing.T) {
	svc := NewGmailAuthService(&authorizerStub{}, &mailUserStub{}, nil, nil)

	resp, err := svc.AuthURL(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "https://accounts.example.com/auth?state=user-1", resp.URL)
}

func TestGmailAuthServiceConnect(t *testing.T) {
	auth := &authorizerStub{email: "me@example.com"}
	users := &mailUserStub{}
	svc := NewGmailAuthService(auth, users, nil, nil)

	resp, err := svc.Connect(context.Background(), "user-1", dto.GmailTokenRequest{Code: " code-1 "})
	require.NoError(t, err)
	assert.Equal(t, &dto.GmailTokenResponse{UserID: "user-1", Connected: true}, resp)
	assert.Equal(t, []string{"code-1"}, auth.codes)
	require.Len(t, users.users, 1)
	assert.Equal(t, models.MailUser{ID: "user-1", Email: "me@example.com", IsActive: true}, users.users[0])
}

func TestGmailAuthServiceConnectKeepsGivenEmail(t *testing.T) {
	auth := &authorizerStub{emailErr: errors.New("should not be called")}
	users := &mailUserStub{}
	svc := NewGmailAuthService(auth, users, nil, nil)

	_, err := svc.Connect(context.Background(), "user-1", dto.GmailTokenRequest{Code: "code-1", Email: "given@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "given@example.com", users.users[0].Email)
}

func TestGmailAuthServiceConnectErrors(t *testing.T) {
	users := &mailUserStub{}
	svc := NewGmailAuthService(&authorizerStub{}, users, nil, nil)
	_, err := svc.Connect(context.Background(), "user-1", dto.GmailTokenRequest{Code: "  "})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	rejected := NewGmailAuthService(&authorizerStub{exchangeErr: appErrors.Clone(appErrors.ErrValidation, "authorization code was rejected")}, users, nil, nil)
	_, err = rejected.Connect(context.Background(), "user-1", dto.GmailTokenRequest{Code: "bad"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, users.users)
}
