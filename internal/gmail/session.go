package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	appErrors "github.com/noah-isme/inbox-rules-api/pkg/errors"
)

// Scopes requested during consent.
var Scopes = []string{gmailapi.GmailReadonlyScope, gmailapi.GmailModifyScope}

// SecretStore persists JSON secrets. Application secrets use an empty owner.
type SecretStore interface {
	Get(ctx context.Context, ownerID, name string, dest interface{}) error
	Put(ctx context.Context, ownerID, name string, value interface{}) error
}

// Config names the secrets the provider reads and writes.
type Config struct {
	OAuthKeyName  string
	AuthTokenName string
	SessionTTL    time.Duration
	// MaxSessions bounds the cache; the least recently used session is evicted.
	MaxSessions int
	// ClientOptions are appended when building API clients.
	ClientOptions []option.ClientOption
}

// SessionProvider builds per-user Gmail clients from stored OAuth material
// and keeps them for SessionTTL.
type SessionProvider struct {
	secrets   SecretStore
	cfg       Config
	sessions  *expirable.LRU[string, *Client]
	logger    *zap.Logger
	isMissing func(error) bool

	mu    sync.Mutex
	oauth *oauth2.Config
}

// NewSessionProvider constructs a provider. isMissing reports whether a
// SecretStore error means the secret does not exist.
func NewSessionProvider(secrets SecretStore, cfg Config, isMissing func(error) bool, logger *zap.Logger) *SessionProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 50 * time.Minute
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 1000
	}
	if isMissing == nil {
		isMissing = func(error) bool { return false }
	}
	return &SessionProvider{
		secrets:   secrets,
		cfg:       cfg,
		sessions:  expirable.NewLRU[string, *Client](cfg.MaxSessions, nil, cfg.SessionTTL),
		logger:    logger,
		isMissing: isMissing,
	}
}

// Session returns a cached or freshly built client for userID.
func (p *SessionProvider) Session(ctx context.Context, userID string) (*Client, error) {
	if c, ok := p.sessions.Get(userID); ok {
		return c, nil
	}
	oauthCfg, err := p.oauthConfig(ctx)
	if err != nil {
		return nil, err
	}

	var tok oauth2.Token
	if err := p.secrets.Get(ctx, userID, p.cfg.AuthTokenName, &tok); err != nil {
		if p.isMissing(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrMailNotConnected.Code, appErrors.ErrMailNotConnected.Status, appErrors.ErrMailNotConnected.Message)
		}
		return nil, fmt.Errorf("load gmail token: %w", err)
	}

	ts := &persistingTokenSource{
		base: oauthCfg.TokenSource(context.Background(), &tok),
		last: tok.AccessToken,
		persist: func(t *oauth2.Token) error {
			return p.secrets.Put(context.Background(), userID, p.cfg.AuthTokenName, t)
		},
		logger: p.logger.With(zap.String("user_id", userID)),
	}
	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, p.cfg.ClientOptions...)
	svc, err := gmailapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("build gmail service: %w", err)
	}
	client := NewClient(svc)
	p.sessions.Add(userID, client)
	return client, nil
}

// AuthURL returns the consent screen URL requesting offline access.
func (p *SessionProvider) AuthURL(ctx context.Context, state string) (string, error) {
	oauthCfg, err := p.oauthConfig(ctx)
	if err != nil {
		return "", err
	}
	return oauthCfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// Exchange trades an authorization code for a token, stores it for userID
// and drops any cached session.
func (p *SessionProvider) Exchange(ctx context.Context, userID, code string) error {
	oauthCfg, err := p.oauthConfig(ctx)
	if err != nil {
		return err
	}
	tok, err := oauthCfg.Exchange(ctx, code)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "authorization code was rejected")
	}
	if err := p.secrets.Put(ctx, userID, p.cfg.AuthTokenName, tok); err != nil {
		return fmt.Errorf("store gmail token: %w", err)
	}
	p.sessions.Remove(userID)
	return nil
}

// Cached returns the number of live sessions.
func (p *SessionProvider) Cached() int {
	return p.sessions.Len()
}

func (p *SessionProvider) oauthConfig(ctx context.Context) (*oauth2.Config, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.oauth != nil {
		return p.oauth, nil
	}
	var raw json.RawMessage
	if err := p.secrets.Get(ctx, "", p.cfg.OAuthKeyName, &raw); err != nil {
		if p.isMissing(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrMailUnavailable.Code, appErrors.ErrMailUnavailable.Status, "gmail oauth client is not configured")
		}
		return nil, fmt.Errorf("load gmail oauth client: %w", err)
	}
	cfg, err := google.ConfigFromJSON(raw, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse gmail oauth client: %w", err)
	}
	p.oauth = cfg
	return cfg, nil
}

// persistingTokenSource writes refreshed tokens back to the secret store.
type persistingTokenSource struct {
	mu      sync.Mutex
	base    oauth2.TokenSource
	last    string
	persist func(*oauth2.Token) error
	logger  *zap.Logger
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		var retrieve *oauth2.RetrieveError
		if errors.As(err, &retrieve) {
			return nil, appErrors.Wrap(err, appErrors.ErrMailNotConnected.Code, appErrors.ErrMailNotConnected.Status, "gmail authorization has expired")
		}
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := s.persist(tok); err != nil {
			s.logger.Warn("failed to persist refreshed gmail token", zap.Error(err))
		} else {
			s.last = tok.AccessToken
		}
	}
	return tok, nil
}

// Email returns the address of userID's connected mailbox.
func (p *SessionProvider) Email(ctx context.Context, userID string) (string, error) {
	client, err := p.Session(ctx, userID)
	if err != nil {
		return "", err
	}
	return client.Profile(ctx)
}
