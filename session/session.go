// Package session authenticates against the services around the ledger, such
// as the reference data service.
//
// A Session is an explicit handle: it is created with New, logged in with
// Init, renewed with Refresh and closed with Teardown. Between Init and
// Teardown it is an oauth2.TokenSource that logs in again whenever the token
// is older than the refresh period or expired.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// DefaultRefreshPeriod is how long a login is trusted before logging in again.
const DefaultRefreshPeriod = 45 * time.Minute

// ErrNotAuthenticated is returned when the session is used before Init or
// after Teardown.
var ErrNotAuthenticated = errors.New("not authenticated")

// Config holds the credentials of a session.
type Config struct {
	TokenURL      string
	ClientID      string
	ClientSecret  string
	Username      string
	Password      string
	RefreshPeriod time.Duration // Default DefaultRefreshPeriod.
}

// Session is a logged in user. It is safe for concurrent use.
type Session struct {
	oauth    oauth2.Config
	username string
	password string
	period   time.Duration
	client   *http.Client
	logger   *zap.Logger
	now      func() time.Time

	mu            sync.Mutex
	ctx           context.Context
	token         *oauth2.Token
	authenticated time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithHTTPClient sets the client used to reach the token endpoint.
func WithHTTPClient(c *http.Client) Option { return func(s *Session) { s.client = c } }

// WithLogger sets the logger. Default is no logging.
func WithLogger(l *zap.Logger) Option { return func(s *Session) { s.logger = l } }

// WithClock sets the time source.
func WithClock(now func() time.Time) Option { return func(s *Session) { s.now = now } }

// New returns a session that is not logged in yet.
func New(cfg Config, opts ...Option) *Session {
	s := &Session{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		username: cfg.Username,
		password: cfg.Password,
		period:   cfg.RefreshPeriod,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	if s.period <= 0 {
		s.period = DefaultRefreshPeriod
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init logs in. ctx is kept to log in again later on and must outlive the
// session.
func (s *Session) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
	return s.login()
}

// Refresh logs in again regardless of the age of the current token.
func (s *Session) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return ErrNotAuthenticated
	}
	return s.login()
}

// Teardown forgets the credentials obtained so far. The session can be
// initialized again.
func (s *Session) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = nil
	s.token = nil
	s.authenticated = time.Time{}
	s.logger.Info("session closed", zap.String("username", s.username))
}

// Token implements oauth2.TokenSource.
func (s *Session) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return nil, ErrNotAuthenticated
	}
	if s.needsRefresh() {
		if err := s.login(); err != nil {
			return nil, err
		}
	}
	return s.token, nil
}

// HTTPClient returns a client that authenticates every request with the
// session token.
func (s *Session) HTTPClient() *http.Client {
	base := http.DefaultTransport
	if s.client != nil && s.client.Transport != nil {
		base = s.client.Transport
	}
	return &http.Client{Transport: &oauth2.Transport{Source: s, Base: base}}
}

// Expiry returns when the current token stops being valid, zero if unknown.
func (s *Session) Expiry() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return time.Time{}
	}
	return expiry(s.token)
}

func (s *Session) needsRefresh() bool {
	if s.token == nil || s.now().Sub(s.authenticated) >= s.period {
		return true
	}
	exp := expiry(s.token)
	return !exp.IsZero() && !s.now().Before(exp)
}

// login must be called with mu held.
func (s *Session) login() error {
	s.logger.Info("attempting login", zap.String("username", s.username))
	ctx := s.ctx
	if s.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	}
	token, err := s.oauth.PasswordCredentialsToken(ctx, s.username, s.password)
	if err != nil {
		s.token = nil
		s.authenticated = time.Time{}
		s.logger.Error("login failed", zap.String("username", s.username), zap.Error(err))
		return fmt.Errorf("login of %s failed: %w", s.username, err)
	}
	s.token = token
	s.authenticated = s.now()
	s.logger.Info("login successful", zap.String("username", s.username), zap.Time("expiry", expiry(token)))
	return nil
}

// expiry is the earliest of the access token expiry and the id token "exp"
// claim. The id token is only decoded, the issuer verifies it.
func expiry(token *oauth2.Token) time.Time {
	exp := token.Expiry
	raw, ok := token.Extra("id_token").(string)
	if !ok || raw == "" {
		return exp
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return exp
	}
	idExp, err := claims.GetExpirationTime()
	if err != nil || idExp == nil {
		return exp
	}
	if exp.IsZero() || idExp.Before(exp) {
		return idExp.Time
	}
	return exp
}
