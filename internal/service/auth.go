// Package service contains the client-side state machines: the auth session
// and the product listing.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/AnnaKryuchkova/product-console/internal/apiclient"
	"github.com/AnnaKryuchkova/product-console/internal/errs"
	"github.com/AnnaKryuchkova/product-console/internal/model"
	"github.com/AnnaKryuchkova/product-console/internal/notify"
	"github.com/AnnaKryuchkova/product-console/internal/tokenstore"
)

// DefaultSessionLengthMins is the session-length hint sent on login.
const DefaultSessionLengthMins = 60

// AuthAPI is the remote side of authentication.
type AuthAPI interface {
	Login(ctx context.Context, in model.LoginRequest) (model.LoginResponse, error)
	CurrentUser(ctx context.Context, accessToken string) (model.User, error)
}

// TokenStore caches the token pair between runs.
type TokenStore interface {
	Save(ctx context.Context, tokens model.TokenPair, persistent bool) error
	Load(ctx context.Context) tokenstore.Loaded
	Clear(ctx context.Context) error
}

// SessionState is the derived authentication state.
type SessionState int

const (
	StateInitializing SessionState = iota
	StateUnauthenticated
	StateAuthenticated
	StateGuest
)

func (s SessionState) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAuthenticated:
		return "authenticated"
	case StateGuest:
		return "guest"
	default:
		return "unauthenticated"
	}
}

// SessionConfig configures a Session.
type SessionConfig struct {
	SessionLengthMins int
	Notifier          notify.Notifier
	Logger            *zap.Logger
}

// Session is the process-wide authentication state.
type Session struct {
	api         AuthAPI
	store       TokenStore
	notifier    notify.Notifier
	log         *zap.Logger
	sessionMins int

	mu           sync.RWMutex
	user         *model.User
	tokens       *model.TokenPair
	persistent   bool
	initializing bool
	guest        bool
}

// NewSession returns a Session in the initializing state. Call Init next.
func NewSession(api AuthAPI, store TokenStore, cfg SessionConfig) *Session {
	if cfg.SessionLengthMins <= 0 {
		cfg.SessionLengthMins = DefaultSessionLengthMins
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Nop
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Session{
		api:          api,
		store:        store,
		notifier:     cfg.Notifier,
		log:          cfg.Logger,
		sessionMins:  cfg.SessionLengthMins,
		initializing: true,
	}
}

// Init restores the session from the token store. Stored tokens are checked
// against the remote service; if they are rejected for any reason the store
// is cleared. Init always leaves the initializing state.
func (s *Session) Init(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.initializing = false
		s.mu.Unlock()
	}()

	loaded := s.store.Load(ctx)
	if loaded.Tokens == nil {
		return
	}
	me, err := s.api.CurrentUser(ctx, loaded.Tokens.AccessToken)
	if err != nil {
		s.log.Info("stored session rejected", zap.Error(err))
		if cerr := s.store.Clear(ctx); cerr != nil {
			s.log.Warn("clear token store", zap.Error(cerr))
		}
		return
	}

	tokens := *loaded.Tokens
	s.mu.Lock()
	s.user = &me
	s.tokens = &tokens
	s.persistent = loaded.Persistent
	s.mu.Unlock()
}

// Login authenticates with the remote service and stores the issued tokens.
// On failure the session is left as it was.
func (s *Session) Login(ctx context.Context, username, password string, rememberMe bool) (*model.User, error) {
	resp, err := s.api.Login(ctx, model.LoginRequest{
		Username:      username,
		Password:      password,
		ExpiresInMins: s.sessionMins,
	})
	if err != nil {
		s.notifier.Notify(notify.Notification{Level: notify.Error, Title: "Sign-in failed", Message: errorMessage(err, "Could not sign in")})
		return nil, fmt.Errorf("login: %w", err)
	}

	tokens, user := resp.Split()
	if err := s.store.Save(ctx, tokens, rememberMe); err != nil {
		// tokens still work for this process; only the cache is lost
		s.log.Warn("save tokens", zap.Bool("persistent", rememberMe), zap.Error(err))
	}

	s.mu.Lock()
	s.user = &user
	s.tokens = &tokens
	s.persistent = rememberMe
	s.mu.Unlock()

	s.log.Info("signed in", zap.Int64("user_id", user.ID), zap.Bool("persistent", rememberMe))
	s.notifier.Notify(notify.Notification{Level: notify.Success, Title: "Signed in", Message: fmt.Sprintf("Welcome, %s!", user.FirstName)})
	out := user
	return &out, nil
}

// LoginAsGuest enters read-only guest mode without contacting the service.
func (s *Session) LoginAsGuest() {
	s.mu.Lock()
	s.guest = true
	s.mu.Unlock()
}

// Logout forgets the user, the tokens and guest mode. Safe to call repeatedly.
func (s *Session) Logout(ctx context.Context) error {
	err := s.store.Clear(ctx)

	s.mu.Lock()
	s.user = nil
	s.tokens = nil
	s.persistent = false
	s.guest = false
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// State derives the current SessionState.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case s.initializing:
		return StateInitializing
	case s.user != nil && s.tokens != nil:
		return StateAuthenticated
	case s.guest:
		return StateGuest
	default:
		return StateUnauthenticated
	}
}

// IsAuthenticated is true for a signed-in user or a guest.
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (s.user != nil && s.tokens != nil) || s.guest
}

func (s *Session) IsInitializing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initializing
}

func (s *Session) IsGuest() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.guest
}

// Persistent reports whether the tokens are cached in the persistent store.
func (s *Session) Persistent() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persistent
}

// User returns a copy of the signed-in profile, or nil.
func (s *Session) User() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Tokens returns a copy of the current token pair, or nil.
func (s *Session) Tokens() *model.TokenPair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tokens == nil {
		return nil
	}
	t := *s.tokens
	return &t
}

// RequireAuth returns errs.ErrNotAuthenticated unless a user or guest is present.
func (s *Session) RequireAuth() error {
	if !s.IsAuthenticated() {
		return errs.ErrNotAuthenticated
	}
	return nil
}

// AccessExpiry reads the exp claim of an access token without verifying it.
// The console has no signing key; the value is informational only.
func AccessExpiry(accessToken string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}, fmt.Errorf("parse access token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.New("access token has no exp claim")
	}
	return claims.ExpiresAt.Time, nil
}

// errorMessage prefers the service-provided message over the wrapped chain.
func errorMessage(err error, fallback string) string {
	var he *apiclient.HTTPError
	if errors.As(err, &he) && he.Message != "" {
		return he.Message
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return fallback
}
