// Package session manages the sync session: bearer token, estimated
// expiry and cached credentials for silent renewal.
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tiendalink/tiendasync/pkg/errors"
	"github.com/tiendalink/tiendasync/pkg/logger"
)

// State is the session lifecycle state.
type State string

const (
	StateNoSession           State = "no_session"
	StateAwaitingCredentials State = "awaiting_credentials"
	StateAuthenticated       State = "authenticated"
	StateExpired             State = "expired"
)

// Credentials is a username/password pair.
type Credentials struct {
	Username string
	Password string
}

// CredentialProvider supplies credentials when the session needs them.
// Returning ok=false means the prompt was cancelled; that is not an
// error, it aborts the caller's operation cleanly.
type CredentialProvider interface {
	Credentials(ctx context.Context) (creds Credentials, ok bool, err error)
}

// CredentialProviderFunc adapts a function to CredentialProvider.
type CredentialProviderFunc func(ctx context.Context) (Credentials, bool, error)

// Credentials implements CredentialProvider.
func (f CredentialProviderFunc) Credentials(ctx context.Context) (Credentials, bool, error) {
	return f(ctx)
}

// LoginFunc exchanges credentials for a bearer token.
type LoginFunc func(ctx context.Context, username, password string) (string, error)

const (
	defaultTokenTTL = time.Hour
	// expiryBuffer keeps the cached expiry conservatively below the
	// real token lifetime.
	expiryBuffer = 5 * time.Minute
)

// Manager holds one sync session. Runs are serialized by the
// orchestrator, so a single mutex is all the locking required.
type Manager struct {
	login    LoginFunc
	provider CredentialProvider
	tokenTTL time.Duration
	now      func() time.Time
	logger   *zap.Logger

	mu        sync.Mutex
	state     State
	token     string
	expiresAt time.Time
	cached    *Credentials
}

// Option customizes a Manager.
type Option func(*Manager)

// WithTokenTTL sets the assumed token lifetime.
func WithTokenTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.tokenTTL = ttl }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a session manager.
func NewManager(login LoginFunc, provider CredentialProvider, opts ...Option) *Manager {
	m := &Manager{
		login:    login,
		provider: provider,
		tokenTTL: defaultTokenTTL,
		now:      time.Now,
		state:    StateNoSession,
		logger:   logger.Get().With(zap.String("component", "session")),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Invalidate drops the current token, forcing the next Ensure to log
// in again. Cached credentials are kept for silent renewal.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.state = StateExpired
}

// Ensure returns a valid bearer token, logging in when the session is
// absent or expired. ok=false without error means the credential
// prompt was cancelled and the caller should abort cleanly.
//
// Login rejection clears the cached credentials and re-prompts in a
// loop, unbounded until success or cancellation.
func (m *Manager) Ensure(ctx context.Context) (token string, ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" {
		if m.now().Before(m.expiresAt) {
			return m.token, true, nil
		}
		m.token = ""
		m.state = StateExpired
		m.logger.Info("session expired, renewing")
	}

	// Silent renewal with cached credentials first.
	if m.cached != nil {
		tok, err := m.login(ctx, m.cached.Username, m.cached.Password)
		switch {
		case err == nil:
			m.adopt(tok)
			return m.token, true, nil
		case errors.IsType(err, errors.ErrorTypeAuthentication):
			m.logger.Warn("cached credentials rejected, re-prompting")
			m.cached = nil
		default:
			return "", false, err
		}
	}

	for {
		m.state = StateAwaitingCredentials

		creds, provided, err := m.provider.Credentials(ctx)
		if err != nil {
			return "", false, err
		}
		if !provided {
			m.logger.Info("credential prompt cancelled")
			return "", false, nil
		}

		tok, err := m.login(ctx, creds.Username, creds.Password)
		if err != nil {
			if errors.IsType(err, errors.ErrorTypeAuthentication) {
				// Failed credentials are never kept.
				m.cached = nil
				m.logger.Warn("login rejected", zap.String("username", creds.Username))
				continue
			}
			return "", false, err
		}

		m.cached = &creds
		m.adopt(tok)
		return m.token, true, nil
	}
}

// adopt installs a fresh token with a conservative expiry estimate.
// Callers hold m.mu.
func (m *Manager) adopt(token string) {
	m.token = token
	m.expiresAt = m.now().Add(m.tokenTTL - expiryBuffer)
	m.state = StateAuthenticated
	m.logger.Info("session established",
		zap.Time("expires_at", m.expiresAt))
}
