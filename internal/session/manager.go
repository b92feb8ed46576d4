// Package session holds the authenticated identity: the bearer token and the
// user profile learned at login.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/labtrack/labtrack-client/internal/domain"
	"github.com/labtrack/labtrack-client/internal/transport"
	apperrors "github.com/labtrack/labtrack-client/pkg/errors"
	"github.com/labtrack/labtrack-client/pkg/logger"
	"github.com/labtrack/labtrack-client/pkg/validation"
)

const loginPath = "/auth/login"

// API is the subset of the transport the session needs.
type API interface {
	Post(ctx context.Context, path string, body any) (*transport.Envelope, error)
}

// Option configures a Manager
type Option func(*Manager)

// WithOnExpired sets the hook run after a 401 tore the session down.
func WithOnExpired(fn func()) Option {
	return func(m *Manager) { m.onExpired = fn }
}

// WithClock overrides time.Now for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager owns the token and current user.
type Manager struct {
	api       API
	storage   Storage
	logger    *logger.Logger
	now       func() time.Time
	onExpired func()

	mu    sync.RWMutex
	token string
	user  *domain.User
}

// NewManager creates a session manager. Call Hydrate to restore a persisted
// session.
func NewManager(api API, storage Storage, log *logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		api:     api,
		storage: storage,
		logger:  log.WithComponent("session"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Hydrate restores token and user from storage.
func (m *Manager) Hydrate() {
	token, _ := m.storage.Get(KeyToken)

	var user *domain.User
	if raw, ok := m.storage.Get(KeyUser); ok && raw != "" {
		var u domain.User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			m.logger.Warn().Err(err).Msg("discarding corrupt stored user")
			if err := m.storage.Delete(KeyUser); err != nil {
				m.logger.Error().Err(err).Msg("failed to delete stored user")
			}
		} else {
			user = &u
		}
	}

	if token != "" && tokenExpired(token, m.now()) {
		m.logger.Info().Msg("stored token has expired")
		m.clear()
		return
	}

	m.mu.Lock()
	m.token = token
	m.user = user
	m.mu.Unlock()
}

// loginData accepts the profile either nested under "user" or flat next to
// the token.
type loginData struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

// Login authenticates and persists the returned token and profile.
func (m *Manager) Login(ctx context.Context, username, password string) (*domain.User, error) {
	req := domain.LoginRequest{Username: username, Password: password}
	if err := validation.Validate(req); err != nil {
		return nil, err
	}

	env, err := m.api.Post(ctx, loginPath, req)
	if err != nil {
		return nil, err
	}

	data, err := transport.Decode[loginData](env)
	if err != nil {
		return nil, err
	}
	if data.Token == "" {
		return nil, apperrors.ShapeMismatch("login response carries no token")
	}

	user := data.User
	if user == nil {
		var flat domain.User
		if err := json.Unmarshal(env.Data, &flat); err == nil && flat.Username != "" {
			user = &flat
		}
	}
	if user == nil {
		user = &domain.User{Username: username, Role: domain.RoleUser}
	}

	m.mu.Lock()
	m.token = data.Token
	m.user = user
	m.mu.Unlock()

	if err := m.persist(data.Token, user); err != nil {
		m.logger.WithError(err).Error().Msg("failed to persist session")
	}

	m.logger.WithUser(user.Username).Info().Str("role", user.Role).Msg("logged in")
	return user, nil
}

// Logout forgets the session locally.
func (m *Manager) Logout() {
	m.clear()
	m.logger.Info().Msg("logged out")
}

// HandleUnauthorized tears the session down after the server rejected the
// token, then runs the OnExpired hook.
func (m *Manager) HandleUnauthorized() {
	m.clear()
	m.logger.Warn().Msg("session expired")
	if m.onExpired != nil {
		m.onExpired()
	}
}

// Token returns the bearer token, empty when logged out.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// CurrentUser returns a copy of the logged-in user, or nil.
func (m *Manager) CurrentUser() *domain.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// RoleName returns the display name of the current role.
func (m *Manager) RoleName() string {
	return m.CurrentUser().RoleName()
}

func (m *Manager) IsAuthenticated() bool {
	return m.Token() != ""
}

func (m *Manager) persist(token string, user *domain.User) error {
	if err := m.storage.Set(KeyToken, token); err != nil {
		return err
	}
	raw, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return m.storage.Set(KeyUser, string(raw))
}

func (m *Manager) clear() {
	m.mu.Lock()
	m.token = ""
	m.user = nil
	m.mu.Unlock()

	for _, key := range []string{KeyToken, KeyUser} {
		if err := m.storage.Delete(key); err != nil {
			m.logger.Error().Err(err).Str("key", key).Msg("failed to clear stored session")
		}
	}
}
