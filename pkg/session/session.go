// Package session tracks who the CLI is acting as. A Manager owns the
// session state and its persisted cookie; a Guard reacts to rejected
// sessions by clearing them and sending the user to the login flow.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/otherjamesbrown/minutes-cli/client"
	"github.com/otherjamesbrown/minutes-cli/credentials"
	mferrors "github.com/otherjamesbrown/minutes-cli/pkg/errors"
	"github.com/otherjamesbrown/minutes-cli/pkg/logging"
)

// State is a snapshot of the session.
type State struct {
	IsAuthenticated bool         `json:"is_authenticated" yaml:"is_authenticated"`
	User            *client.User `json:"user,omitempty" yaml:"user,omitempty"`
}

// API is the part of the HTTP client the session needs.
type API interface {
	ServerURL() string
	Me(ctx context.Context) (*client.User, error)
	Login(ctx context.Context, username, password string) (*client.LoginResult, error)
	Logout(ctx context.Context) error
	SetSession(value string)
	SessionCookie() (string, bool)
	ClearSession()
}

// Store persists the session cookie between invocations.
type Store interface {
	Save(creds *credentials.Credentials) error
	Delete() error
	GetActiveCredential(serverURL string) (*credentials.Credentials, error)
}

// Manager owns the session state. It is safe for concurrent use.
type Manager struct {
	api    API
	store  Store
	logger logging.Logger

	mu    sync.RWMutex
	state State
}

// Option configures a Manager.
type Option func(*Manager)

// WithStore persists sessions through store.
func WithStore(store Store) Option {
	return func(m *Manager) { m.store = store }
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager returns a manager with an unauthenticated session.
func NewManager(api API, opts ...Option) *Manager {
	m := &Manager{api: api, logger: logging.NewNopLogger()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Restore loads the persisted session cookie into the client without asking
// the server about it. It reports whether a cookie is now set. An expired
// stored session is destroyed.
func (m *Manager) Restore() bool {
	if m.store != nil {
		creds, err := m.store.GetActiveCredential(m.api.ServerURL())
		switch {
		case err == nil:
			m.api.SetSession(creds.SessionID)
		case errors.Is(err, credentials.ErrExpiredSession):
			m.logger.Debug("Stored session expired")
			m.Destroy()
			return false
		case errors.Is(err, credentials.ErrNoCredentials):
		default:
			m.logger.Warn("Loading stored session failed", logging.Err(err))
		}
	}
	_, ok := m.api.SessionCookie()
	return ok
}

// Start restores any persisted session and checks it against the server.
// A rejected session is destroyed and Start returns an unauthenticated state
// without error; transport failures are returned.
func (m *Manager) Start(ctx context.Context) (State, error) {
	if !m.Restore() {
		m.setState(State{})
		return m.Current(), nil
	}

	user, err := m.api.Me(ctx)
	if err != nil {
		if mferrors.IsAuthRequired(err) {
			m.Destroy()
			return m.Current(), nil
		}
		return m.Current(), err
	}
	m.setState(State{IsAuthenticated: true, User: user})
	return m.Current(), nil
}

// Login authenticates, persists the new session and refreshes the state.
func (m *Manager) Login(ctx context.Context, username, password string) (*client.User, error) {
	result, err := m.api.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}

	if m.store != nil {
		creds := &credentials.Credentials{
			ServerURL: m.api.ServerURL(),
			SessionID: result.SessionID,
			Username:  result.User.Username,
			Email:     result.User.Email,
			ExpiresAt: result.ExpiresAt,
		}
		if err := m.store.Save(creds); err != nil {
			return result.User, fmt.Errorf("saving session: %w", err)
		}
	}

	m.setState(State{IsAuthenticated: true, User: result.User})
	m.logger.Info("Logged in", logging.F("username", result.User.Username))
	return result.User, nil
}

// Logout ends the server session and destroys the local one. The local
// session is destroyed even if the server call fails.
func (m *Manager) Logout(ctx context.Context) error {
	err := m.api.Logout(ctx)
	m.Destroy()
	if err != nil {
		m.logger.Warn("Server logout failed", logging.Err(err))
		return err
	}
	return nil
}

// Destroy forgets the session locally: state, cookie jar and stored cookie.
func (m *Manager) Destroy() {
	m.setState(State{})
	m.api.ClearSession()
	if m.store != nil {
		if err := m.store.Delete(); err != nil {
			m.logger.Warn("Removing stored session failed", logging.Err(err))
		}
	}
}

// Current returns a copy of the session state.
func (m *Manager) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.state
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}
