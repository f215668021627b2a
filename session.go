package sessionx

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Credentials are the login form values sent to the authentication service.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResult is the authentication service's answer to a successful login.
type LoginResult struct {
	Token   string
	Profile Profile
	Message string
}

// Authenticator is the backend authentication collaborator.
type Authenticator interface {
	Login(ctx context.Context, creds Credentials) (*LoginResult, error)
	WhoAmI(ctx context.Context) (Profile, error)
}

// Revoker is implemented by authenticators that can end the session on the
// server side as well.
type Revoker interface {
	Revoke(ctx context.Context) error
}

// Snapshot is the session state as seen by one consumer at one instant.
type Snapshot struct {
	Token         string
	Profile       Profile
	Authenticated bool
}

// Manager owns the in-memory session and keeps the credential store in step
// with it. Stored tokens are re-validated on every read: a token known to be
// stale is dropped (memory and store) before anyone can act on it.
type Manager struct {
	mu        sync.Mutex
	store     *CredentialStore
	auth      Authenticator
	validator TokenValidator
	notifier  Notifier
	logger    *slog.Logger
	refresh   singleflight.Group

	token   string
	profile Profile
}

// ManagerOption customises a Manager.
type ManagerOption func(*Manager)

// WithValidator sets the token validator, mostly to pin the clock in tests.
func WithValidator(v TokenValidator) ManagerOption {
	return func(m *Manager) {
		m.validator = v
	}
}

// WithNotifier sets the sink for login and logout notifications.
func WithNotifier(n Notifier) ManagerOption {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager builds a manager and hydrates it once from store. auth may be
// nil for read-only use. A stale stored token is kept until its first read,
// so the guard can still tell an expired session from a missing one.
func NewManager(ctx context.Context, store *CredentialStore, auth Authenticator, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:    store,
		auth:     auth,
		notifier: nopNotifier{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.hydrate(ctx)
	return m
}

func (m *Manager) hydrate(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, ok := m.store.Get(ctx)
	if !ok {
		return
	}
	m.token, m.profile = cred.Token, cred.Profile
	m.logger.DebugContext(ctx, "session restored",
		"user", m.profile.String(),
		"expired", m.validator.IsExpired(cred.Token),
	)
}

// Snapshot returns the current session. An expired token is discarded first.
func (m *Manager) Snapshot(ctx context.Context) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token != "" && m.validator.IsExpired(m.token) {
		_ = m.invalidateLocked(ctx, "token expired")
	}
	return m.snapshotLocked()
}

// Authenticated reports whether a fresh token is held.
func (m *Manager) Authenticated(ctx context.Context) bool {
	return m.Snapshot(ctx).Authenticated
}

// Peek returns the raw session state without validating or mutating it.
// Guards use it to tell "no token" apart from "token expired".
func (m *Manager) Peek() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{
		Token:         m.token,
		Profile:       m.profile.Clone(),
		Authenticated: m.token != "",
	}
}

// Validator returns the validator the manager applies on every read.
func (m *Manager) Validator() TokenValidator {
	return m.validator
}

// Login authenticates against the backend and, on success, persists and
// adopts the returned credential. On failure the session is left untouched
// and the error is returned as is.
func (m *Manager) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	if m.auth == nil {
		return nil, ErrNoAuthenticator
	}
	res, err := m.auth.Login(ctx, creds)
	if err != nil {
		return nil, err
	}
	if res == nil || res.Token == "" {
		return nil, withMessage(ErrCodeDomain, "", ErrEmptyToken)
	}
	profile := res.Profile.Clone()
	if profile == nil {
		profile = Profile{}
	}

	m.mu.Lock()
	if err := m.store.Set(ctx, res.Token, profile); err != nil {
		m.restoreLocked(ctx)
		m.mu.Unlock()
		return nil, err
	}
	m.token, m.profile = res.Token, profile
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "logged in", "user", profile.String())
	m.notifier.Notify(ctx, SeveritySuccess, "Login successful")
	return res, nil
}

// restoreLocked rewrites the previous credential after a failed store write
// so storage does not keep half of the new one.
func (m *Manager) restoreLocked(ctx context.Context) {
	var err error
	if m.token == "" {
		err = m.store.Clear(ctx)
	} else {
		err = m.store.Set(ctx, m.token, m.profile)
	}
	if err != nil {
		m.logger.ErrorContext(ctx, "restore credential after failed write", "error", err)
	}
}

// RefreshProfile fetches the current principal and replaces the stored
// profile; the token is kept. Concurrent calls share one backend request.
func (m *Manager) RefreshProfile(ctx context.Context) (Profile, error) {
	if m.auth == nil {
		return nil, ErrNoAuthenticator
	}
	v, err, _ := m.refresh.Do("whoami", func() (any, error) {
		// Shared by every collapsed caller; one caller giving up must not
		// fail the rest.
		ctx := context.WithoutCancel(ctx)
		profile, err := m.auth.WhoAmI(ctx)
		if err != nil {
			return nil, err
		}
		if profile == nil {
			profile = Profile{}
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		if m.token == "" {
			return nil, newError(ErrCodeUnauthenticated, nil)
		}
		if err := m.store.SetProfile(ctx, profile); err != nil {
			return nil, err
		}
		m.profile = profile.Clone()
		return profile, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Profile).Clone(), nil
}

// Logout ends the session. It always leaves the manager anonymous and is
// safe to call repeatedly. A Revoker authenticator is asked to end the
// server-side session first; its failure is logged and ignored.
func (m *Manager) Logout(ctx context.Context) error {
	if r, ok := m.auth.(Revoker); ok && m.Peek().Token != "" {
		if err := r.Revoke(Silent(ctx)); err != nil {
			m.logger.WarnContext(ctx, "server-side logout failed", "error", err)
		}
	}

	m.mu.Lock()
	m.token, m.profile = "", nil
	err := m.store.Clear(ctx)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "logged out")
	m.notifier.Notify(ctx, SeveritySuccess, "Logged out")
	return nil
}

// Invalidate drops the session without notifying the user. Callers that
// react to an authorization failure own the single notification.
func (m *Manager) Invalidate(ctx context.Context, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.invalidateLocked(ctx, reason)
}

func (m *Manager) invalidateLocked(ctx context.Context, reason string) error {
	m.token, m.profile = "", nil
	if err := m.store.Clear(ctx); err != nil {
		m.logger.ErrorContext(ctx, "clear credentials", "reason", reason, "error", err)
		return err
	}
	m.logger.InfoContext(ctx, "session invalidated", "reason", reason)
	return nil
}
