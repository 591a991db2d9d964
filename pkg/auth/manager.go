package auth

import (
	"context"
	"log/slog"
	"sync"
)

// Manager is the single source of truth for the current user.
//
// State moves Unresolved -> {Anonymous, Authenticated} on Initialize or on the
// first change notification, then between Anonymous and Authenticated as the
// provider reports sign-in, sign-out, token refresh or session loss. It never
// returns to Unresolved.
type Manager struct {
	provider Provider

	mu      sync.RWMutex
	state   State
	session Session

	subsMu sync.Mutex
	nextID int
	subs   map[int]func(Session)
}

// NewManager creates an unresolved Manager backed by provider.
func NewManager(provider Provider) *Manager {
	return &Manager{
		provider: provider,
		subs:     make(map[int]func(Session)),
	}
}

// Initialize asks the provider once for an existing session. A provider error
// resolves to anonymous. If a change notification already resolved the state
// while the provider call was in flight, that newer session is kept.
func (m *Manager) Initialize(ctx context.Context) State {
	sess, err := m.provider.GetSession(ctx)
	if err != nil {
		slog.Warn("Failed to fetch existing session, continuing as anonymous", "error", err)
		sess = Session{}
	}
	sess = NewSession(sess.UserID, sess.AccessToken, sess.Email)

	m.mu.Lock()
	if m.state == StateUnresolved {
		m.session = sess
		m.state = stateOf(sess)
	}
	state := m.state
	m.mu.Unlock()

	slog.Info("Session initialized", "state", state)
	return state
}

// Subscribe registers onChange for session transitions reported by the
// provider or forced locally (sign-out). Each transition replaces the held
// session before onChange runs. The returned disposer must be called on
// teardown; extra calls are ignored.
func (m *Manager) Subscribe(onChange func(Session)) (dispose func()) {
	m.subsMu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = onChange
	m.subsMu.Unlock()

	unsubscribe := m.provider.OnChange(func(ev Event) {
		slog.Debug("Identity event", "kind", ev.Kind)
		m.replace(ev.Session)
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			m.subsMu.Lock()
			delete(m.subs, id)
			m.subsMu.Unlock()
		})
	}
}

// CurrentCredential returns the bearer token of the current session.
func (m *Manager) CurrentCredential() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.session.Authenticated() {
		return "", false
	}
	return m.session.AccessToken, true
}

// Current returns the held session.
func (m *Manager) Current() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// SignIn authenticates through the provider. Errors are returned for the
// caller to show; they are not retried.
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	if err := m.provider.SignIn(ctx, email, password); err != nil {
		return err
	}
	m.resync(ctx)
	return nil
}

// SignUp registers an account through the provider.
func (m *Manager) SignUp(ctx context.Context, email, password string) error {
	if err := m.provider.SignUp(ctx, email, password); err != nil {
		return err
	}
	m.resync(ctx)
	return nil
}

// SignOut asks the provider to end the session and then forces the local
// state to anonymous whatever the provider reported.
func (m *Manager) SignOut(ctx context.Context) {
	if err := m.provider.SignOut(ctx); err != nil {
		slog.Warn("Sign-out failed at identity provider, clearing local session anyway", "error", err)
	}
	m.replace(Session{})
}

// resync pulls the provider's session after a mutation, for providers that
// do not push a change event (or when nobody has subscribed yet).
func (m *Manager) resync(ctx context.Context) {
	sess, err := m.provider.GetSession(ctx)
	if err != nil {
		slog.Debug("Failed to resync session", "error", err)
		return
	}
	if sess.Authenticated() {
		m.replace(sess)
	}
}

// replace atomically swaps in sess and notifies subscribers if it changed.
func (m *Manager) replace(sess Session) {
	sess = NewSession(sess.UserID, sess.AccessToken, sess.Email)

	m.mu.Lock()
	changed := m.state == StateUnresolved || m.session != sess
	prev := m.state
	m.session = sess
	m.state = stateOf(sess)
	next := m.state
	m.mu.Unlock()

	if !changed {
		return
	}
	if prev != next {
		slog.Info("Session state changed", "from", prev, "to", next)
	}

	m.subsMu.Lock()
	fns := make([]func(Session), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subsMu.Unlock()

	for _, fn := range fns {
		fn(sess)
	}
}
