// Package supabase implements auth.Provider on top of Supabase Auth (GoTrue).
package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nstogner/ragchat/pkg/auth"
	"github.com/nstogner/ragchat/pkg/store"
)

// Tokens are refreshed this long before they expire.
const refreshMargin = 60 * time.Second

// Provider keeps the signed-in session in a durable slot so it survives
// restarts, and refreshes the access token in the background.
type Provider struct {
	auth.Listeners

	api  authAPI
	slot store.Slot
	now  func() time.Time

	mu      sync.Mutex
	current *grant
	loaded  bool
	timer   *time.Timer
	closed  bool
	// retry paces background refreshes after transient failures. It is
	// reset at the first failure and abandoned on success.
	retry    *backoff.ExponentialBackOff
	retrying bool
}

var _ auth.Provider = (*Provider)(nil)

// New creates a Provider for the Supabase project at projectURL.
func New(projectURL, anonKey string, slot store.Slot) *Provider {
	return newProvider(newGoTrueAPI(projectURL, anonKey), slot)
}

func newProvider(api authAPI, slot store.Slot) *Provider {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = time.Second
	retry.MaxInterval = 15 * time.Second
	// Give up around the time the access token would expire.
	retry.MaxElapsedTime = refreshMargin
	return &Provider{
		api:   api,
		slot:  slot,
		now:   time.Now,
		retry: retry,
	}
}

// GetSession restores the persisted session, refreshing it first if the
// access token has expired.
func (p *Provider) GetSession(ctx context.Context) (auth.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.loaded {
		p.current = p.loadLocked(ctx)
		p.loaded = true
	}
	if p.current == nil {
		return auth.Session{}, nil
	}

	if !p.now().Add(refreshMargin).Before(p.current.ExpiresAt) {
		g, err := p.api.Refresh(p.current.RefreshToken)
		if err != nil {
			p.clearLocked(ctx)
			return auth.Session{}, fmt.Errorf("refresh expired session: %w", err)
		}
		p.setLocked(ctx, g)
	} else {
		p.scheduleLocked()
	}

	return sessionOf(p.current), nil
}

func (p *Provider) OnChange(fn func(auth.Event)) func() {
	return p.Add(fn)
}

func (p *Provider) SignIn(ctx context.Context, email, password string) error {
	g, err := p.api.SignIn(email, password)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.loaded = true
	p.setLocked(ctx, g)
	sess := sessionOf(p.current)
	p.mu.Unlock()

	slog.Info("Signed in", "userID", sess.UserID)
	p.Publish(auth.Event{Kind: auth.EventSignedIn, Session: sess})
	return nil
}

// SignUp registers the account. Supabase sends a verification email; the
// user is not signed in until they confirm and sign in.
func (p *Provider) SignUp(_ context.Context, email, password string) error {
	return p.api.SignUp(email, password)
}

// SignOut clears the local session and revokes it remotely. The local state
// is cleared even when the remote call fails; that error is returned.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	prev := p.current
	p.loaded = true
	p.clearLocked(ctx)
	p.mu.Unlock()

	var err error
	if prev != nil {
		err = p.api.Logout(prev.AccessToken)
	}
	p.Publish(auth.Event{Kind: auth.EventSignedOut})
	return err
}

// Close stops the background refresh.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	return nil
}

func (p *Provider) refresh() {
	ctx := context.Background()

	p.mu.Lock()
	if p.closed || p.current == nil {
		p.mu.Unlock()
		return
	}
	g, err := p.api.Refresh(p.current.RefreshToken)
	if errors.Is(err, errTransient) {
		if !p.retrying {
			p.retry.Reset()
			p.retrying = true
		}
		if d := p.retry.NextBackOff(); d != backoff.Stop {
			slog.Warn("Token refresh failed, retrying", "in", d, "error", err)
			p.timer = time.AfterFunc(d, p.refresh)
			p.mu.Unlock()
			return
		}
	}
	if err != nil {
		slog.Warn("Token refresh failed, session lost", "error", err)
		p.clearLocked(ctx)
		p.mu.Unlock()
		p.Publish(auth.Event{Kind: auth.EventSignedOut})
		return
	}
	p.setLocked(ctx, g)
	sess := sessionOf(p.current)
	p.mu.Unlock()

	slog.Debug("Access token refreshed", "userID", sess.UserID)
	p.Publish(auth.Event{Kind: auth.EventTokenRefreshed, Session: sess})
}

func (p *Provider) setLocked(ctx context.Context, g *grant) {
	p.current = g
	p.retrying = false
	data, err := json.Marshal(g)
	if err == nil {
		err = p.slot.Save(ctx, store.SessionKey, data)
	}
	if err != nil {
		slog.Warn("Failed to persist session", "error", err)
	}
	p.scheduleLocked()
}

func (p *Provider) clearLocked(ctx context.Context) {
	p.current = nil
	p.retrying = false
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if err := p.slot.Delete(ctx, store.SessionKey); err != nil {
		slog.Warn("Failed to delete persisted session", "error", err)
	}
}

func (p *Provider) scheduleLocked() {
	if p.closed || p.current == nil {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	d := p.current.ExpiresAt.Sub(p.now()) - refreshMargin
	if d < 0 {
		d = 0
	}
	p.timer = time.AfterFunc(d, p.refresh)
}

func (p *Provider) loadLocked(ctx context.Context) *grant {
	data, err := p.slot.Load(ctx, store.SessionKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("Failed to read persisted session", "error", err)
		}
		return nil
	}
	var g grant
	if err := json.Unmarshal(data, &g); err != nil || g.AccessToken == "" || g.UserID == "" {
		slog.Warn("Discarding invalid persisted session", "error", err)
		return nil
	}
	return &g
}

func sessionOf(g *grant) auth.Session {
	if g == nil {
		return auth.Session{}
	}
	return auth.NewSession(g.UserID, g.AccessToken, g.Email)
}
