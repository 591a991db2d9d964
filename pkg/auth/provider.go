package auth

import (
	"context"
	"errors"
	"sync"
)

// ErrNotConfigured is reported when the identity provider has no configuration.
var ErrNotConfigured = errors.New("identity provider not configured")

// Provider is the external identity service.
type Provider interface {
	// GetSession returns the existing session, if any, without prompting.
	GetSession(ctx context.Context) (Session, error)

	// OnChange registers fn for asynchronous session transitions. The returned
	// function removes the registration.
	OnChange(fn func(Event)) (unsubscribe func())

	// SignIn authenticates with email and password.
	SignIn(ctx context.Context, email, password string) error

	// SignUp registers a new account. It does not necessarily sign the user in.
	SignUp(ctx context.Context, email, password string) error

	// SignOut terminates the current session.
	SignOut(ctx context.Context) error
}

// Listeners is a registry of change callbacks. Providers embed it to
// implement OnChange. The zero value is ready to use.
type Listeners struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]func(Event)
}

// Add registers fn and returns its unsubscribe function.
func (l *Listeners) Add(fn func(Event)) func() {
	l.mu.Lock()
	if l.fns == nil {
		l.fns = make(map[int]func(Event))
	}
	id := l.nextID
	l.nextID++
	l.fns[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.fns, id)
		l.mu.Unlock()
	}
}

// Publish delivers ev to every registered callback. Callbacks run outside
// the lock so they may unsubscribe themselves.
func (l *Listeners) Publish(ev Event) {
	l.mu.Lock()
	fns := make([]func(Event), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Len returns the number of registered callbacks.
func (l *Listeners) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fns)
}
