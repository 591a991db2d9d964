package auth

import (
	"context"
	"log/slog"
	"sync"
)

var guestWarning sync.Once

// GuestProvider stands in for the identity service when it is not configured.
// It always reports the anonymous session and treats every mutation as a no-op,
// so the client runs in guest mode instead of failing to start.
type GuestProvider struct{}

var _ Provider = GuestProvider{}

// NewGuestProvider returns the guest-mode provider. The first call in a
// process logs a warning.
func NewGuestProvider() GuestProvider {
	guestWarning.Do(func() {
		slog.Warn("Identity provider is not configured. Running in guest-only mode.")
	})
	return GuestProvider{}
}

func (GuestProvider) GetSession(context.Context) (Session, error) { return Session{}, nil }

func (GuestProvider) OnChange(func(Event)) func() { return func() {} }

func (GuestProvider) SignIn(context.Context, string, string) error { return nil }

func (GuestProvider) SignUp(context.Context, string, string) error { return nil }

func (GuestProvider) SignOut(context.Context) error { return nil }
