package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// fakeProvider is a scriptable identity service.
type fakeProvider struct {
	Listeners

	mu         sync.Mutex
	session    Session
	getErr     error
	signInErr  error
	signOutErr error
	signOuts   int
}

func (p *fakeProvider) GetSession(context.Context) (Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session, p.getErr
}

func (p *fakeProvider) OnChange(fn func(Event)) func() { return p.Add(fn) }

func (p *fakeProvider) SignIn(_ context.Context, email, _ string) error {
	if p.signInErr != nil {
		return p.signInErr
	}
	sess := NewSession("user-1", "token-1", email)
	p.mu.Lock()
	p.session = sess
	p.mu.Unlock()
	p.Publish(Event{Kind: EventSignedIn, Session: sess})
	return nil
}

func (p *fakeProvider) SignUp(context.Context, string, string) error { return nil }

func (p *fakeProvider) SignOut(context.Context) error {
	p.mu.Lock()
	p.signOuts++
	err := p.signOutErr
	if err == nil {
		p.session = Session{}
	}
	p.mu.Unlock()
	if err == nil {
		p.Publish(Event{Kind: EventSignedOut})
	}
	return err
}

func TestManager_InitializeExistingSession(t *testing.T) {
	p := &fakeProvider{session: NewSession("u", "tok", "a@b.c")}
	m := NewManager(p)

	if m.State() != StateUnresolved {
		t.Fatalf("new manager state = %v, want unresolved", m.State())
	}
	if got := m.Initialize(context.Background()); got != StateAuthenticated {
		t.Fatalf("Initialize = %v, want authenticated", got)
	}
	tok, ok := m.CurrentCredential()
	if !ok || tok != "tok" {
		t.Errorf("CurrentCredential = %q, %v", tok, ok)
	}
}

func TestManager_InitializeProviderErrorIsAnonymous(t *testing.T) {
	p := &fakeProvider{session: NewSession("u", "tok", ""), getErr: errors.New("network down")}
	m := NewManager(p)

	if got := m.Initialize(context.Background()); got != StateAnonymous {
		t.Fatalf("Initialize = %v, want anonymous", got)
	}
	if _, ok := m.CurrentCredential(); ok {
		t.Error("expected no credential after failed initialize")
	}
}

func TestManager_SubscribeAppliesEvents(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{}
	m := NewManager(p)
	m.Initialize(ctx)

	var seen []Session
	dispose := m.Subscribe(func(s Session) { seen = append(seen, s) })
	defer dispose()

	p.Publish(Event{Kind: EventSignedIn, Session: NewSession("u1", "t1", "x@y.z")})
	if tok, _ := m.CurrentCredential(); tok != "t1" {
		t.Fatalf("credential after sign-in = %q, want t1", tok)
	}

	p.Publish(Event{Kind: EventTokenRefreshed, Session: NewSession("u1", "t2", "x@y.z")})
	if tok, _ := m.CurrentCredential(); tok != "t2" {
		t.Fatalf("credential after refresh = %q, want t2", tok)
	}

	p.Publish(Event{Kind: EventSignedOut})
	if m.State() != StateAnonymous {
		t.Fatalf("state after external sign-out = %v", m.State())
	}

	if len(seen) != 3 {
		t.Errorf("expected 3 notifications, got %d", len(seen))
	}
}

func TestManager_PartialSessionIsAnonymous(t *testing.T) {
	p := &fakeProvider{}
	m := NewManager(p)
	m.Initialize(context.Background())
	dispose := m.Subscribe(func(Session) {})
	defer dispose()

	p.Publish(Event{Kind: EventUserUpdated, Session: Session{UserID: "u-only"}})
	if m.State() != StateAnonymous {
		t.Errorf("state = %v, want anonymous", m.State())
	}
	if m.Current() != (Session{}) {
		t.Errorf("partial session leaked: %+v", m.Current())
	}
}

func TestManager_DisposeStopsNotifications(t *testing.T) {
	p := &fakeProvider{}
	m := NewManager(p)
	m.Initialize(context.Background())

	calls := 0
	dispose := m.Subscribe(func(Session) { calls++ })
	dispose()
	dispose()

	if p.Len() != 0 {
		t.Errorf("provider still has %d listeners after dispose", p.Len())
	}
	p.Publish(Event{Kind: EventSignedIn, Session: NewSession("u", "t", "")})
	if calls != 0 {
		t.Errorf("disposed subscriber called %d times", calls)
	}
}

func TestManager_SignOutIsLocallyAuthoritative(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{
		session:    NewSession("u", "tok", ""),
		signOutErr: errors.New("remote sign-out failed"),
	}
	m := NewManager(p)
	m.Initialize(ctx)

	notified := false
	dispose := m.Subscribe(func(s Session) { notified = !s.Authenticated() })
	defer dispose()

	m.SignOut(ctx)

	if _, ok := m.CurrentCredential(); ok {
		t.Error("credential still present after sign-out")
	}
	if m.State() != StateAnonymous {
		t.Errorf("state = %v, want anonymous", m.State())
	}
	if !notified {
		t.Error("subscriber not told about forced sign-out")
	}
	if p.signOuts != 1 {
		t.Errorf("provider SignOut called %d times, want 1", p.signOuts)
	}
}

func TestManager_SignInWithoutSubscriber(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{}
	m := NewManager(p)
	m.Initialize(ctx)

	if err := m.SignIn(ctx, "a@b.c", "pw"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if m.State() != StateAuthenticated {
		t.Errorf("state = %v, want authenticated", m.State())
	}
	if m.Current().Email != "a@b.c" {
		t.Errorf("email = %q", m.Current().Email)
	}
}

func TestManager_SignInErrorSurfaces(t *testing.T) {
	ctx := context.Background()
	want := errors.New("Invalid login credentials")
	m := NewManager(&fakeProvider{signInErr: want})
	m.Initialize(ctx)

	if err := m.SignIn(ctx, "a@b.c", "bad"); !errors.Is(err, want) {
		t.Fatalf("SignIn err = %v, want %v", err, want)
	}
	if m.State() != StateAnonymous {
		t.Errorf("state = %v, want anonymous", m.State())
	}
}

func TestGuestProvider(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewGuestProvider())

	if got := m.Initialize(ctx); got != StateAnonymous {
		t.Fatalf("Initialize = %v, want anonymous", got)
	}
	if err := m.SignIn(ctx, "a@b.c", "pw"); err != nil {
		t.Errorf("SignIn: %v", err)
	}
	if err := m.SignUp(ctx, "a@b.c", "pw"); err != nil {
		t.Errorf("SignUp: %v", err)
	}
	if m.State() != StateAnonymous {
		t.Errorf("guest provider produced state %v", m.State())
	}
	dispose := m.Subscribe(func(Session) {})
	dispose()
	m.SignOut(ctx)
	if _, ok := m.CurrentCredential(); ok {
		t.Error("guest has a credential")
	}
}

func TestNewSessionIsAllOrNothing(t *testing.T) {
	if NewSession("u", "", "e").Authenticated() {
		t.Error("session without token should be anonymous")
	}
	if NewSession("", "t", "e") != (Session{}) {
		t.Error("session without user should be the zero session")
	}
	if !NewSession("u", "t", "").Authenticated() {
		t.Error("email is optional")
	}
}
