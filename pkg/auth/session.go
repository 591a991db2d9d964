// Package auth tracks who the current user is. A Manager holds the session
// reported by an identity Provider and hands out the bearer credential that
// outbound requests attach.
package auth

// Session is the authenticated identity, or its absence. The zero value is
// the anonymous session.
type Session struct {
	UserID      string
	AccessToken string
	Email       string
}

// NewSession builds a session from provider data. Identity is all or nothing:
// if either the user ID or the access token is missing the result is anonymous.
func NewSession(userID, accessToken, email string) Session {
	if userID == "" || accessToken == "" {
		return Session{}
	}
	return Session{UserID: userID, AccessToken: accessToken, Email: email}
}

// Authenticated reports whether s carries an identity.
func (s Session) Authenticated() bool {
	return s.UserID != "" && s.AccessToken != ""
}

// State is the lifecycle position of the session manager.
type State int

const (
	StateUnresolved State = iota
	StateAnonymous
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnresolved:
		return "unresolved"
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

func stateOf(s Session) State {
	if s.Authenticated() {
		return StateAuthenticated
	}
	return StateAnonymous
}

// EventKind names an identity transition pushed by a Provider.
type EventKind string

const (
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
	EventUserUpdated    EventKind = "USER_UPDATED"
)

// Event is one session change notification. Session is the complete new
// session; it replaces the previous one.
type Event struct {
	Kind    EventKind
	Session Session
}
