package identity

import "time"

// Phase enumerates the identity lifecycle states.
type Phase string

const (
	// PhaseGuest indicates an anonymous session attributed by sessionId.
	PhaseGuest Phase = "guest"
	// PhaseAuthenticating is the transient state during a sign-in or sign-up call.
	PhaseAuthenticating Phase = "authenticating"
	// PhaseAuthenticated indicates a bearer token is held.
	PhaseAuthenticated Phase = "authenticated"
)

// User is the provider-issued account profile.
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// Session is the credential bundle issued by the identity provider.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         User
}

// Expired reports whether the session's access token has lapsed at the given
// instant. A zero expiry means the provider did not communicate one and the
// token is treated as live.
func (s Session) Expired(now time.Time) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.ExpiresAt)
}

// Record is the persisted identity state, the browser-storage analogue. Only
// the session id survives a guest reload; token fields are empty for guests.
type Record struct {
	SessionID        string
	AccessToken      string
	RefreshToken     string
	ExpiresAtSeconds int64
	UserID           string
	UserEmail        string
	UserCreatedAt    time.Time
}
