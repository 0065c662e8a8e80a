// Package state holds the in-memory auth and profile slices and keeps them
// consistent after every transition.
package state

import "github.com/and161185/lendclient/internal/model"

// State is the store snapshot.
type State struct {
	Auth      model.Session
	Profile   *model.UserProfile
	OutOfSync bool // set by user edits, cleared by Sweep
}

// Event is a state transition request.
type Event interface{ eventName() string }

// LoginSucceeded replaces the auth slice after login or MFA completion.
type LoginSucceeded struct{ Session model.Session }

// CredentialsSet replaces the auth slice from an external source (e.g. import).
type CredentialsSet struct{ Session model.Session }

// SessionRestored hydrates both slices from persistent storage.
type SessionRestored struct {
	Session model.Session
	Profile *model.UserProfile
}

// MFARequired records a pending second factor.
type MFARequired struct {
	TempToken string
	Methods   []string
}

// TokenRefreshed stores a new access token.
type TokenRefreshed struct{ AccessToken string }

// LoggedOut clears everything.
type LoggedOut struct{}

// RefreshFailed clears everything after the refresh token was rejected.
type RefreshFailed struct{}

// ProfileEdited replaces the profile slice on user request.
type ProfileEdited struct{ Profile *model.UserProfile }

// AuthUserEdited replaces the auth user (e.g. after /auth/me).
type AuthUserEdited struct{ User *model.User }

func (LoginSucceeded) eventName() string  { return "login_succeeded" }
func (CredentialsSet) eventName() string  { return "credentials_set" }
func (SessionRestored) eventName() string { return "session_restored" }
func (MFARequired) eventName() string     { return "mfa_required" }
func (TokenRefreshed) eventName() string  { return "token_refreshed" }
func (LoggedOut) eventName() string       { return "logged_out" }
func (RefreshFailed) eventName() string   { return "refresh_failed" }
func (ProfileEdited) eventName() string   { return "profile_edited" }
func (AuthUserEdited) eventName() string  { return "auth_user_edited" }

// EventName returns a stable name for logging.
func EventName(e Event) string { return e.eventName() }
