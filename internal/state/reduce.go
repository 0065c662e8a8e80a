package state

import "github.com/and161185/lendclient/internal/model"

// Reduce applies e to s. It is pure: no I/O, no follow-up events.
func Reduce(s State, e Event) State {
	switch ev := e.(type) {
	case LoginSucceeded:
		s.Auth = ev.Session
		s.Auth.RequiresMFA, s.Auth.TempToken, s.Auth.MFAMethods = false, "", nil
		s.Auth.TokenExpired = false
		s.Profile = model.ProfileFromUser(ev.Session.User)
		s.OutOfSync = false
	case CredentialsSet:
		s.Auth = ev.Session
		s.Profile = model.ProfileFromUser(ev.Session.User)
		s.OutOfSync = false
	case SessionRestored:
		s.Auth = ev.Session
		s.Profile = ev.Profile
	case MFARequired:
		s.Auth = model.Session{RequiresMFA: true, TempToken: ev.TempToken, MFAMethods: ev.Methods}
		s.Profile = nil
	case TokenRefreshed:
		s.Auth.AccessToken = ev.AccessToken
		s.Auth.IsAuthenticated = ev.AccessToken != ""
		s.Auth.TokenExpired = false
	case LoggedOut:
		s = State{}
	case RefreshFailed:
		s = State{Auth: model.Session{TokenExpired: true}}
	case ProfileEdited:
		s.Profile = ev.Profile
		s.OutOfSync = true
	case AuthUserEdited:
		s.Auth.User = ev.User
		s.OutOfSync = true
	}
	return s
}

// Fix names one correction applied by Reconcile or Sweep.
type Fix string

// Corrections.
const (
	FixProfileWithoutUser  Fix = "profile_without_user"
	FixUserWithoutProfile  Fix = "user_without_profile"
	FixIDMismatch          Fix = "id_mismatch"
	FixAuthWithoutUser     Fix = "authenticated_without_user"
	FixProfileAfterSignOut Fix = "profile_after_sign_out"
	FixProfileFromNewLogin Fix = "profile_from_login"
)

// Reconcile enforces the post-transition rules for e on s and returns the
// corrected state. Edits that mark the state out of sync are left alone.
func Reconcile(s State, e Event) (State, []Fix) {
	var fixes []Fix
	switch e.(type) {
	case LoginSucceeded, CredentialsSet:
		want := model.ProfileFromUser(s.Auth.User)
		if !sameID(s.Profile, want) {
			s.Profile = want
			fixes = append(fixes, FixProfileFromNewLogin)
		}
	case LoggedOut, RefreshFailed:
		if s.Profile != nil {
			s.Profile = nil
			fixes = append(fixes, FixProfileAfterSignOut)
		}
	case SessionRestored:
		if s.Profile != nil && s.Auth.User == nil {
			s.Profile = nil
			fixes = append(fixes, FixProfileWithoutUser)
		}
	}
	return s, fixes
}

// Sweep re-checks the four slice invariants and applies one minimal fix per
// violation. It clears OutOfSync.
func Sweep(s State) (State, []Fix) {
	var fixes []Fix
	user := s.Auth.User
	switch {
	case s.Profile != nil && user == nil:
		s.Profile = nil
		fixes = append(fixes, FixProfileWithoutUser)
	case user != nil && s.Profile == nil:
		s.Profile = model.ProfileFromUser(user)
		fixes = append(fixes, FixUserWithoutProfile)
	case user != nil && s.Profile != nil && user.ID != s.Profile.ID:
		s.Profile = model.ProfileFromUser(user)
		fixes = append(fixes, FixIDMismatch)
	}
	if s.Auth.IsAuthenticated && s.Auth.User == nil {
		s.Auth.IsAuthenticated = false
		fixes = append(fixes, FixAuthWithoutUser)
	}
	s.OutOfSync = false
	return s, fixes
}

func sameID(a, b *model.UserProfile) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}
