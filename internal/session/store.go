// Package session persists the client session over a storage backend and
// checks it for consistency on the way back in.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/and161185/lendclient/internal/access"
	"github.com/and161185/lendclient/internal/logger"
	"github.com/and161185/lendclient/internal/model"
	"github.com/and161185/lendclient/internal/storage"
	"github.com/and161185/lendclient/internal/token"
	"go.uber.org/zap"
)

// Storage keys.
const (
	KeyAuthState         = "authState"
	KeyAuthToken         = "authToken"
	KeyRefreshToken      = "refreshToken"
	KeyRoles             = "user_roles"
	KeyPermissions       = "user_permissions"
	KeyPermissionSummary = "user_permission_summary"
	KeyUserState         = "userState"
)

// Keys lists every key the store owns.
var Keys = []string{
	KeyAuthState, KeyAuthToken, KeyRefreshToken, KeyRoles,
	KeyPermissions, KeyPermissionSummary, KeyUserState,
}

// Store reads and writes the session. Storage failures never escape it:
// they are logged and treated as missing data.
type Store struct {
	st  storage.Storage
	log *zap.Logger
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// New constructs a Store over st.
func New(st storage.Storage, log *zap.Logger, opts ...Option) *Store {
	s := &Store{st: st, log: logger.OrNop(log), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) get(ctx context.Context, key string) (string, bool) {
	v, ok, err := s.st.Get(ctx, key)
	if err != nil {
		s.log.Warn("storage read failed", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return v, ok
}

func (s *Store) set(ctx context.Context, key, value string) {
	if err := s.st.Set(ctx, key, value); err != nil {
		s.log.Warn("storage write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *Store) remove(ctx context.Context, key string) {
	if err := s.st.Remove(ctx, key); err != nil {
		s.log.Warn("storage remove failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *Store) setJSON(ctx context.Context, key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Warn("storage encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	s.set(ctx, key, string(b))
}

// getString reads a JSON string value. Bare (unquoted) values written by
// older clients are accepted as-is.
func (s *Store) getString(ctx context.Context, key string) (string, bool, error) {
	raw, ok := s.get(ctx, key)
	if !ok {
		return "", false, nil
	}
	if !strings.HasPrefix(raw, `"`) {
		return raw, true, nil
	}
	var v string
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Store) getStrings(ctx context.Context, key string) ([]string, error) {
	raw, ok := s.get(ctx, key)
	if !ok {
		return nil, nil
	}
	var v []string
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Load restores the session. Independently stored tokens take precedence over
// the serialized blob; an expired token clears storage and yields a session
// with TokenExpired set; any parse failure clears storage.
func (s *Store) Load(ctx context.Context) model.Session {
	sess, err := s.load(ctx)
	if err != nil {
		s.log.Warn("session load failed, clearing storage", zap.Error(err))
		s.Clear(ctx)
		return model.Session{}
	}
	if sess.AccessToken != "" && token.IsExpired(sess.AccessToken, s.now()) {
		s.log.Info("stored token expired, clearing storage")
		s.Clear(ctx)
		return model.Session{TokenExpired: true}
	}
	return sess
}

func (s *Store) load(ctx context.Context) (model.Session, error) {
	tok, hasTok, err := s.getString(ctx, KeyAuthToken)
	if err != nil {
		return model.Session{}, err
	}
	ref, hasRef, err := s.getString(ctx, KeyRefreshToken)
	if err != nil {
		return model.Session{}, err
	}
	roles, err := s.getStrings(ctx, KeyRoles)
	if err != nil {
		return model.Session{}, err
	}
	perms, err := s.getStrings(ctx, KeyPermissions)
	if err != nil {
		return model.Session{}, err
	}
	var summary json.RawMessage
	if raw, ok := s.get(ctx, KeyPermissionSummary); ok {
		if !json.Valid([]byte(raw)) {
			return model.Session{}, errors.New("permission summary is not valid JSON")
		}
		summary = json.RawMessage(raw)
	}

	blob, hasBlob := s.get(ctx, KeyAuthState)
	if !hasBlob {
		if !hasTok || tok == "" {
			return model.Session{}, nil
		}
		return model.Session{
			AccessToken:       tok,
			RefreshToken:      ref,
			IsAuthenticated:   true,
			Roles:             access.ParseRoles(roles),
			Permissions:       access.ParsePermissions(perms),
			PermissionSummary: summary,
		}, nil
	}

	var sess model.Session
	if err := json.Unmarshal([]byte(blob), &sess); err != nil {
		return model.Session{}, err
	}
	mismatch := false
	if tok != sess.AccessToken {
		sess.AccessToken = tok
		mismatch = true
	}
	if hasRef && ref != sess.RefreshToken {
		sess.RefreshToken = ref
		mismatch = true
	}
	if mismatch {
		s.log.Info("stored tokens differ from session blob, using stored tokens")
		sess.IsAuthenticated = sess.AccessToken != ""
	}
	if sess.Roles.Len() == 0 && len(roles) > 0 {
		sess.Roles = access.ParseRoles(roles)
	}
	if sess.Permissions.Len() == 0 && len(perms) > 0 {
		sess.Permissions = access.ParsePermissions(perms)
	}
	if len(sess.PermissionSummary) == 0 {
		sess.PermissionSummary = summary
	}
	return sess, nil
}

// Save persists sess. A session with no access token that is not mid-MFA is
// a logout: every key is removed. An unauthenticated session that still
// holds its token is kept as is.
func (s *Store) Save(ctx context.Context, sess model.Session) {
	if sess.AccessToken == "" && !sess.RequiresMFA {
		s.Clear(ctx)
		return
	}
	s.putString(ctx, KeyAuthToken, sess.AccessToken)
	s.putString(ctx, KeyRefreshToken, sess.RefreshToken)
	s.putList(ctx, KeyRoles, sess.Roles.Strings())
	s.putList(ctx, KeyPermissions, sess.Permissions.Strings())
	if len(sess.PermissionSummary) > 0 {
		s.set(ctx, KeyPermissionSummary, string(sess.PermissionSummary))
	} else {
		s.remove(ctx, KeyPermissionSummary)
	}
	s.setJSON(ctx, KeyAuthState, sess)
}

func (s *Store) putString(ctx context.Context, key, v string) {
	if v == "" {
		s.remove(ctx, key)
		return
	}
	s.setJSON(ctx, key, v)
}

func (s *Store) putList(ctx context.Context, key string, v []string) {
	if len(v) == 0 {
		s.remove(ctx, key)
		return
	}
	s.setJSON(ctx, key, v)
}

// Clear removes every known key. Failures are logged and ignored.
func (s *Store) Clear(ctx context.Context) {
	for _, k := range Keys {
		s.remove(ctx, k)
	}
}

// SaveProfile persists the user profile slice; nil removes it.
func (s *Store) SaveProfile(ctx context.Context, p *model.UserProfile) {
	if p == nil {
		s.remove(ctx, KeyUserState)
		return
	}
	s.setJSON(ctx, KeyUserState, p)
}

// LoadProfile restores the user profile slice. A corrupt value is removed.
func (s *Store) LoadProfile(ctx context.Context) *model.UserProfile {
	raw, ok := s.get(ctx, KeyUserState)
	if !ok || raw == "null" {
		return nil
	}
	var p model.UserProfile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		s.log.Warn("profile load failed, removing", zap.Error(err))
		s.remove(ctx, KeyUserState)
		return nil
	}
	return &p
}
