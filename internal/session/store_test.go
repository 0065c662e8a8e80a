package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/and161185/lendclient/internal/access"
	"github.com/and161185/lendclient/internal/model"
	"github.com/and161185/lendclient/internal/storage"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func makeJWT(t *testing.T, ttl time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "u-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return s
}

// failingStorage fails every call.
type failingStorage struct{}

var _ storage.Storage = failingStorage{}

func (failingStorage) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("quota exceeded")
}
func (failingStorage) Set(context.Context, string, string) error { return errors.New("quota exceeded") }
func (failingStorage) Remove(context.Context, string) error      { return errors.New("quota exceeded") }
func (failingStorage) Keys(context.Context) ([]string, error) {
	return nil, errors.New("quota exceeded")
}

func authed(t *testing.T) model.Session {
	return model.Session{
		AccessToken:       makeJWT(t, time.Hour),
		RefreshToken:      "refresh-1",
		IsAuthenticated:   true,
		User:              &model.User{ID: "u-1", Email: "ann@example.com"},
		Roles:             access.NewRoles(access.RoleApplicant),
		Permissions:       access.NewPermissions(access.PermCreateApplication, access.PermViewReports),
		PermissionSummary: json.RawMessage(`{"level":"basic"}`),
	}
}

func TestSaveLoad_Roundtrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New(storage.NewMemory(), zaptest.NewLogger(t))

	in := authed(t)
	s.Save(ctx, in)
	out := s.Load(ctx)

	require.Equal(t, in.AccessToken, out.AccessToken)
	require.Equal(t, in.RefreshToken, out.RefreshToken)
	require.True(t, out.IsAuthenticated)
	require.Equal(t, in.Roles.Strings(), out.Roles.Strings())
	require.Equal(t, in.Permissions.Strings(), out.Permissions.Strings())
	require.JSONEq(t, `{"level":"basic"}`, string(out.PermissionSummary))
	require.Equal(t, "u-1", out.User.ID)
}

func TestSave_LogoutClearsEverything(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := storage.NewMemory()
	s := New(mem, nil)

	s.Save(ctx, authed(t))
	s.SaveProfile(ctx, &model.UserProfile{ID: "u-1"})
	s.Save(ctx, model.Session{})

	keys, _ := mem.Keys(ctx)
	require.Empty(t, keys)
	out := s.Load(ctx)
	require.False(t, out.IsAuthenticated)
	require.False(t, out.TokenExpired)
	require.Empty(t, out.AccessToken)
}

func TestSave_UnauthenticatedWithTokenKeepsKeys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := storage.NewMemory()
	s := New(mem, nil)

	in := authed(t)
	in.IsAuthenticated = false
	in.User = nil
	s.Save(ctx, in)

	out := s.Load(ctx)
	require.Equal(t, in.AccessToken, out.AccessToken)
	require.Equal(t, in.RefreshToken, out.RefreshToken)
	require.False(t, out.IsAuthenticated)
	require.Nil(t, out.User)
}

func TestSave_MidMFAKeepsTempState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New(storage.NewMemory(), nil)

	s.Save(ctx, model.Session{RequiresMFA: true, TempToken: "tmp", MFAMethods: []string{"totp"}})
	out := s.Load(ctx)
	require.True(t, out.RequiresMFA)
	require.Equal(t, "tmp", out.TempToken)
	require.False(t, out.IsAuthenticated)
}

func TestLoad_RawTokenWithoutBlob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := storage.NewMemory()
	tok := makeJWT(t, time.Hour)
	require.NoError(t, mem.Set(ctx, KeyAuthToken, tok)) // bare, unquoted
	require.NoError(t, mem.Set(ctx, KeyRefreshToken, `"r"`))
	require.NoError(t, mem.Set(ctx, KeyRoles, `["admin"]`))

	out := New(mem, nil).Load(ctx)
	require.True(t, out.IsAuthenticated)
	require.Equal(t, tok, out.AccessToken)
	require.Equal(t, "r", out.RefreshToken)
	require.True(t, out.Roles.Has(access.RoleAdmin))
}

func TestLoad_IndependentTokensWin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := storage.NewMemory()
	s := New(mem, nil)

	in := authed(t)
	s.Save(ctx, in)
	newer := makeJWT(t, 2*time.Hour)
	b, _ := json.Marshal(newer)
	require.NoError(t, mem.Set(ctx, KeyAuthToken, string(b)))

	out := s.Load(ctx)
	require.Equal(t, newer, out.AccessToken)
	require.True(t, out.IsAuthenticated)

	// token key removed out from under the blob: not authenticated anymore
	require.NoError(t, mem.Remove(ctx, KeyAuthToken))
	out = s.Load(ctx)
	require.Empty(t, out.AccessToken)
	require.False(t, out.IsAuthenticated)
}

func TestLoad_ExpiredTokenClears(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := storage.NewMemory()
	s := New(mem, nil)

	in := authed(t)
	in.AccessToken = makeJWT(t, -time.Minute)
	s.Save(ctx, in)

	out := s.Load(ctx)
	require.True(t, out.TokenExpired)
	require.False(t, out.IsAuthenticated)
	keys, _ := mem.Keys(ctx)
	require.Empty(t, keys)
}

func TestLoad_ClockOption(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New(storage.NewMemory(), nil, WithClock(func() time.Time { return time.Now().Add(3 * time.Hour) }))
	s.Save(ctx, authed(t))
	require.True(t, s.Load(ctx).TokenExpired)
}

func TestLoad_CorruptBlobClears(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := storage.NewMemory()
	require.NoError(t, mem.Set(ctx, KeyAuthState, "{broken"))
	require.NoError(t, mem.Set(ctx, KeyAuthToken, `"x"`))

	out := New(mem, nil).Load(ctx)
	require.False(t, out.IsAuthenticated)
	require.False(t, out.TokenExpired)
	keys, _ := mem.Keys(ctx)
	require.Empty(t, keys)
}

func TestLoad_CorruptRolesClears(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := storage.NewMemory()
	require.NoError(t, mem.Set(ctx, KeyAuthToken, `"x"`))
	require.NoError(t, mem.Set(ctx, KeyRoles, `admin`))

	out := New(mem, nil).Load(ctx)
	require.Empty(t, out.AccessToken)
	keys, _ := mem.Keys(ctx)
	require.Empty(t, keys)
}

func TestStore_FailingStorageNeverPanics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New(failingStorage{}, zaptest.NewLogger(t))

	s.Save(ctx, authed(t))
	s.Clear(ctx)
	s.SaveProfile(ctx, &model.UserProfile{ID: "u"})
	require.Nil(t, s.LoadProfile(ctx))
	out := s.Load(ctx)
	require.False(t, out.IsAuthenticated)
}

func TestProfile_SaveLoad(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := storage.NewMemory()
	s := New(mem, nil)

	require.Nil(t, s.LoadProfile(ctx))
	s.SaveProfile(ctx, &model.UserProfile{ID: "u-1", Name: "Ann", Preferences: map[string]string{"theme": "dark"}})
	p := s.LoadProfile(ctx)
	require.NotNil(t, p)
	require.Equal(t, "dark", p.Preferences["theme"])

	require.NoError(t, mem.Set(ctx, KeyUserState, "nope"))
	require.Nil(t, s.LoadProfile(ctx))
	_, ok, _ := mem.Get(ctx, KeyUserState)
	require.False(t, ok)

	s.SaveProfile(ctx, &model.UserProfile{ID: "u-1"})
	s.SaveProfile(ctx, nil)
	require.Nil(t, s.LoadProfile(ctx))
}
