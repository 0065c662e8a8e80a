package token

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"pgregory.net/rapid"
)

func makeJWT(t interface{ Fatalf(string, ...any) }, sub string, exp *time.Time) string {
	claims := jwt.RegisteredClaims{Subject: sub}
	if exp != nil {
		claims.ExpiresAt = jwt.NewNumericDate(*exp)
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return s
}

func TestIsExpired_PastTokensAreExpired(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	rapid.Check(t, func(rt *rapid.T) {
		ago := time.Duration(rapid.Int64Range(0, 10*365*24*3600).Draw(rt, "agoSec")) * time.Second
		exp := now.Add(-ago)
		if !IsExpired(makeJWT(rt, "u", &exp), now) {
			rt.Fatalf("token expiring %v ago reported valid", ago)
		}
	})
}

func TestIsExpired_FutureTokensAreValid(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	rapid.Check(t, func(rt *rapid.T) {
		ahead := time.Duration(rapid.Int64Range(1, 10*365*24*3600).Draw(rt, "aheadSec")) * time.Second
		exp := now.Add(ahead)
		if IsExpired(makeJWT(rt, "u", &exp), now) {
			rt.Fatalf("token expiring in %v reported expired", ahead)
		}
	})
}

func TestIsExpired_MalformedIsExpired(t *testing.T) {
	t.Parallel()

	now := time.Now()
	enc := base64.RawURLEncoding.EncodeToString
	cases := []string{
		"",
		"not-a-jwt",
		"a.b",
		enc([]byte(`{"alg":"HS256"}`)) + "." + enc([]byte("not json")) + ".sig",
		enc([]byte(`{"alg":"HS256"}`)) + "." + enc([]byte(`{"exp":"tomorrow"}`)) + ".sig",
	}
	for _, c := range cases {
		if !IsExpired(c, now) {
			t.Fatalf("malformed %q must be expired", c)
		}
	}
	if !IsExpired(makeJWT(t, "u", nil), now) {
		t.Fatalf("token without exp must be treated as expired")
	}
}

func TestIsExpired_Boundary(t *testing.T) {
	t.Parallel()

	now := time.Now().Truncate(time.Second)
	if !IsExpired(makeJWT(t, "u", &now), now) {
		t.Fatalf("exp == now must be expired")
	}
}

func TestExpiresAt_And_Subject(t *testing.T) {
	t.Parallel()

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tok := makeJWT(t, "user-42", &exp)
	got, err := ExpiresAt(tok)
	if err != nil || !got.Equal(exp) {
		t.Fatalf("ExpiresAt: %v %v", got, err)
	}
	sub, err := Subject(tok)
	if err != nil || sub != "user-42" {
		t.Fatalf("Subject: %q %v", sub, err)
	}
	if _, err := ExpiresAt(makeJWT(t, "u", nil)); err == nil {
		t.Fatalf("want error for missing exp")
	}
	if _, err := Subject("garbage"); err == nil {
		t.Fatalf("want error for garbage")
	}
}
