package crypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestRandBytes_LengthAndUniqueness(t *testing.T) {
	t.Parallel()

	const n = 64
	a, err := RandBytes(n)
	if err != nil {
		t.Fatalf("RandBytes: %v", err)
	}
	if len(a) != n {
		t.Fatalf("len=%d, want=%d", len(a), n)
	}
	b, _ := RandBytes(n)
	if bytes.Equal(a, b) {
		t.Fatalf("two subsequent RandBytes(%d) are equal, looks non-random", n)
	}
}

func TestHashPassword_SaltedEncoding(t *testing.T) {
	t.Parallel()

	h1, err := HashPassword("p@ssw0rd")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	h2, _ := HashPassword("p@ssw0rd")
	if h1 == h2 {
		t.Fatalf("fresh salt must give different encodings")
	}
	if !strings.HasPrefix(h1, "argon2id$") || strings.Count(h1, "$") != 2 {
		t.Fatalf("unexpected encoding: %s", h1)
	}
}

func TestVerifyPassword(t *testing.T) {
	t.Parallel()

	hash, _ := HashPassword("correct horse battery staple")

	ok, err := VerifyPassword("correct horse battery staple", hash)
	if err != nil || !ok {
		t.Fatalf("VerifyPassword: expected true, got %v %v", ok, err)
	}
	if ok, _ := VerifyPassword("wrong", hash); ok {
		t.Fatalf("VerifyPassword: expected false for wrong password")
	}
	if ok, _ := VerifyPassword("", hash); ok {
		t.Fatalf("VerifyPassword: expected false for empty password")
	}
	if _, err := VerifyPassword("x", "bcrypt$abc$def"); err == nil {
		t.Fatalf("unsupported scheme must error")
	}
	if _, err := VerifyPassword("x", "argon2id$!!$def"); err == nil {
		t.Fatalf("bad salt encoding must error")
	}
}
