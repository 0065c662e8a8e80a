package clientcrypto

import (
	"bytes"
	"crypto/subtle"
	"errors"
	"testing"
)

func TestRand_LengthUniq(t *testing.T) {
	t.Parallel()
	const n = 48
	a, err := Rand(n)
	if err != nil {
		t.Fatalf("Rand: %v", err)
	}
	if len(a) != n {
		t.Fatalf("len=%d, want=%d", len(a), n)
	}
	b, _ := Rand(n)
	if bytes.Equal(a, b) {
		t.Fatalf("Rand produced equal slices")
	}
}

func TestDeriveKey_DeterministicAndSaltDependent(t *testing.T) {
	t.Parallel()
	pw := []byte("secret-pass")
	k1 := DeriveKey(pw, []byte("salt-1"))
	if len(k1) != KeyLen {
		t.Fatalf("key len=%d", len(k1))
	}
	if subtle.ConstantTimeCompare(k1, DeriveKey(pw, []byte("salt-1"))) != 1 {
		t.Fatalf("DeriveKey not deterministic")
	}
	if subtle.ConstantTimeCompare(k1, DeriveKey(pw, []byte("salt-2"))) != 0 {
		t.Fatalf("DeriveKey must change with salt")
	}
	if subtle.ConstantTimeCompare(k1, DeriveKey([]byte("other"), []byte("salt-1"))) != 0 {
		t.Fatalf("DeriveKey must change with passphrase")
	}
}

func TestSealOpen_Roundtrip(t *testing.T) {
	t.Parallel()
	key, _ := Rand(KeyLen)
	pt := []byte(`{"token":"abc"}`)

	sealed, err := Seal(key, []byte("authState"), pt)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(sealed, pt) {
		t.Fatalf("ciphertext must not contain plaintext")
	}
	got, err := Open(key, []byte("authState"), sealed)
	if err != nil || !bytes.Equal(got, pt) {
		t.Fatalf("Open: %q %v", got, err)
	}
}

func TestOpen_RejectsWrongKeyOrAAD(t *testing.T) {
	t.Parallel()
	key, _ := Rand(KeyLen)
	other, _ := Rand(KeyLen)
	sealed, _ := Seal(key, []byte("authToken"), []byte("v"))

	if _, err := Open(other, []byte("authToken"), sealed); !errors.Is(err, ErrOpen) {
		t.Fatalf("wrong key: want ErrOpen, got %v", err)
	}
	if _, err := Open(key, []byte("refreshToken"), sealed); !errors.Is(err, ErrOpen) {
		t.Fatalf("swapped key name: want ErrOpen, got %v", err)
	}
	if _, err := Open(key, nil, []byte("short")); err == nil {
		t.Fatalf("short input must fail")
	}
	if _, err := Seal([]byte("bad"), nil, []byte("v")); err == nil {
		t.Fatalf("bad key size must fail")
	}
}
