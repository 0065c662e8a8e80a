package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	cc "github.com/and161185/lendclient/internal/crypto/clientcrypto"
)

// SaltKey holds the base64 Argon2id salt of a sealed store in the inner store.
const SaltKey = "__seal_salt"

// Sealed encrypts values before handing them to an inner Storage.
// The value of each key is bound to the key name.
type Sealed struct {
	inner      Storage
	passphrase []byte

	mu  sync.Mutex
	key []byte
}

var _ Storage = (*Sealed)(nil)

// NewSealed wraps inner; the key is derived lazily on first use.
func NewSealed(inner Storage, passphrase string) *Sealed {
	return &Sealed{inner: inner, passphrase: []byte(passphrase)}
}

func (s *Sealed) deriveKey(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key != nil {
		return s.key, nil
	}
	enc := base64.StdEncoding
	raw, ok, err := s.inner.Get(ctx, SaltKey)
	if err != nil {
		return nil, err
	}
	var salt []byte
	if ok {
		if salt, err = enc.DecodeString(raw); err != nil {
			return nil, fmt.Errorf("decode salt: %w", err)
		}
	} else {
		if salt, err = cc.Rand(cc.SaltLen); err != nil {
			return nil, err
		}
		if err := s.inner.Set(ctx, SaltKey, enc.EncodeToString(salt)); err != nil {
			return nil, err
		}
	}
	s.key = cc.DeriveKey(s.passphrase, salt)
	return s.key, nil
}

// Get decrypts the value stored under key.
func (s *Sealed) Get(ctx context.Context, key string) (string, bool, error) {
	raw, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	k, err := s.deriveKey(ctx)
	if err != nil {
		return "", false, err
	}
	blob, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", false, fmt.Errorf("decode %s: %w", key, err)
	}
	pt, err := cc.Open(k, []byte(key), blob)
	if err != nil {
		return "", false, fmt.Errorf("open %s: %w", key, err)
	}
	return string(pt), true, nil
}

// Set encrypts value and stores it under key.
func (s *Sealed) Set(ctx context.Context, key, value string) error {
	k, err := s.deriveKey(ctx)
	if err != nil {
		return err
	}
	blob, err := cc.Seal(k, []byte(key), []byte(value))
	if err != nil {
		return err
	}
	return s.inner.Set(ctx, key, base64.StdEncoding.EncodeToString(blob))
}

// Remove deletes key.
func (s *Sealed) Remove(ctx context.Context, key string) error { return s.inner.Remove(ctx, key) }

// Keys lists stored keys, hiding the salt entry.
func (s *Sealed) Keys(ctx context.Context) ([]string, error) {
	ks, err := s.inner.Keys(ctx)
	if err != nil {
		return nil, err
	}
	out := ks[:0]
	for _, k := range ks {
		if k != SaltKey {
			out = append(out, k)
		}
	}
	return out, nil
}
