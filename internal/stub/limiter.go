package stub

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Limiter controls login attempts and temporary lockouts.
type Limiter interface {
	// Allow reports whether login is currently allowed and optional retry-after.
	Allow(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, username string, ipHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error)
}

// HashIP returns a stable hash for an IP string to avoid storing raw addresses.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}

type attempts struct {
	fails        int
	first        time.Time
	blockedUntil time.Time
}

// MemoryLimiter is a sliding-window limiter with lockout kept in memory.
type MemoryLimiter struct {
	mu       sync.Mutex
	window   time.Duration
	maxFails int
	blockFor time.Duration
	now      func() time.Time
	byKey    map[string]*attempts
}

// NewMemoryLimiter blocks (username, ip) for blockFor after maxFails failures within window.
func NewMemoryLimiter(window time.Duration, maxFails int, blockFor time.Duration) *MemoryLimiter {
	return &MemoryLimiter{window: window, maxFails: maxFails, blockFor: blockFor, now: time.Now, byKey: map[string]*attempts{}}
}

func limiterKey(username string, ipHash []byte) string {
	return username + "|" + hex.EncodeToString(ipHash)
}

// Allow reports whether login is currently allowed and a retry-after duration.
func (l *MemoryLimiter) Allow(_ context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.byKey[limiterKey(username, ipHash)]
	if !ok {
		return true, 0, nil
	}
	if now := l.now(); a.blockedUntil.After(now) {
		return false, a.blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Success resets counters for (username, ip).
func (l *MemoryLimiter) Success(_ context.Context, username string, ipHash []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.byKey, limiterKey(username, ipHash))
	return nil
}

// Failure records a failed attempt; may set a block until a future time.
func (l *MemoryLimiter) Failure(_ context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	k := limiterKey(username, ipHash)
	a, ok := l.byKey[k]
	if !ok || now.Sub(a.first) > l.window {
		a = &attempts{first: now}
		l.byKey[k] = a
	}
	a.fails++
	if a.fails >= l.maxFails {
		a.blockedUntil = now.Add(l.blockFor)
		return true, l.blockFor, nil
	}
	return false, 0, nil
}
