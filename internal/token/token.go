// Package token inspects bearer tokens without verifying their signature.
// Verification is the backend's job; the client only needs the expiry.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var parser = jwt.NewParser()

func claims(tok string) (*jwt.RegisteredClaims, error) {
	if tok == "" {
		return nil, errors.New("empty token")
	}
	var c jwt.RegisteredClaims
	if _, _, err := parser.ParseUnverified(tok, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// IsExpired reports whether tok is absent, malformed, carries no exp claim,
// or expires at or before now. It fails closed.
func IsExpired(tok string, now time.Time) bool {
	c, err := claims(tok)
	if err != nil || c.ExpiresAt == nil {
		return true
	}
	return !c.ExpiresAt.Time.After(now)
}

// ExpiresAt returns the exp claim of tok.
func ExpiresAt(tok string) (time.Time, error) {
	c, err := claims(tok)
	if err != nil {
		return time.Time{}, err
	}
	if c.ExpiresAt == nil {
		return time.Time{}, errors.New("token has no exp claim")
	}
	return c.ExpiresAt.Time, nil
}

// Subject returns the sub claim of tok.
func Subject(tok string) (string, error) {
	c, err := claims(tok)
	if err != nil {
		return "", err
	}
	return c.Subject, nil
}
