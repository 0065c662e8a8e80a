package session

import (
	"time"

	"github.com/and161185/lendclient/internal/model"
	"github.com/and161185/lendclient/internal/token"
)

// Validation is the outcome of a consistency check. At most one corrected
// session is proposed; the caller decides whether to apply it.
type Validation struct {
	Issues     []string
	Corrected  *model.Session
	NeedsClear bool
}

// OK reports whether no issue was found.
func (v Validation) OK() bool { return len(v.Issues) == 0 }

// Validate checks sess against now without side effects.
func Validate(sess model.Session, now time.Time) Validation {
	var v Validation
	switch {
	case sess.AccessToken != "" && token.IsExpired(sess.AccessToken, now):
		v.Issues = append(v.Issues, "token expired")
		v.NeedsClear = true
	case sess.IsAuthenticated && sess.AccessToken == "":
		v.Issues = append(v.Issues, "authenticated without token")
		c := sess
		c.IsAuthenticated = false
		v.Corrected = &c
	case !sess.IsAuthenticated && sess.AccessToken != "":
		v.Issues = append(v.Issues, "token present but not authenticated")
		c := sess
		c.IsAuthenticated = true
		v.Corrected = &c
	}
	return v
}

// Validate checks sess with the store's clock.
func (s *Store) Validate(sess model.Session) Validation { return Validate(sess, s.now()) }
