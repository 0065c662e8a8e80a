package stub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	pkgcrypto "github.com/and161185/lendclient/internal/crypto"
	"github.com/and161185/lendclient/internal/errs"
	"github.com/and161185/lendclient/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

// MFACode is the second factor every MFA-enabled demo account accepts.
const MFACode = "123456"

// Account is a stub user with its grants.
type Account struct {
	User        model.User
	Roles       []string
	Permissions []string
	MFA         bool
	pwdHash     string
}

// DemoAccount seeds one login. Password is hashed on registration.
type DemoAccount struct {
	Email       string
	Password    string
	FirstName   string
	LastName    string
	Role        string
	Permissions []string
	MFA         bool
}

// DemoAccounts are registered by NewServer unless overridden.
var DemoAccounts = []DemoAccount{
	{Email: "applicant@example.com", Password: "password123", FirstName: "Alex", LastName: "Applicant",
		Role: "applicant", Permissions: []string{"create_application", "view_applications"}},
	{Email: "officer@example.com", Password: "password123", FirstName: "Olivia", LastName: "Officer",
		Role: "loan_officer", Permissions: []string{"view_applications", "review_applications", "view_reports"}},
	{Email: "analyst@example.com", Password: "password123", FirstName: "Ana", LastName: "Analyst",
		Role: "analyst", Permissions: []string{"view_reports", "export_reports", "view_risk_scores"}},
	{Email: "admin@example.com", Password: "password123", FirstName: "Adam", LastName: "Admin",
		Role: "admin", MFA: true},
}

// AuthResult is a successful login, MFA verification, or a pending MFA challenge.
type AuthResult struct {
	Access, Refresh string
	Account         *Account
	TempToken       string // set when MFA is pending
}

// Auth issues and verifies HS256 tokens for the stub accounts.
type Auth struct {
	signKey    []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	lim        Limiter
	now        func() time.Time

	mu      sync.Mutex
	byEmail map[string]*Account
	byID    map[string]*Account
	pending map[string]string // temp token -> user id
	revoked map[string]bool   // refresh token ids
}

// NewAuth constructs Auth with required dependencies.
func NewAuth(signKey []byte, accessTTL time.Duration, lim Limiter) *Auth {
	return &Auth{
		signKey:    signKey,
		accessTTL:  accessTTL,
		refreshTTL: 24 * time.Hour,
		lim:        lim,
		now:        time.Now,
		byEmail:    map[string]*Account{},
		byID:       map[string]*Account{},
		pending:    map[string]string{},
		revoked:    map[string]bool{},
	}
}

// Register adds an account with an argon2id password hash.
func (a *Auth) Register(d DemoAccount) (*Account, error) {
	if d.Email == "" || d.Password == "" {
		return nil, errors.New("empty email/password")
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	hash, err := pkgcrypto.HashPassword(d.Password)
	if err != nil {
		return nil, err
	}
	acc := &Account{
		User: model.User{
			ID: uid.String(), Email: strings.ToLower(d.Email),
			FirstName: d.FirstName, LastName: d.LastName, Role: d.Role,
		},
		Roles:       []string{d.Role},
		Permissions: d.Permissions,
		MFA:         d.MFA,
		pwdHash:     hash,
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.byEmail[acc.User.Email]; exists {
		return nil, fmt.Errorf("account %s already exists", acc.User.Email)
	}
	a.byEmail[acc.User.Email] = acc
	a.byID[acc.User.ID] = acc
	return acc, nil
}

// Login authenticates with rate limiting by (email, ip).
func (a *Auth) Login(ctx context.Context, email, password, ip string) (AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	ipHash := HashIP(ip)
	allowed, _, err := a.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return AuthResult{}, err
	}
	if !allowed {
		return AuthResult{}, errs.ErrRateLimited
	}

	a.mu.Lock()
	acc := a.byEmail[email]
	a.mu.Unlock()
	ok := false
	if acc != nil {
		ok, _ = pkgcrypto.VerifyPassword(password, acc.pwdHash)
	}
	if !ok {
		if blocked, _, ferr := a.lim.Failure(ctx, email, ipHash); ferr == nil && blocked {
			return AuthResult{}, errs.ErrRateLimited
		}
		// unknown user and wrong password look the same
		return AuthResult{}, errs.ErrUnauthorized
	}
	_ = a.lim.Success(ctx, email, ipHash)

	if acc.MFA {
		tmp, err := uuid.NewV4()
		if err != nil {
			return AuthResult{}, err
		}
		a.mu.Lock()
		a.pending[tmp.String()] = acc.User.ID
		a.mu.Unlock()
		return AuthResult{Account: acc, TempToken: tmp.String()}, nil
	}
	return a.issue(acc)
}

// VerifyMFA completes a pending login.
func (a *Auth) VerifyMFA(tempToken, code string) (AuthResult, error) {
	a.mu.Lock()
	uid, ok := a.pending[tempToken]
	if ok && code == MFACode {
		delete(a.pending, tempToken)
	}
	acc := a.byID[uid]
	a.mu.Unlock()
	if !ok || acc == nil {
		return AuthResult{}, errs.ErrUnauthorized
	}
	if code != MFACode {
		return AuthResult{}, errs.ErrValidation
	}
	return a.issue(acc)
}

func (a *Auth) issue(acc *Account) (AuthResult, error) {
	access, err := a.issueToken(acc.User.ID, tokenAccess, a.accessTTL)
	if err != nil {
		return AuthResult{}, err
	}
	refresh, err := a.issueToken(acc.User.ID, tokenRefresh, a.refreshTTL)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Access: access, Refresh: refresh, Account: acc}, nil
}

// Token kinds, carried in the typ claim.
const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"
)

type claims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// issueToken creates a signed HS256 JWT of the given kind for userID. Every
// token gets a fresh jti, so two tokens issued in the same second differ and
// refresh tokens can be revoked by id.
func (a *Auth) issueToken(userID, kind string, ttl time.Duration) (string, error) {
	jti, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	now := a.now()
	c := claims{
		Type: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        jti.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(a.signKey)
}

// parse verifies signature, time claims and the token kind.
func (a *Auth) parse(tok, kind string) (*claims, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(tok, &c, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return a.signKey, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil || !parsed.Valid || c.Type != kind || c.ID == "" {
		return nil, errs.ErrUnauthorized
	}
	return &c, nil
}

// Authenticate resolves an access token to its account.
func (a *Auth) Authenticate(tok string) (*Account, error) {
	c, err := a.parse(tok, tokenAccess)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	acc, ok := a.byID[c.Subject]
	if !ok {
		return nil, errs.ErrUnauthorized
	}
	return acc, nil
}

// Refresh issues a new access token for a valid, unrevoked refresh token.
func (a *Auth) Refresh(refresh string) (string, error) {
	c, err := a.parse(refresh, tokenRefresh)
	if err != nil {
		return "", err
	}
	a.mu.Lock()
	revoked := a.revoked[c.ID]
	_, known := a.byID[c.Subject]
	a.mu.Unlock()
	if revoked || !known {
		return "", errs.ErrUnauthorized
	}
	return a.issueToken(c.Subject, tokenAccess, a.accessTTL)
}

// Revoke invalidates a refresh token. Unknown tokens are ignored.
func (a *Auth) Revoke(refresh string) {
	c, err := a.parse(refresh, tokenRefresh)
	if err != nil {
		return
	}
	a.mu.Lock()
	a.revoked[c.ID] = true
	a.mu.Unlock()
}
