package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/and161185/lendclient/internal/access"
	"github.com/and161185/lendclient/internal/errs"
	"github.com/and161185/lendclient/internal/model"
)

// Auth endpoint paths.
const (
	PathLogin     = "/api/auth/login/"
	PathMFAVerify = "/api/auth/mfa/verify/"
	PathRefresh   = "/api/auth/token/refresh/"
	PathLogout    = "/api/auth/logout/"
	PathMe        = "/api/auth/me/"
)

// authPayload is the login / MFA verify reply.
type authPayload struct {
	Token             string          `json:"token"`
	Refresh           string          `json:"refresh"`
	User              *model.User     `json:"user"`
	Roles             []string        `json:"roles"`
	Permissions       []string        `json:"permissions"`
	PermissionSummary json.RawMessage `json:"permission_summary,omitempty"`
	RequiresMFA       bool            `json:"requires_mfa"`
	TempToken         string          `json:"temp_token"`
	MFAMethods        []string        `json:"mfa_methods"`
}

func (p authPayload) session() model.Session {
	if p.RequiresMFA {
		return model.Session{RequiresMFA: true, TempToken: p.TempToken, MFAMethods: p.MFAMethods}
	}
	return model.Session{
		AccessToken:       p.Token,
		RefreshToken:      p.Refresh,
		IsAuthenticated:   p.Token != "",
		User:              p.User,
		Roles:             access.ParseRoles(p.Roles),
		Permissions:       access.ParsePermissions(p.Permissions),
		PermissionSummary: p.PermissionSummary,
	}
}

// Login exchanges credentials for a session. When the account has a second
// factor the returned session has RequiresMFA set and the error wraps
// errs.ErrMFARequired.
func (c *Client) Login(ctx context.Context, email, password string) (model.Session, error) {
	req, err := jsonRequest(http.MethodPost, PathLogin, map[string]string{"email": email, "password": password})
	if err != nil {
		return model.Session{}, err
	}
	var p authPayload
	if err := c.doPublic(ctx, req, &p); err != nil {
		return model.Session{}, err
	}
	s := p.session()
	if s.RequiresMFA {
		return s, fmt.Errorf("login %s: %w", email, errs.ErrMFARequired)
	}
	if !s.IsAuthenticated {
		return model.Session{}, errors.New("login: backend returned no token")
	}
	return s, nil
}

// VerifyMFA completes a login that required a second factor.
func (c *Client) VerifyMFA(ctx context.Context, tempToken, code string) (model.Session, error) {
	req, err := jsonRequest(http.MethodPost, PathMFAVerify, map[string]string{"temp_token": tempToken, "code": code})
	if err != nil {
		return model.Session{}, err
	}
	var p authPayload
	if err := c.doPublic(ctx, req, &p); err != nil {
		return model.Session{}, err
	}
	s := p.session()
	if !s.IsAuthenticated {
		return model.Session{}, errors.New("mfa verify: backend returned no token")
	}
	return s, nil
}

// Refresh exchanges a refresh token for a new access token. It never goes
// through the reauthentication machine.
func (c *Client) Refresh(ctx context.Context, refresh string) (tok string, err error) {
	defer func() { c.metrics.Refresh(err == nil) }()
	if refresh == "" {
		return "", errors.New("refresh: no refresh token")
	}
	req, err := jsonRequest(http.MethodPost, PathRefresh, map[string]string{"refresh": refresh})
	if err != nil {
		return "", err
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := c.doPublic(ctx, req, &out); err != nil {
		return "", fmt.Errorf("refresh: %w", err)
	}
	if out.Token == "" {
		return "", errors.New("refresh: empty token")
	}
	return out.Token, nil
}

// Logout revokes the refresh token server side.
func (c *Client) Logout(ctx context.Context) error {
	return c.Do(ctx, http.MethodPost, PathLogout, map[string]string{"refresh": c.refreshToken()}, nil)
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var u model.User
	if err := c.Do(ctx, http.MethodGet, PathMe, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
