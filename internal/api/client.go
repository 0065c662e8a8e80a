// Package api is the REST client for the lending backend. Every call except
// the auth endpoints goes through a bounded reauthentication machine: a 401
// triggers at most one refresh and at most one replay of the original request.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/and161185/lendclient/internal/errs"
	"github.com/and161185/lendclient/internal/logger"
	"github.com/and161185/lendclient/internal/metrics"
	"go.uber.org/zap"
)

// TokenSource supplies and stores bearer tokens. *state.Store implements it.
type TokenSource interface {
	AccessToken() string
	RefreshToken() string
	SetAccessToken(ctx context.Context, tok string)
}

// AuthFailureHandler is told when a refresh could not recover a 401. It is
// expected to clear session state and send the user back to login.
type AuthFailureHandler interface {
	OnAuthFailure(ctx context.Context)
}

// AuthFailureFunc adapts a function to AuthFailureHandler.
type AuthFailureFunc func(ctx context.Context)

// OnAuthFailure calls f.
func (f AuthFailureFunc) OnAuthFailure(ctx context.Context) { f(ctx) }

// Client talks to the backend REST API.
type Client struct {
	base    *url.URL
	hc      *http.Client
	tokens  TokenSource
	onFail  AuthFailureHandler
	log     *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client (30s timeout).
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.hc = hc } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = logger.OrNop(l) } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option { return func(c *Client) { c.metrics = m } }

// WithAuthFailureHandler sets what happens when reauthentication fails.
func WithAuthFailureHandler(h AuthFailureHandler) Option { return func(c *Client) { c.onFail = h } }

// New builds a client for baseURL (e.g. "http://localhost:8000").
func New(baseURL string, tokens TokenSource, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("api url %q must be absolute", baseURL)
	}
	c := &Client{
		base:   u,
		hc:     &http.Client{Timeout: 30 * time.Second},
		tokens: tokens,
		onFail: AuthFailureFunc(func(context.Context) {}),
		log:    zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// request is a fully buffered outgoing call, so it can be sent twice.
type request struct {
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
}

func jsonRequest(method, path string, in any) (*request, error) {
	r := &request{method: method, path: path}
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		r.body, r.contentType = b, "application/json"
	}
	return r, nil
}

// Response is a decoded backend reply. Non-JSON bodies have already been
// normalized to {"detail":"Internal server error"}.
type Response struct {
	Status     int
	Data       json.RawMessage
	Normalized bool
}

type phase int

const (
	phaseSending phase = iota
	phaseRefreshing
	phaseReplaying
)

// maxReplays bounds how often one call may be re-sent after a refresh.
const maxReplays = 1

// roundTrip runs req through the reauthentication machine.
func (c *Client) roundTrip(ctx context.Context, req *request) (*Response, error) {
	replays := 0
	ph := phaseSending
	for {
		switch ph {
		case phaseSending, phaseReplaying:
			resp, err := c.send(ctx, req, c.bearer())
			if err != nil {
				return nil, err
			}
			if resp.Status != http.StatusUnauthorized {
				return resp, nil
			}
			if replays >= maxReplays {
				c.log.Warn("unauthorized after replay", zap.String("path", req.path))
				return resp, nil
			}
			ph = phaseRefreshing
		case phaseRefreshing:
			tok, err := c.Refresh(ctx, c.refreshToken())
			if err != nil {
				c.log.Info("reauthentication failed", zap.String("path", req.path), zap.Error(err))
				c.onFail.OnAuthFailure(ctx)
				return nil, fmt.Errorf("%s %s: %w", req.method, req.path, errs.ErrSessionExpired)
			}
			if c.tokens != nil {
				c.tokens.SetAccessToken(ctx, tok)
			}
			replays++
			c.metrics.Replay()
			ph = phaseReplaying
		}
	}
}

func (c *Client) bearer() string {
	if c.tokens == nil {
		return ""
	}
	return c.tokens.AccessToken()
}

func (c *Client) refreshToken() string {
	if c.tokens == nil {
		return ""
	}
	return c.tokens.RefreshToken()
}

// send performs one HTTP exchange. bearer may be empty.
func (c *Client) send(ctx context.Context, req *request, bearer string) (*Response, error) {
	u := *c.base
	u.Path = c.base.Path + req.path
	if len(req.query) > 0 {
		u.RawQuery = req.query.Encode()
	}
	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	hr, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", req.method, req.path, err)
	}
	hr.Header.Set("Accept", "application/json")
	if req.contentType != "" {
		hr.Header.Set("Content-Type", req.contentType)
	}
	if bearer != "" {
		hr.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	res, err := c.hc.Do(hr)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", req.method, req.path, err)
	}
	c.metrics.Request(res.StatusCode)
	c.log.Debug("api call",
		zap.String("method", req.method),
		zap.String("path", req.path),
		zap.Int("status", res.StatusCode),
		zap.Duration("took", time.Since(start)),
		zap.Bool("bearer", bearer != ""))
	return normalize(res.StatusCode, res.Header.Get("Content-Type"), raw), nil
}

// decode turns resp into out or an *APIError.
func decode(req *request, resp *Response, out any) error {
	if resp.Status >= 400 || resp.Normalized {
		return parseAPIError(resp)
	}
	if out == nil || len(resp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", req.method, req.path, err)
	}
	return nil
}

// Do sends a JSON request through the reauthentication machine and decodes
// the reply into out (which may be nil).
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	req, err := jsonRequest(method, path, in)
	if err != nil {
		return err
	}
	return c.do(ctx, req, out)
}

func (c *Client) do(ctx context.Context, req *request, out any) error {
	resp, err := c.roundTrip(ctx, req)
	if err != nil {
		return err
	}
	return decode(req, resp, out)
}

// doPublic sends req without a bearer and without reauthentication.
func (c *Client) doPublic(ctx context.Context, req *request, out any) error {
	resp, err := c.send(ctx, req, "")
	if err != nil {
		return err
	}
	return decode(req, resp, out)
}
