// Package notify keeps a WebSocket open to the notification channel and
// hands every {type, data} envelope to a handler.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/and161185/lendclient/internal/logger"
	"github.com/and161185/lendclient/internal/metrics"
	"github.com/and161185/lendclient/internal/model"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Path is the notification endpoint relative to the WebSocket base URL.
const Path = "/ws/notifications/"

// Defaults for reconnecting.
const (
	DefaultMaxAttempts = 5
	DefaultInterval    = 3 * time.Second
)

// ErrNotConnected is returned by Send while no socket is open.
var ErrNotConnected = errors.New("notifications: not connected")

// Handler receives every non-ping envelope.
type Handler func(model.Notification)

// Client is a reconnecting notification socket.
type Client struct {
	base        string
	token       func() string
	handler     Handler
	maxAttempts int
	interval    time.Duration
	dialer      *websocket.Dialer
	log         *zap.Logger
	metrics     *metrics.Metrics

	mu   sync.Mutex // guards conn and serializes writes
	conn *websocket.Conn
}

// Option configures a Client.
type Option func(*Client)

// WithReconnect sets the attempt cap and the linear backoff step.
func WithReconnect(maxAttempts int, interval time.Duration) Option {
	return func(c *Client) {
		if maxAttempts >= 0 {
			c.maxAttempts = maxAttempts
		}
		if interval > 0 {
			c.interval = interval
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = logger.OrNop(l) } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option { return func(c *Client) { c.metrics = m } }

// WithDialer replaces websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) Option { return func(c *Client) { c.dialer = d } }

// New creates a client for wsBase (e.g. "ws://localhost:8000"). token is
// read on every (re)connect so refreshed tokens are picked up.
func New(wsBase string, token func() string, h Handler, opts ...Option) *Client {
	c := &Client{
		base:        strings.TrimRight(wsBase, "/"),
		token:       token,
		handler:     h,
		maxAttempts: DefaultMaxAttempts,
		interval:    DefaultInterval,
		dialer:      websocket.DefaultDialer,
		log:         zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.handler == nil {
		c.handler = func(model.Notification) {}
	}
	return c
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.base + Path)
	if err != nil {
		return "", fmt.Errorf("notifications url: %w", err)
	}
	q := u.Query()
	q.Set("token", c.token())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run connects and keeps reconnecting until ctx is cancelled, the server
// closes normally (1000) or MaxAttempts consecutive attempts fail. The
// n-th retry waits n*Interval.
func (c *Client) Run(ctx context.Context) error {
	attempt := 0
	for {
		connected, err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			c.log.Info("notification channel closed normally")
			return nil
		}
		if connected {
			attempt = 0
		}
		attempt++
		if attempt > c.maxAttempts {
			return fmt.Errorf("notifications: giving up after %d attempts: %w", c.maxAttempts, err)
		}
		wait := time.Duration(attempt) * c.interval
		c.log.Warn("notification channel lost", zap.Error(err), zap.Int("attempt", attempt), zap.Duration("retry_in", wait))
		c.metrics.Reconnect()
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// session runs one connection. connected reports whether the handshake succeeded.
func (c *Client) session(ctx context.Context) (connected bool, err error) {
	u, err := c.endpoint()
	if err != nil {
		return false, err
	}
	conn, resp, err := c.dialer.DialContext(ctx, u, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return false, fmt.Errorf("dial notifications: %s: %w", resp.Status, err)
		}
		return false, fmt.Errorf("dial notifications: %w", err)
	}
	c.setConn(conn)
	c.log.Debug("notification channel open")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.closeNormal()
		case <-done:
		}
	}()
	defer func() {
		c.setConn(nil)
		_ = conn.Close()
	}()

	for {
		var env model.Notification
		if err := conn.ReadJSON(&env); err != nil {
			var syn *json.SyntaxError
			if errors.As(err, &syn) {
				c.log.Warn("dropping malformed notification", zap.Error(err))
				continue
			}
			return true, err
		}
		if env.Type == "ping" {
			if err := c.Send(model.Notification{Type: "pong"}); err != nil {
				return true, err
			}
			continue
		}
		c.handler(env)
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

func (c *Client) closeNormal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = c.conn.Close()
}

// Send writes env on the open socket.
func (c *Client) Send(env model.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteJSON(env)
}
