// Package metrics holds the client's Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Requests     *prometheus.CounterVec
	TokenRefresh *prometheus.CounterVec
	Replays      prometheus.Counter
	Uploads      *prometheus.CounterVec
	WSReconnects prometheus.Counter
	SyncFixes    *prometheus.CounterVec
	DraftSaves   prometheus.Counter
	Submissions  *prometheus.CounterVec
}

// New creates the counters and registers them on reg (nil means a fresh registry).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_client_requests_total",
			Help: "API requests by final HTTP status class.",
		}, []string{"status"}),
		TokenRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_client_token_refresh_total",
			Help: "Token refresh attempts by result.",
		}, []string{"result"}),
		Replays: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lend_client_replay_total",
			Help: "Requests replayed after a successful refresh.",
		}),
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_client_uploads_total",
			Help: "Document uploads by result.",
		}, []string{"result"}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lend_client_ws_reconnects_total",
			Help: "Notification socket reconnect attempts.",
		}),
		SyncFixes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_client_sync_fixes_total",
			Help: "State reconciliation corrections by kind.",
		}, []string{"kind"}),
		DraftSaves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lend_client_draft_saves_total",
			Help: "Successful draft saves.",
		}),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_client_submissions_total",
			Help: "Application submissions by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.Requests, m.TokenRefresh, m.Replays, m.Uploads,
		m.WSReconnects, m.SyncFixes, m.DraftSaves, m.Submissions)
	return m
}

// StatusClass maps an HTTP status to "2xx", "4xx", ...; 0 means "error".
func StatusClass(code int) string {
	if code <= 0 {
		return "error"
	}
	return string(rune('0'+code/100)) + "xx"
}

// Request counts one finished request.
func (m *Metrics) Request(code int) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(StatusClass(code)).Inc()
}

// Refresh counts one refresh attempt.
func (m *Metrics) Refresh(ok bool) {
	if m == nil {
		return
	}
	m.TokenRefresh.WithLabelValues(result(ok)).Inc()
}

// Replay counts one replayed request.
func (m *Metrics) Replay() {
	if m == nil {
		return
	}
	m.Replays.Inc()
}

// Upload counts one upload.
func (m *Metrics) Upload(ok bool) {
	if m == nil {
		return
	}
	m.Uploads.WithLabelValues(result(ok)).Inc()
}

// Reconnect counts one socket reconnect attempt.
func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.WSReconnects.Inc()
}

// SyncFix counts one reconciliation correction.
func (m *Metrics) SyncFix(kind string) {
	if m == nil {
		return
	}
	m.SyncFixes.WithLabelValues(kind).Inc()
}

// DraftSaved counts one saved draft.
func (m *Metrics) DraftSaved() {
	if m == nil {
		return
	}
	m.DraftSaves.Inc()
}

// Submission counts one submission.
func (m *Metrics) Submission(ok bool) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(result(ok)).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
