package stub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/and161185/lendclient/internal/access"
	"github.com/and161185/lendclient/internal/api"
	"github.com/and161185/lendclient/internal/errs"
	"github.com/and161185/lendclient/internal/metrics"
	"github.com/and161185/lendclient/internal/model"
	"github.com/and161185/lendclient/internal/notify"
	"github.com/and161185/lendclient/internal/reports"
	"github.com/and161185/lendclient/internal/session"
	"github.com/and161185/lendclient/internal/state"
	"github.com/and161185/lendclient/internal/storage"
	"github.com/and161185/lendclient/internal/wizard"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type harness struct {
	srv      *Server
	http     *httptest.Server
	mem      *storage.Memory
	store    *state.Store
	client   *api.Client
	metrics  *metrics.Metrics
	failures int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := zaptest.NewLogger(t)
	srv, err := NewServer(Config{SignKey: []byte("test-key"), AccessTTL: time.Minute, Logger: log})
	require.NoError(t, err)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)

	h := &harness{srv: srv, http: hs, mem: storage.NewMemory(), metrics: metrics.New(prometheus.NewRegistry())}
	h.store = state.New(session.New(h.mem, log), log, h.metrics)
	h.client, err = api.New(hs.URL, h.store,
		api.WithLogger(log),
		api.WithMetrics(h.metrics),
		api.WithAuthFailureHandler(api.AuthFailureFunc(func(ctx context.Context) {
			h.failures++
			h.store.Dispatch(ctx, state.RefreshFailed{})
		})))
	require.NoError(t, err)
	return h
}

func (h *harness) login(t *testing.T, email string) model.Session {
	t.Helper()
	sess, err := h.client.Login(context.Background(), email, "password123")
	require.NoError(t, err)
	h.store.Dispatch(context.Background(), state.LoginSucceeded{Session: sess})
	return sess
}

func (h *harness) expireAccess(t *testing.T) {
	t.Helper()
	id := h.store.Snapshot().Auth.User.ID
	stale, err := h.srv.auth.issueToken(id, tokenAccess, -time.Minute)
	require.NoError(t, err)
	h.store.SetAccessToken(context.Background(), stale)
}

func fillValid(w *wizard.Wizard) {
	w.Fill(wizard.Form{
		Personal: wizard.Personal{
			FirstName: "Alex", LastName: "Applicant", Email: "applicant@example.com",
			Phone: "555-123-4567", DateOfBirth: "1985-02-03", SSN: "123456789",
			Street: "1 Main St", City: "Austin", State: "TX", ZIP: "73301",
		},
		Employment: wizard.Employment{Status: wizard.EmploymentSelfEmployed, Employer: "Self", YearsEmployed: 3},
		Financial:  wizard.Financial{AnnualIncome: 120_000, LoanAmount: 50_000, LoanPurpose: "business", LoanTerm: 120},
	})
}

func TestE2E_SubmitWithTwoFiles(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	sess := h.login(t, "applicant@example.com")
	require.Equal(t, sess.User.ID, h.store.Snapshot().Profile.ID)

	w := wizard.New(h.client, wizard.WithMetrics(h.metrics))
	fillValid(w)
	_, err := w.AddFile("license.png", []byte("png-bytes"), model.DocID)
	require.NoError(t, err)
	_, err = w.AddFile("w2.pdf", []byte("pdf-bytes"), model.DocProofOfIncome)
	require.NoError(t, err)
	for w.Step() != wizard.StepReview {
		require.NoError(t, w.Next())
	}

	app, err := w.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, model.StatusSubmitted, app.Status)

	creates, uploads := h.srv.Applications().Counts()
	require.Equal(t, 1, creates)
	require.Equal(t, 2, uploads)
	require.Equal(t, wizard.StepPersonal, w.Step())
	require.Empty(t, w.Files())

	got, err := h.client.GetApplication(context.Background(), app.ID)
	require.NoError(t, err)
	require.Len(t, got.Documents, 2)
	require.Equal(t, 2.0, testutil.ToFloat64(h.metrics.Uploads.WithLabelValues("success")))
}

func TestE2E_SaveDraftTwiceKeepsOneRecord(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.login(t, "applicant@example.com")
	w := wizard.New(h.client)
	w.Edit(func(f *wizard.Form) { f.Personal.FirstName = "Alex" })

	id, err := w.SaveDraft(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, id)
	id2, err := w.SaveDraft(context.Background())
	require.NoError(t, err)
	require.Equal(t, id, id2)
	creates, _ := h.srv.Applications().Counts()
	require.Equal(t, 1, creates)
}

func TestE2E_ExpiredAccessRefreshesOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	sess := h.login(t, "applicant@example.com")
	h.expireAccess(t)

	u, err := h.client.Me(context.Background())
	require.NoError(t, err)
	require.Equal(t, sess.User.ID, u.ID)
	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Replays))
	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.TokenRefresh.WithLabelValues("success")))
	require.NotEqual(t, sess.AccessToken, h.store.AccessToken())
	require.Zero(t, h.failures)
}

func TestE2E_RevokedRefreshLogsOut(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	sess := h.login(t, "applicant@example.com")
	h.srv.Auth().Revoke(sess.RefreshToken)
	h.expireAccess(t)

	_, err := h.client.Me(context.Background())
	require.ErrorIs(t, err, errs.ErrSessionExpired)
	require.Equal(t, 1, h.failures)
	snap := h.store.Snapshot()
	require.False(t, snap.Auth.IsAuthenticated)
	require.Nil(t, snap.Profile)
	keys, err := h.mem.Keys(context.Background())
	require.NoError(t, err)
	require.Empty(t, keys, "storage must be cleared")
}

func TestE2E_MFALogin(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	pending, err := h.client.Login(context.Background(), "admin@example.com", "password123")
	require.ErrorIs(t, err, errs.ErrMFARequired)
	h.store.Dispatch(context.Background(), state.MFARequired{TempToken: pending.TempToken, Methods: pending.MFAMethods})

	sess, err := h.client.VerifyMFA(context.Background(), h.store.Snapshot().Auth.TempToken, MFACode)
	require.NoError(t, err)
	h.store.Dispatch(context.Background(), state.LoginSucceeded{Session: sess})
	grants := h.store.Snapshot().Auth.Grants()
	require.True(t, grants.Can(access.PermManageUsers), "admin passes every known permission")
	require.Empty(t, h.store.Snapshot().Auth.TempToken)
}

func TestE2E_ReportsGating(t *testing.T) {
	t.Parallel()

	hasRisk := func(p *model.ReportPage) bool {
		for _, r := range p.Results {
			if r.Kind == reports.KindRisk {
				return true
			}
		}
		return false
	}
	ctx := context.Background()

	officer := newHarness(t)
	officer.login(t, "officer@example.com")
	svc := reports.New(officer.client, func() access.Grants { return officer.store.Snapshot().Auth.Grants() }, nil)
	page, err := svc.List(ctx, 1, "")
	require.NoError(t, err)
	require.NotEmpty(t, page.Results)
	require.False(t, hasRisk(page), "officer must not see risk reports")
	_, err = svc.List(ctx, 1, reports.KindRisk)
	require.ErrorIs(t, err, errs.ErrForbidden)

	analyst := newHarness(t)
	analyst.login(t, "analyst@example.com")
	svc = reports.New(analyst.client, func() access.Grants { return analyst.store.Snapshot().Auth.Grants() }, nil)
	page, err = svc.List(ctx, 1, reports.KindRisk)
	require.NoError(t, err)
	require.True(t, hasRisk(page))

	applicant := newHarness(t)
	applicant.login(t, "applicant@example.com")
	svc = reports.New(applicant.client, func() access.Grants { return applicant.store.Snapshot().Auth.Grants() }, nil)
	_, err = svc.List(ctx, 1, "")
	require.ErrorIs(t, err, errs.ErrForbidden)
}

func TestE2E_NotificationOnSubmit(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.login(t, "applicant@example.com")

	got := make(chan model.Notification, 1)
	ws := "ws" + strings.TrimPrefix(h.http.URL, "http")
	nc := notify.New(ws, h.store.AccessToken, func(n model.Notification) { got <- n })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- nc.Run(ctx) }()

	id := h.store.Snapshot().Auth.User.ID
	require.Eventually(t, func() bool { return h.srv.Hub().Connected(id) == 1 }, 2*time.Second, 5*time.Millisecond)

	w := wizard.New(h.client)
	fillValid(w)
	_, _ = w.AddFile("id.pdf", []byte("pdf"), model.DocID)
	for w.Step() != wizard.StepReview {
		require.NoError(t, w.Next())
	}
	_, err := w.Submit(context.Background())
	require.NoError(t, err)

	select {
	case n := <-got:
		require.Equal(t, "application_status", n.Type)
		require.Contains(t, string(n.Data), "SUBMITTED")
	case <-time.After(2 * time.Second):
		t.Fatalf("no notification")
	}
	cancel()
	require.NoError(t, <-done)
}

func TestServer_RejectsMissingBearer(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	res, err := http.Get(h.http.URL + "/api/auth/me/")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
}
