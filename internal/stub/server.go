// Package stub is a development backend speaking the lending REST and
// notification contract. It keeps everything in memory.
package stub

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/and161185/lendclient/internal/access"
	"github.com/and161185/lendclient/internal/errs"
	"github.com/and161185/lendclient/internal/logger"
	"github.com/and161185/lendclient/internal/model"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const (
	maxUpload      = 10 << 20
	reportPageSize = 10
)

// Config configures a Server.
type Config struct {
	SignKey   []byte
	AccessTTL time.Duration
	Accounts  []DemoAccount // nil means DemoAccounts
	Limiter   Limiter       // nil means 5 failures per 15 minutes
	Logger    *zap.Logger
}

// Server is the stub backend.
type Server struct {
	auth    *Auth
	apps    *Applications
	reports []model.Report
	hub     *Hub
	log     *zap.Logger
	router  chi.Router
}

// NewServer registers the accounts and builds the router.
func NewServer(cfg Config) (*Server, error) {
	if len(cfg.SignKey) == 0 {
		return nil, errors.New("missing jwt signing key")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.Accounts == nil {
		cfg.Accounts = DemoAccounts
	}
	if cfg.Limiter == nil {
		cfg.Limiter = NewMemoryLimiter(15*time.Minute, 5, 15*time.Minute)
	}
	log := logger.OrNop(cfg.Logger)
	s := &Server{
		auth:    NewAuth(cfg.SignKey, cfg.AccessTTL, cfg.Limiter),
		apps:    NewApplications(),
		reports: seedReports(time.Now().UTC()),
		hub:     NewHub(log),
		log:     log,
	}
	for _, d := range cfg.Accounts {
		if _, err := s.auth.Register(d); err != nil {
			return nil, fmt.Errorf("register %s: %w", d.Email, err)
		}
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Auth exposes the token issuer (tests mint tokens with it).
func (s *Server) Auth() *Auth { return s.auth }

// Applications exposes the application store.
func (s *Server) Applications() *Applications { return s.apps }

// Hub exposes the notification hub.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, Recover(s.log), Logging(s.log))

	r.Post("/api/auth/login/", s.login)
	r.Post("/api/auth/mfa/verify/", s.verifyMFA)
	r.Post("/api/auth/token/refresh/", s.refresh)
	r.Get("/ws/notifications/", s.notifications)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post("/api/auth/logout/", s.logout)
		r.Get("/api/auth/me/", s.me)
		r.Route("/api/applications", func(r chi.Router) {
			r.With(s.gate(access.GateCreateApplication)).Post("/", s.createApplication)
			r.Route("/{id}", func(r chi.Router) {
				r.Patch("/", s.updateApplication)
				r.Get("/", s.getApplication)
				r.Post("/documents/", s.uploadDocument)
			})
		})
		r.Route("/api/reports", func(r chi.Router) {
			r.Use(s.gate(access.GateViewReports))
			r.Get("/", s.listReports)
			r.Get("/{id}/", s.getReport)
		})
	})
	return r
}

func grantsOf(acc *Account) access.Grants {
	return access.Grants{
		Authenticated: true,
		Roles:         access.ParseRoles(acc.Roles),
		Permissions:   access.ParsePermissions(acc.Permissions),
	}
}

func (s *Server) gate(g access.Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			acc, _ := AccountFromCtx(r.Context())
			if err := g.Check(grantsOf(acc)); err != nil {
				writeDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ---- encoding ----

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeErr maps service errors onto the backend error shapes.
func (s *Server) writeErr(w http.ResponseWriter, err error) {
	var fe FieldErrors
	switch {
	case errors.As(err, &fe):
		writeJSON(w, http.StatusBadRequest, fe)
	case errors.Is(err, errs.ErrUnauthorized):
		writeDetail(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, errs.ErrRateLimited):
		writeDetail(w, http.StatusTooManyRequests, "Too many failed attempts. Try again later.")
	case errors.Is(err, errs.ErrNotFound):
		writeDetail(w, http.StatusNotFound, "Not found.")
	case errors.Is(err, errs.ErrValidation), strings.HasPrefix(err.Error(), "validation:"):
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": strings.TrimPrefix(err.Error(), "validation: ")})
	default:
		s.log.Error("handler failed", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		return fmt.Errorf("validation: malformed JSON body")
	}
	return nil
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ---- auth ----

type authResponse struct {
	Token             string          `json:"token,omitempty"`
	Refresh           string          `json:"refresh,omitempty"`
	User              *model.User     `json:"user,omitempty"`
	Roles             []string        `json:"roles,omitempty"`
	Permissions       []string        `json:"permissions,omitempty"`
	PermissionSummary json.RawMessage `json:"permission_summary,omitempty"`
	RequiresMFA       bool            `json:"requires_mfa,omitempty"`
	TempToken         string          `json:"temp_token,omitempty"`
	MFAMethods        []string        `json:"mfa_methods,omitempty"`
}

func toAuthResponse(res AuthResult) authResponse {
	if res.TempToken != "" {
		return authResponse{RequiresMFA: true, TempToken: res.TempToken, MFAMethods: []string{"totp"}}
	}
	acc := res.Account
	summary, _ := json.Marshal(map[string]any{"role": acc.User.Role, "count": len(acc.Permissions)})
	u := acc.User
	return authResponse{
		Token:             res.Access,
		Refresh:           res.Refresh,
		User:              &u,
		Roles:             acc.Roles,
		Permissions:       acc.Permissions,
		PermissionSummary: summary,
	}
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		s.writeErr(w, err)
		return
	}
	missing := map[string][]string{}
	if in.Email == "" {
		missing["email"] = []string{"This field is required."}
	}
	if in.Password == "" {
		missing["password"] = []string{"This field is required."}
	}
	if len(missing) > 0 {
		writeJSON(w, http.StatusBadRequest, missing)
		return
	}
	res, err := s.auth.Login(r.Context(), in.Email, in.Password, remoteIP(r))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuthResponse(res))
}

func (s *Server) verifyMFA(w http.ResponseWriter, r *http.Request) {
	var in struct {
		TempToken string `json:"temp_token"`
		Code      string `json:"code"`
	}
	if err := decodeJSON(r, &in); err != nil {
		s.writeErr(w, err)
		return
	}
	res, err := s.auth.VerifyMFA(in.TempToken, in.Code)
	switch {
	case errors.Is(err, errs.ErrValidation):
		writeDetail(w, http.StatusBadRequest, "Invalid verification code")
	case err != nil:
		s.writeErr(w, err)
	default:
		writeJSON(w, http.StatusOK, toAuthResponse(res))
	}
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Refresh string `json:"refresh"`
	}
	if err := decodeJSON(r, &in); err != nil {
		s.writeErr(w, err)
		return
	}
	tok, err := s.auth.Refresh(in.Refresh)
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, "Token is invalid or expired")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": tok})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Refresh string `json:"refresh"`
	}
	_ = decodeJSON(r, &in)
	s.auth.Revoke(in.Refresh)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	acc, _ := AccountFromCtx(r.Context())
	writeJSON(w, http.StatusOK, acc.User)
}

// ---- applications ----

func (s *Server) createApplication(w http.ResponseWriter, r *http.Request) {
	acc, _ := AccountFromCtx(r.Context())
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	app, err := s.apps.Create(acc.User.ID, raw)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.statusChanged(acc, app)
	writeJSON(w, http.StatusCreated, app)
}

func (s *Server) updateApplication(w http.ResponseWriter, r *http.Request) {
	acc, _ := AccountFromCtx(r.Context())
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	app, err := s.apps.Update(acc.User.ID, chi.URLParam(r, "id"), raw)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.statusChanged(acc, app)
	writeJSON(w, http.StatusOK, app)
}

func (s *Server) statusChanged(acc *Account, app *model.Application) {
	if app.Status != model.StatusSubmitted {
		return
	}
	data, _ := json.Marshal(map[string]string{"application_id": app.ID, "status": string(app.Status)})
	s.hub.Publish(acc.User.ID, model.Notification{Type: "application_status", Data: data})
}

func (s *Server) getApplication(w http.ResponseWriter, r *http.Request) {
	acc, _ := AccountFromCtx(r.Context())
	reviewer := grantsOf(acc).Can(access.PermReviewApplications)
	app, err := s.apps.Get(acc.User.ID, chi.URLParam(r, "id"), reviewer)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (s *Server) uploadDocument(w http.ResponseWriter, r *http.Request) {
	acc, _ := AccountFromCtx(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload+1<<20)
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"file": {"Upload a valid file."}})
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"file": {"No file was submitted."}})
		return
	}
	_ = f.Close()
	if hdr.Size > maxUpload {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"file": {"File exceeds 10 MB."}})
		return
	}
	dt := model.DocumentType(r.FormValue("document_type"))
	doc, err := s.apps.AddDocument(acc.User.ID, chi.URLParam(r, "id"), hdr.Filename, dt)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// ---- reports ----

func seedReports(now time.Time) []model.Report {
	kinds := []string{"PORTFOLIO", "RISK", "PERFORMANCE"}
	out := make([]model.Report, 0, 12)
	for i := 1; i <= 12; i++ {
		k := kinds[i%len(kinds)]
		out = append(out, model.Report{
			ID:        strconv.Itoa(i),
			Title:     fmt.Sprintf("%s report #%d", strings.ToLower(k), i),
			Kind:      k,
			CreatedAt: now.Add(-time.Duration(i) * 24 * time.Hour),
			Summary:   map[string]any{"applications": 10 * i},
		})
	}
	return out
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	acc, _ := AccountFromCtx(r.Context())
	risk := grantsOf(acc).Can(access.PermViewRiskScores)
	kind := strings.ToUpper(r.URL.Query().Get("kind"))
	var all []model.Report
	for _, rep := range s.reports {
		if (kind == "" || rep.Kind == kind) && (risk || rep.Kind != "RISK") {
			all = append(all, rep)
		}
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	page = max(page, 1)
	from := min((page-1)*reportPageSize, len(all))
	to := min(from+reportPageSize, len(all))
	out := model.ReportPage{Count: len(all), Results: append([]model.Report{}, all[from:to]...)}
	if to < len(all) {
		out.Next = fmt.Sprintf("%s?page=%d", r.URL.Path, page+1)
	}
	if page > 1 {
		out.Previous = fmt.Sprintf("%s?page=%d", r.URL.Path, page-1)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	acc, _ := AccountFromCtx(r.Context())
	id := chi.URLParam(r, "id")
	for _, rep := range s.reports {
		if rep.ID != id {
			continue
		}
		if rep.Kind == "RISK" && !grantsOf(acc).Can(access.PermViewRiskScores) {
			writeDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
			return
		}
		writeJSON(w, http.StatusOK, rep)
		return
	}
	writeDetail(w, http.StatusNotFound, "Not found.")
}

// ---- notifications ----

func (s *Server) notifications(w http.ResponseWriter, r *http.Request) {
	acc, err := s.auth.Authenticate(r.URL.Query().Get("token"))
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	s.hub.serve(w, r, acc)
}
