package main

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/and161185/lendclient/internal/api"
	"github.com/and161185/lendclient/internal/config"
	"github.com/and161185/lendclient/internal/logger"
	"github.com/and161185/lendclient/internal/metrics"
	"github.com/and161185/lendclient/internal/migrate"
	"github.com/and161185/lendclient/internal/session"
	"github.com/and161185/lendclient/internal/state"
	"github.com/and161185/lendclient/internal/storage"
	"github.com/and161185/lendclient/internal/storage/postgres"
)

// loginHint is printed whenever the session is gone.
const loginHint = "session expired, run `lend login` to sign in again"

// app holds what every command needs. It is filled in by setup.
type app struct {
	stdin  io.Reader
	out    io.Writer
	errOut io.Writer
	getenv func(string) string

	// global flags
	cfgPath     string
	apiURL      string
	store       string
	logLevel    string
	showMetrics bool

	cfg      *config.Config
	log      *zap.Logger
	reg      *prometheus.Registry
	metrics  *metrics.Metrics
	sessions *session.Store
	state    *state.Store
	client   *api.Client
	closers  []func()
}

func (a *app) setup(cmd *cobra.Command) error {
	ctx := cmd.Context()
	cfg, err := config.Load(a.cfgPath, a.getenv)
	if err != nil {
		return err
	}
	if a.apiURL != "" {
		cfg.APIURL = a.apiURL
	}
	if a.store != "" {
		cfg.Storage = a.store
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return usageError{fmt.Errorf("invalid flags: %w", err)}
	}
	a.cfg = cfg

	a.log, err = logger.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		return usageError{err}
	}
	a.closers = append(a.closers, func() { _ = a.log.Sync() })

	a.reg = prometheus.NewRegistry()
	a.metrics = metrics.New(a.reg)

	st, err := a.openStorage(ctx)
	if err != nil {
		return err
	}
	a.sessions = session.New(st, a.log.Named("session"))
	a.state = state.New(a.sessions, a.log.Named("state"), a.metrics)
	a.state.Restore(ctx)

	a.client, err = api.New(cfg.APIURL, a.state,
		api.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		api.WithLogger(a.log.Named("api")),
		api.WithMetrics(a.metrics),
		api.WithAuthFailureHandler(api.AuthFailureFunc(a.onAuthFailure)),
	)
	return err
}

// openStorage builds the configured persistence backend.
func (a *app) openStorage(ctx context.Context) (storage.Storage, error) {
	switch a.cfg.Storage {
	case config.StorageMemory:
		return storage.NewMemory(), nil
	case config.StorageFile:
		return storage.NewFile(a.cfg.StorageDir), nil
	case config.StorageSealed:
		return storage.NewSealed(storage.NewFile(a.cfg.StorageDir), a.cfg.Passphrase), nil
	case config.StoragePostgres:
		if err := migrate.Up(ctx, a.cfg.StorageDSN, a.log.Named("migrate")); err != nil {
			return nil, fmt.Errorf("migrate storage: %w", err)
		}
		db, err := postgres.New(ctx, a.cfg.StorageDSN)
		if err != nil {
			return nil, fmt.Errorf("connect storage: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		return postgres.NewStore(db, "default"), nil
	}
	return nil, usagef("unknown storage %q", a.cfg.Storage)
}

// onAuthFailure runs when the refresh token was rejected: the session is
// cleared and the user is told to sign in again.
func (a *app) onAuthFailure(ctx context.Context) {
	a.state.Dispatch(ctx, state.RefreshFailed{})
	fmt.Fprintln(a.errOut, loginHint)
}

// requireSession fails fast when no one is signed in.
func (a *app) requireSession() error {
	if !a.state.Snapshot().Auth.IsAuthenticated {
		return fmt.Errorf("not signed in, run `lend login` first")
	}
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
