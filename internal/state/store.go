package state

import (
	"context"
	"sync"

	"github.com/and161185/lendclient/internal/logger"
	"github.com/and161185/lendclient/internal/metrics"
	"github.com/and161185/lendclient/internal/model"
	"go.uber.org/zap"
)

// Persister is where the store writes its slices after each transition.
// *session.Store implements it.
type Persister interface {
	Load(ctx context.Context) model.Session
	Save(ctx context.Context, s model.Session)
	LoadProfile(ctx context.Context) *model.UserProfile
	SaveProfile(ctx context.Context, p *model.UserProfile)
}

// Store is the explicitly constructed client state. Create one per process
// (or per test) with New; there is no package-level instance.
type Store struct {
	mu      sync.Mutex
	state   State
	seq     uint64
	persist Persister
	log     *zap.Logger
	metrics *metrics.Metrics
	subs    []func(State)

	// saveMu orders writes to persist; saved is the seq last written.
	saveMu sync.Mutex
	saved  uint64
}

// New constructs an empty store. persist may be nil for a purely in-memory store.
func New(persist Persister, log *zap.Logger, m *metrics.Metrics) *Store {
	return &Store{persist: persist, log: logger.OrNop(log), metrics: m}
}

// Restore hydrates the store from the persister.
func (s *Store) Restore(ctx context.Context) State {
	if s.persist == nil {
		return s.Snapshot()
	}
	sess := s.persist.Load(ctx)
	prof := s.persist.LoadProfile(ctx)
	return s.Dispatch(ctx, SessionRestored{Session: sess, Profile: prof})
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn to run after every dispatch.
func (s *Store) Subscribe(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// Dispatch applies e, reconciles, persists and notifies subscribers.
func (s *Store) Dispatch(ctx context.Context, e Event) State {
	s.mu.Lock()
	next, fixes := Reconcile(Reduce(s.state, e), e)
	s.state = next
	s.seq++
	seq := s.seq
	subs := make([]func(State), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	s.log.Debug("state transition", zap.String("event", EventName(e)), zap.Bool("authenticated", next.Auth.IsAuthenticated))
	s.record(fixes)
	s.save(ctx, seq, next)
	for _, fn := range subs {
		fn(next)
	}
	return next
}

// Sweep runs the on-demand consistency check and persists the result. A
// session left unauthenticated with its token is stored as such, so the user
// can be fetched again.
func (s *Store) Sweep(ctx context.Context) (State, []Fix) {
	s.mu.Lock()
	next, fixes := Sweep(s.state)
	s.state = next
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	s.record(fixes)
	if len(fixes) > 0 {
		s.save(ctx, seq, next)
	}
	return next, fixes
}

func (s *Store) record(fixes []Fix) {
	for _, f := range fixes {
		s.log.Info("state corrected", zap.String("fix", string(f)))
		s.metrics.SyncFix(string(f))
	}
}

// save writes st unless a later state has already been written.
func (s *Store) save(ctx context.Context, seq uint64, st State) {
	if s.persist == nil {
		return
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if seq <= s.saved {
		return
	}
	s.saved = seq
	s.persist.Save(ctx, st.Auth)
	s.persist.SaveProfile(ctx, st.Profile)
}

// AccessToken returns the current access token.
func (s *Store) AccessToken() string { return s.Snapshot().Auth.AccessToken }

// RefreshToken returns the current refresh token.
func (s *Store) RefreshToken() string { return s.Snapshot().Auth.RefreshToken }

// SetAccessToken records a refreshed access token.
func (s *Store) SetAccessToken(ctx context.Context, tok string) {
	s.Dispatch(ctx, TokenRefreshed{AccessToken: tok})
}
