// Package session manages the signed-in user for the lifetime of a process:
// it holds the access token, recovers a session at startup, routes
// authenticated calls and forces a logout when the backend rejects the token.
//
// A Manager is created by the composition root and handed to whatever needs
// the session. There is no package-level instance.
package session

import (
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/fieldops/cli/internal/api"
	"github.com/fieldops/cli/internal/auth"
	"github.com/fieldops/cli/internal/identity"
	"github.com/fieldops/cli/internal/logger"
	"github.com/fieldops/cli/internal/metrics"
)

// Phase is the bootstrap state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseAuthenticated
	PhaseAnonymous
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// State is a snapshot of the session. User is only set when Token is.
type State struct {
	Token   string
	User    *identity.User
	Loading bool
	Phase   Phase

	// MinimalProfile is true when User was synthesized from token claims
	// because no server profile was available. Such a user has no form
	// permissions until RefreshProfile succeeds.
	MinimalProfile bool
}

// IsAuthenticated reports whether a token is held.
func (s State) IsAuthenticated() bool {
	return s.Token != ""
}

// Paths are the backend auth endpoints, relative to the API base URL.
type Paths struct {
	Session string
	Me      string
	Logout  string
}

// DefaultPaths returns the endpoints the backend exposes.
func DefaultPaths() Paths {
	return Paths{
		Session: "/auth/session",
		Me:      "/auth/me",
		Logout:  "/auth/logout",
	}
}

// Navigator moves the user after logout. Assign performs a full navigation to
// an absolute URL; Replace is the in-app fallback to a route path.
type Navigator interface {
	Assign(url string) error
	Replace(path string)
}

// Manager owns the process-wide session state.
type Manager struct {
	api           *api.Client
	store         auth.Store
	nav           Navigator
	logger        *slog.Logger
	metrics       *metrics.Metrics
	tracer        trace.Tracer
	paths         Paths
	landingURL    string
	logoutTimeout time.Duration
	now           func() time.Time

	mu         sync.RWMutex
	state      State
	epoch      uint64
	closed     bool
	subs       map[int]func(State)
	nextID     int
	pending    []State
	delivering bool

	// storeMu serializes durable writes; storeEpoch is the epoch of the
	// last transition written, so an older write never lands after a newer one.
	storeMu    sync.Mutex
	storeEpoch uint64

	bootstrap singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithStore sets the durable token store (default: in memory).
func WithStore(store auth.Store) Option {
	return func(m *Manager) {
		if store != nil {
			m.store = store
		}
	}
}

// WithNavigator sets where users are sent after logout.
func WithNavigator(nav Navigator) Option {
	return func(m *Manager) {
		m.nav = nav
	}
}

// WithLogger sets the logger (default: discard).
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics enables Prometheus collection.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(m *Manager) {
		if t != nil {
			m.tracer = t
		}
	}
}

// WithPaths overrides DefaultPaths.
func WithPaths(p Paths) Option {
	return func(m *Manager) {
		m.paths = p
	}
}

// WithLandingURL sets the absolute URL users are sent to after logout.
func WithLandingURL(u string) Option {
	return func(m *Manager) {
		m.landingURL = u
	}
}

// WithLogoutTimeout bounds the best-effort server logout call.
func WithLogoutTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.logoutTimeout = d
		}
	}
}

// WithClock sets the clock used to detect expired stored tokens.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// New creates a Manager sending its calls through client.
func New(client *api.Client, opts ...Option) *Manager {
	m := &Manager{
		api:           client,
		store:         auth.NewMemoryStore(),
		logger:        logger.Discard(),
		tracer:        otel.Tracer("github.com/fieldops/cli/internal/session"),
		paths:         DefaultPaths(),
		logoutTimeout: 5 * time.Second,
		now:           time.Now,
		subs:          map[int]func(State){},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current snapshot.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Token returns the access token, or "" when signed out.
func (m *Manager) Token() string {
	return m.State().Token
}

// AccessToken is an alias of Token for callers that use the backend's name.
func (m *Manager) AccessToken() string {
	return m.Token()
}

// User returns the signed-in user or nil.
func (m *Manager) User() *identity.User {
	return m.State().User
}

// IsAuthenticated reports whether a token is held.
func (m *Manager) IsAuthenticated() bool {
	return m.State().IsAuthenticated()
}

// Loading reports whether a bootstrap pass is in progress.
func (m *Manager) Loading() bool {
	return m.State().Loading
}

// HasFormPermission answers against the current user; see identity.User.HasFormPermission.
func (m *Manager) HasFormPermission(formKey string, flag ...string) bool {
	return m.User().HasFormPermission(formKey, flag...)
}

// Subscribe registers fn to receive every new state. The returned function
// removes the subscription. Snapshots arrive one at a time in the order the
// changes were applied. fn may run on a goroutine other than the one that
// made the change, and should return quickly.
func (m *Manager) Subscribe(fn func(State)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return func() {}
	}
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// Close detaches the Manager. Results of calls still in flight are dropped
// and no further state changes are applied or published.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.subs = map[int]func(State){}
	m.pending = nil
}

// queueLocked records st for delivery. m.mu must be held for writing.
func (m *Manager) queueLocked(st State) {
	m.pending = append(m.pending, st)
}

// deliver hands queued snapshots to subscribers outside the lock. One
// goroutine delivers at a time; a caller that finds delivery in progress
// returns and leaves its snapshot to that goroutine.
func (m *Manager) deliver() {
	m.mu.Lock()
	if m.delivering {
		m.mu.Unlock()
		return
	}
	m.delivering = true
	for len(m.pending) > 0 {
		st := m.pending[0]
		m.pending = m.pending[1:]
		fns := make([]func(State), 0, len(m.subs))
		for _, fn := range m.subs {
			fns = append(fns, fn)
		}
		m.mu.Unlock()

		for _, fn := range fns {
			fn(st)
		}
		m.mu.Lock()
	}
	m.delivering = false
	m.mu.Unlock()
}

// settledPhase derives the phase after a change outside a bootstrap pass.
func settledPhase(st State) Phase {
	if st.Loading {
		return PhaseLoading
	}
	if st.Token != "" {
		return PhaseAuthenticated
	}
	return PhaseAnonymous
}
