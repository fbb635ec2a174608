package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/cli/internal/api"
	"github.com/fieldops/cli/internal/auth"
)

const testSigningKey = "test-signing-key"

// mintToken signs claims the way the backend does. The session package never
// verifies the signature; it is only there to make realistic tokens.
func mintToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSigningKey))
	require.NoError(t, err)
	return token
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// backend is a configurable stand-in for the REST API.
type backend struct {
	router      chi.Router
	server      *httptest.Server
	sessionHits atomic.Int32
	meHits      atomic.Int32
	logoutHits  atomic.Int32

	mu         sync.Mutex
	lastHeader http.Header
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{router: chi.NewRouter()}
	b.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b.mu.Lock()
			b.lastHeader = r.Header.Clone()
			b.mu.Unlock()
			switch r.URL.Path {
			case "/auth/session":
				b.sessionHits.Add(1)
			case "/auth/me":
				b.meHits.Add(1)
			case "/auth/logout":
				b.logoutHits.Add(1)
			}
			next.ServeHTTP(w, r)
		})
	})
	b.server = httptest.NewServer(b.router)
	t.Cleanup(b.server.Close)
	return b
}

func (b *backend) header() http.Header {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastHeader
}

// fakeNav records navigation requests.
type fakeNav struct {
	mu        sync.Mutex
	assigned  []string
	replaced  []string
	assignErr error
}

func (n *fakeNav) Assign(url string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.assignErr != nil {
		return n.assignErr
	}
	n.assigned = append(n.assigned, url)
	return nil
}

func (n *fakeNav) Replace(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.replaced = append(n.replaced, path)
}

// failingStore fails every operation.
type failingStore struct{}

func (failingStore) Load(context.Context) (string, error) { return "", errors.New("disk on fire") }
func (failingStore) Save(context.Context, string) error   { return errors.New("disk on fire") }
func (failingStore) Clear(context.Context) error          { return errors.New("disk on fire") }

type fixture struct {
	backend *backend
	client  *api.Client
	store   *auth.MemoryStore
	nav     *fakeNav
	manager *Manager
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	b := newBackend(t)

	client, err := api.New(b.server.URL, api.WithTimeout(5*time.Second))
	require.NoError(t, err)

	f := &fixture{
		backend: b,
		client:  client,
		store:   auth.NewMemoryStore(),
		nav:     &fakeNav{},
	}
	all := append([]Option{
		WithStore(f.store),
		WithNavigator(f.nav),
		WithLandingURL("https://fieldops.example.org/"),
	}, opts...)
	f.manager = New(client, all...)
	t.Cleanup(f.manager.Close)
	return f
}

func (f *fixture) storedToken(t *testing.T) string {
	t.Helper()
	token, err := f.store.Load(context.Background())
	require.NoError(t, err)
	return token
}
