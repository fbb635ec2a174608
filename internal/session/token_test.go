package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/cli/internal/metrics"
)

func TestSetToken_DerivesUserFromClaims(t *testing.T) {
	f := newFixture(t)
	token := mintToken(t, jwt.MapClaims{
		"sub":         "u42",
		"username":    "ana",
		"email":       "ana@example.org",
		"roles":       []string{"advisor", "reviewer"},
		"permissions": []string{"reports:read"},
	})

	f.manager.SetToken(context.Background(), token)

	st := f.manager.State()
	require.NotNil(t, st.User)
	assert.Equal(t, "u42", st.User.ID)
	assert.Equal(t, "ana", st.User.Username)
	assert.Equal(t, []string{"advisor", "reviewer"}, st.User.Roles)
	assert.True(t, st.User.HasPermission("reports:read"))
	assert.Empty(t, st.User.FormPermissions)
	assert.True(t, st.MinimalProfile)
	assert.Equal(t, PhaseAuthenticated, st.Phase)

	assert.Equal(t, token, f.storedToken(t))
	assert.Equal(t, token, f.client.AuthToken())
}

func TestSetToken_GarbageClearsEverything(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(t, WithMetrics(metrics.New(reg)))
	f.manager.SetToken(context.Background(), mintToken(t, jwt.MapClaims{"sub": "u1"}))
	require.True(t, f.manager.IsAuthenticated())

	f.manager.SetToken(context.Background(), "garbage")

	assert.False(t, f.manager.IsAuthenticated())
	assert.Nil(t, f.manager.User())
	assert.Empty(t, f.storedToken(t))
	assert.Empty(t, f.client.AuthToken())
	expected := `
# HELP fieldops_session_invalid_tokens_total Tokens rejected by the local decoder
# TYPE fieldops_session_invalid_tokens_total counter
fieldops_session_invalid_tokens_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "fieldops_session_invalid_tokens_total"))
}

func TestSetToken_EmptySignsOut(t *testing.T) {
	f := newFixture(t)
	f.manager.SetToken(context.Background(), mintToken(t, jwt.MapClaims{"sub": "u1"}))

	f.manager.SetToken(context.Background(), "")

	st := f.manager.State()
	assert.False(t, st.IsAuthenticated())
	assert.Nil(t, st.User)
	assert.False(t, st.MinimalProfile)
	assert.Equal(t, PhaseAnonymous, st.Phase)
	assert.Empty(t, f.storedToken(t))
}

func TestLogin_IsSetToken(t *testing.T) {
	f := newFixture(t)
	token := mintToken(t, jwt.MapClaims{"sub": "u7"})

	f.manager.Login(context.Background(), token)

	assert.Equal(t, token, f.manager.AccessToken())
	assert.Equal(t, "u7", f.manager.User().ID)
}

func TestSetAuth_KeepsServerProfile(t *testing.T) {
	f := newFixture(t)
	token := mintToken(t, jwt.MapClaims{"sub": "u1", "username": "from-token"})

	f.manager.SetAuth(context.Background(), token, map[string]any{
		"UserID":   "u1",
		"Username": "from-server",
		"FormPermissions": []any{
			map[string]any{"FormPath": "/Reports", "CanView": true, "CanEdit": false},
		},
	})

	st := f.manager.State()
	require.NotNil(t, st.User)
	assert.Equal(t, "from-server", st.User.Username)
	assert.False(t, st.MinimalProfile)
	assert.True(t, f.manager.HasFormPermission("/reports", "canView"))
	assert.False(t, f.manager.HasFormPermission("/reports", "canEdit"))
	assert.Equal(t, token, f.storedToken(t))
}

func TestSetAuth_EmptyUserFallsBackToClaims(t *testing.T) {
	f := newFixture(t)
	token := mintToken(t, jwt.MapClaims{"sub": "u1"})

	f.manager.SetAuth(context.Background(), token, map[string]any{})

	st := f.manager.State()
	require.NotNil(t, st.User)
	assert.Equal(t, "u1", st.User.ID)
	assert.True(t, st.MinimalProfile)
}

func TestSetAuth_EmptyTokenClearsLocally(t *testing.T) {
	f := newFixture(t)
	f.manager.SetToken(context.Background(), mintToken(t, jwt.MapClaims{"sub": "u1"}))

	f.manager.SetAuth(context.Background(), "", map[string]any{"UserID": "u1"})

	assert.False(t, f.manager.IsAuthenticated())
	assert.Nil(t, f.manager.User())
	assert.Equal(t, int32(0), f.backend.logoutHits.Load())
	assert.Empty(t, f.nav.assigned)
}

func TestSetToken_StoreFailureStillUpdatesState(t *testing.T) {
	f := newFixture(t)
	m := New(f.client, WithStore(failingStore{}))
	defer m.Close()

	m.SetToken(context.Background(), mintToken(t, jwt.MapClaims{"sub": "u1"}))

	assert.True(t, m.IsAuthenticated())
	assert.Equal(t, "u1", m.User().ID)
}

func TestSubscribe_ReceivesChangesUntilUnsubscribed(t *testing.T) {
	f := newFixture(t)
	var got []State
	unsubscribe := f.manager.Subscribe(func(st State) { got = append(got, st) })

	token := mintToken(t, jwt.MapClaims{"sub": "u1"})
	f.manager.SetToken(context.Background(), token)
	unsubscribe()
	f.manager.SetToken(context.Background(), "")

	require.Len(t, got, 1)
	assert.Equal(t, token, got[0].Token)
	assert.Equal(t, PhaseAuthenticated, got[0].Phase)
}

// blockingStore holds every Save until release is closed.
type blockingStore struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once

	mu    sync.Mutex
	token string
}

func newBlockingStore() *blockingStore {
	return &blockingStore{entered: make(chan struct{}), release: make(chan struct{})}
}

func (s *blockingStore) Load(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *blockingStore) Save(_ context.Context, token string) error {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *blockingStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}

func TestSetAuth_SlowStoreDoesNotBlockReaders(t *testing.T) {
	f := newFixture(t)
	store := newBlockingStore()
	m := New(f.client, WithStore(store))
	defer m.Close()

	token := mintToken(t, jwt.MapClaims{"sub": "u1"})
	done := make(chan struct{})
	go func() {
		m.SetAuth(context.Background(), token, map[string]any{"UserID": "u1"})
		close(done)
	}()
	<-store.entered

	read := make(chan State, 1)
	go func() { read <- m.State() }()
	select {
	case st := <-read:
		assert.Equal(t, token, st.Token)
		assert.Equal(t, "u1", st.User.ID)
		assert.Equal(t, token, f.client.AuthToken())
	case <-time.After(time.Second):
		t.Fatal("State() waited for the durable store")
	}

	close(store.release)
	<-done
	stored, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, token, stored)
}

func TestPersist_SkipsOlderTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.manager.persist(ctx, 5, "newer")
	f.manager.persist(ctx, 4, "older")
	assert.Equal(t, "newer", f.storedToken(t))

	f.manager.persist(ctx, 6, "")
	assert.Empty(t, f.storedToken(t))
}

func TestSubscribe_DeliversInCommitOrder(t *testing.T) {
	f := newFixture(t)
	first := mintToken(t, jwt.MapClaims{"sub": "u1"})
	second := mintToken(t, jwt.MapClaims{"sub": "u2"})

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	var mu sync.Mutex
	var got []string
	unsubscribe := f.manager.Subscribe(func(st State) {
		mu.Lock()
		got = append(got, st.Token)
		mu.Unlock()
		once.Do(func() {
			close(entered)
			<-release
		})
	})
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		f.manager.SetToken(context.Background(), first)
		close(done)
	}()
	<-entered

	// The first delivery is still running; the second change is applied
	// at once and its snapshot is queued behind the first.
	f.manager.SetToken(context.Background(), second)
	assert.Equal(t, second, f.manager.Token())

	close(release)
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{first, second}, got)
}

func TestClose_IgnoresLaterChanges(t *testing.T) {
	f := newFixture(t)
	f.manager.Close()

	f.manager.SetToken(context.Background(), mintToken(t, jwt.MapClaims{"sub": "u1"}))

	assert.False(t, f.manager.IsAuthenticated())
	assert.Empty(t, f.storedToken(t))
}

func TestPhase_String(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{PhaseIdle, "idle"},
		{PhaseLoading, "loading"},
		{PhaseAuthenticated, "authenticated"},
		{PhaseAnonymous, "anonymous"},
		{Phase(42), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.phase.String())
	}
}
