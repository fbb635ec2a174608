package session

import (
	"context"

	"github.com/fieldops/cli/internal/auth"
	"github.com/fieldops/cli/internal/identity"
	"github.com/fieldops/cli/internal/metrics"
)

// transition is a complete replacement of the token/user pair.
type transition struct {
	token   string
	user    *identity.User
	minimal bool
}

// commit applies t in one step: in-memory state and the API client's default
// header change together under the lock. The durable store is written after
// the lock is released. When guard is non-nil the change is dropped if any
// other transition happened since the guard was taken; on success the guard
// advances so the same caller can commit again.
func (m *Manager) commit(ctx context.Context, t transition, guard *uint64) bool {
	m.mu.Lock()
	if m.closed || (guard != nil && *guard != m.epoch) {
		m.mu.Unlock()
		return false
	}
	m.epoch++
	epoch := m.epoch
	if guard != nil {
		*guard = epoch
	}

	if t.token == "" {
		t.user = nil
		t.minimal = false
	}
	m.state.Token = t.token
	m.state.User = t.user
	m.state.MinimalProfile = t.minimal
	m.state.Phase = settledPhase(m.state)
	m.api.SetAuthToken(t.token)
	m.queueLocked(m.state)
	m.mu.Unlock()

	m.persist(context.WithoutCancel(ctx), epoch, t.token)
	m.deliver()
	return true
}

// persist writes token to the durable store, or clears it when token is
// empty. A write for an epoch older than the last one written is skipped.
func (m *Manager) persist(ctx context.Context, epoch uint64, token string) {
	m.storeMu.Lock()
	defer m.storeMu.Unlock()
	if epoch < m.storeEpoch {
		return
	}
	m.storeEpoch = epoch

	var err error
	if token == "" {
		err = m.store.Clear(ctx)
	} else {
		err = m.store.Save(ctx, token)
	}
	if err != nil {
		m.logger.Warn("failed to update stored token", "error", err)
	}
}

// SetToken replaces the access token and rebuilds the user from its claims.
// An empty token signs out locally. A token that cannot be decoded is treated
// the same way: the whole session is cleared.
func (m *Manager) SetToken(ctx context.Context, token string) {
	m.setToken(ctx, token, nil)
}

func (m *Manager) setToken(ctx context.Context, token string, guard *uint64) string {
	if token == "" {
		if !m.commit(ctx, transition{}, guard) {
			return metrics.OutcomeDiscarded
		}
		return metrics.OutcomeAnonymous
	}

	claims := auth.DecodeUnverified(token)
	if claims == nil {
		m.logger.Warn("discarding access token that could not be decoded")
		m.metrics.InvalidToken()
		if !m.commit(ctx, transition{}, guard) {
			return metrics.OutcomeDiscarded
		}
		return metrics.OutcomeInvalidToken
	}

	t := transition{token: token, user: identity.FromClaims(claims), minimal: true}
	if !m.commit(ctx, t, guard) {
		return metrics.OutcomeDiscarded
	}
	return metrics.OutcomeTokenOnly
}

// Login signs in with a bare token; the user is derived from its claims.
func (m *Manager) Login(ctx context.Context, token string) {
	m.SetToken(ctx, token)
}

// SetAuth signs in with a token and the server's user payload. The payload
// is normalized and stored as is, so a richer server profile is never
// replaced by the claims-derived one. A nil or empty payload falls back to
// SetToken. An empty token clears the session locally without calling the
// server.
func (m *Manager) SetAuth(ctx context.Context, token string, raw map[string]any) {
	if token == "" {
		m.commit(ctx, transition{}, nil)
		return
	}
	user := identity.Normalize(raw)
	if user == nil {
		m.SetToken(ctx, token)
		return
	}
	m.commit(ctx, transition{token: token, user: user}, nil)
}
