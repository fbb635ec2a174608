package session

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/fieldops/cli/internal/api"
	"github.com/fieldops/cli/internal/auth"
	"github.com/fieldops/cli/internal/identity"
	"github.com/fieldops/cli/internal/metrics"
)

// Bootstrap tries to recover a session silently. It uses the stored token
// when there is one, otherwise asks the session endpoint to mint one from
// the refresh cookie, then loads the user profile. Concurrent callers share
// a single pass. Failures along the way degrade to an anonymous or
// token-only session rather than an error; the returned error is only set
// when the Manager is closed.
func (m *Manager) Bootstrap(ctx context.Context) (State, error) {
	_, err, _ := m.bootstrap.Do("bootstrap", func() (any, error) {
		return nil, m.runBootstrap(ctx)
	})
	return m.State(), err
}

func (m *Manager) runBootstrap(ctx context.Context) error {
	ctx, span := m.tracer.Start(ctx, "session.Bootstrap")
	defer span.End()

	epoch, ok := m.beginLoading()
	if !ok {
		return ErrClosed
	}

	outcome := metrics.OutcomeAnonymous
	defer func() {
		if outcome == metrics.OutcomeDiscarded {
			m.dropCandidate(epoch)
		}
		m.endLoading()
		m.metrics.BootstrapCompleted(outcome)
		span.SetAttributes(attribute.String("session.outcome", outcome))
		m.logger.Debug("session bootstrap finished", "outcome", outcome)
	}()

	candidate := m.storedToken(ctx, epoch)
	if candidate == "" {
		candidate = m.refreshSession(ctx)
	}
	if candidate == "" {
		if !m.commit(ctx, transition{}, &epoch) {
			outcome = metrics.OutcomeDiscarded
		}
		return nil
	}

	if !m.setHeaderGuarded(epoch, candidate) {
		outcome = metrics.OutcomeDiscarded
		return nil
	}

	raw, err := m.fetchProfile(ctx)
	if err != nil {
		m.logger.Warn("profile fetch failed, continuing with token claims", "error", err)
	}
	if user := identity.Normalize(raw); user != nil {
		outcome = metrics.OutcomeProfile
		if !m.commit(ctx, transition{token: candidate, user: user}, &epoch) {
			outcome = metrics.OutcomeDiscarded
		}
		return nil
	}

	outcome = m.setToken(ctx, candidate, &epoch)
	return nil
}

func (m *Manager) beginLoading() (uint64, bool) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, false
	}
	m.state.Loading = true
	m.state.Phase = PhaseLoading
	m.queueLocked(m.state)
	epoch := m.epoch
	m.mu.Unlock()

	m.deliver()
	return epoch, true
}

func (m *Manager) endLoading() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.state.Loading = false
	m.state.Phase = settledPhase(m.state)
	m.queueLocked(m.state)
	m.mu.Unlock()

	m.deliver()
}

func (m *Manager) setHeaderGuarded(epoch uint64, token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || epoch != m.epoch {
		return false
	}
	m.api.SetAuthToken(token)
	return true
}

// dropCandidate puts the API header back to the committed token after a
// bootstrap result was discarded. When a newer transition has happened it
// owns the header and nothing is touched.
func (m *Manager) dropCandidate(epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch == m.epoch {
		m.api.SetAuthToken(m.state.Token)
	}
}

// storedToken returns the durable token, discarding one whose exp has passed.
func (m *Manager) storedToken(ctx context.Context, epoch uint64) string {
	token, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Warn("failed to read stored token", "error", err)
		return ""
	}
	if token == "" {
		return ""
	}
	if claims := auth.DecodeUnverified(token); claims != nil && claims.IsExpired(m.now()) {
		m.logger.Info("stored token has expired, trying session refresh")
		m.persist(context.WithoutCancel(ctx), epoch, "")
		return ""
	}
	return token
}

// refreshSession exchanges the refresh cookie for an access token. Any
// failure means there is no session to recover.
func (m *Manager) refreshSession(ctx context.Context) string {
	var resp struct {
		AccessToken string `json:"accessToken"`
	}
	if err := m.api.Get(ctx, m.paths.Session, &resp); err != nil {
		var statusErr *api.StatusError
		if errors.As(err, &statusErr) {
			m.logger.Debug("no session to refresh", "status", statusErr.StatusCode)
		} else {
			m.logger.Debug("session refresh failed", "error", err)
		}
		return ""
	}
	return resp.AccessToken
}

// fetchProfile loads the current user. The endpoint answers either
// {"user": {...}} or the user object itself; a nil map means no payload.
func (m *Manager) fetchProfile(ctx context.Context) (map[string]any, error) {
	var body map[string]any
	if err := m.api.Get(ctx, m.paths.Me, &body); err != nil {
		return nil, err
	}
	if wrapped, ok := body["user"]; ok {
		user, _ := wrapped.(map[string]any)
		return user, nil
	}
	return body, nil
}

// RefreshProfile re-reads the user profile for the current token. It is the
// way out of a MinimalProfile session; nothing calls it automatically.
func (m *Manager) RefreshProfile(ctx context.Context) (*identity.User, error) {
	ctx, span := m.tracer.Start(ctx, "session.RefreshProfile")
	defer span.End()

	m.mu.RLock()
	token, epoch := m.state.Token, m.epoch
	m.mu.RUnlock()
	if token == "" {
		return nil, ErrNoSession
	}

	raw, err := m.fetchProfile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	user := identity.Normalize(raw)
	if user == nil {
		return nil, errors.New("profile response carried no user")
	}
	if !m.commit(ctx, transition{token: token, user: user}, &epoch) {
		return nil, errors.New("session changed while the profile was loading")
	}
	return user, nil
}
