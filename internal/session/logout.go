package session

import (
	"context"
)

// Logout tells the server to drop the session, clears the local session
// unconditionally and sends the user to the landing page. A failed server
// call is logged and otherwise ignored.
func (m *Manager) Logout(ctx context.Context) {
	ctx, span := m.tracer.Start(ctx, "session.Logout")
	defer span.End()

	m.notifyServerLogout(ctx)
	m.commit(ctx, transition{}, nil)
	m.metrics.LoggedOut()
	m.navigateHome()
}

func (m *Manager) notifyServerLogout(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, m.logoutTimeout)
	defer cancel()

	if err := m.api.Post(ctx, m.paths.Logout, nil, nil); err != nil {
		m.logger.Warn("server logout failed, clearing local session anyway", "error", err)
	}
}

// navigateHome does a full navigation to the landing URL so cookie state for
// that origin is reset too, falling back to the root route.
func (m *Manager) navigateHome() {
	if m.nav == nil {
		return
	}
	if m.landingURL != "" {
		err := m.nav.Assign(m.landingURL)
		if err == nil {
			return
		}
		m.logger.Warn("navigation to landing page failed", "url", m.landingURL, "error", err)
	}
	m.nav.Replace("/")
}
