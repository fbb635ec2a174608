// Package devserver is a small in-process stand-in for the FieldOps auth
// backend. It issues HS256 access tokens, keeps refresh sessions behind an
// HttpOnly cookie and serves the profile endpoint in the backend's
// PascalCase shape, so the session client can be exercised end to end
// without the real API.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fieldops/cli/internal/logger"
	"github.com/fieldops/cli/internal/metrics"
)

// RefreshCookie is the name of the refresh session cookie.
const RefreshCookie = "fieldops_refresh"

// Config configures a Server.
type Config struct {
	SigningKey string
	Issuer     string
	TokenTTL   time.Duration
	SessionTTL time.Duration
	Accounts   []Account
	Logger     *slog.Logger

	// Metrics, when set, is served at /metrics.
	Metrics prometheus.Gatherer

	Now func() time.Time
}

type refreshSession struct {
	accountID string
	expiresAt time.Time
}

type contextKey string

const claimsKey contextKey = "claims"

// Server serves the auth endpoints.
type Server struct {
	tokens     *tokenIssuer
	logger     *slog.Logger
	sessionTTL time.Duration
	now        func() time.Time

	byUsername map[string]Account
	byID       map[string]Account

	mu       sync.Mutex
	sessions map[string]refreshSession

	router chi.Router
}

// New builds a Server. A signing key is required.
func New(cfg Config) (*Server, error) {
	if cfg.SigningKey == "" {
		return nil, errors.New("signing key is required")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "fieldops-dev"
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 15 * time.Minute
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 12 * time.Hour
	}
	if cfg.Accounts == nil {
		cfg.Accounts = DefaultAccounts()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Server{
		tokens: &tokenIssuer{
			signingKey: []byte(cfg.SigningKey),
			issuer:     cfg.Issuer,
			ttl:        cfg.TokenTTL,
			now:        cfg.Now,
		},
		logger:     cfg.Logger,
		sessionTTL: cfg.SessionTTL,
		now:        cfg.Now,
		byUsername: make(map[string]Account, len(cfg.Accounts)),
		byID:       make(map[string]Account, len(cfg.Accounts)),
		sessions:   map[string]refreshSession{},
	}
	for _, a := range cfg.Accounts {
		s.byUsername[strings.ToLower(a.Username)] = a
		s.byID[a.ID] = a
	}
	s.router = s.routes(cfg.Metrics)
	return s, nil
}

func (s *Server) routes(gatherer prometheus.Gatherer) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Get("/session", s.handleSession)
		r.Post("/logout", s.handleLogout)
		r.With(s.requireAuth).Get("/me", s.handleMe)
	})
	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/ping", s.handlePing)
		r.Get("/forms", s.handleForms)
	})
	if gatherer != nil {
		r.Handle("/metrics", metrics.Handler(gatherer))
	}
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve accepts connections on l until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(l)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.InfoContext(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", r.Header.Get("X-Request-ID"),
		)
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := s.tokens.validate(token)
		if err != nil {
			s.logger.WarnContext(r.Context(), "unauthorized access", "error", err)
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

func claimsFrom(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey).(*Claims)
	return c
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	account, ok := s.byUsername[strings.ToLower(strings.TrimSpace(req.Username))]
	if !ok {
		writeError(w, http.StatusUnauthorized, "unknown user")
		return
	}

	token, err := s.tokens.issue(account)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "failed to sign token", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	id := uuid.NewString()
	expires := s.now().Add(s.sessionTTL)
	s.mu.Lock()
	s.sessions[id] = refreshSession{accountID: account.ID, expiresAt: expires}
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    id,
		Path:     "/auth",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken": token,
		"user":        account.profile(),
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	account, ok := s.sessionAccount(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "no active session")
		return
	}
	token, err := s.tokens.issue(account)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "failed to sign token", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"accessToken": token})
}

func (s *Server) sessionAccount(r *http.Request) (Account, bool) {
	cookie, err := r.Cookie(RefreshCookie)
	if err != nil {
		return Account{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[cookie.Value]
	if !ok {
		return Account{}, false
	}
	if !s.now().Before(sess.expiresAt) {
		delete(s.sessions, cookie.Value)
		return Account{}, false
	}
	account, ok := s.byID[sess.accountID]
	return account, ok
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(RefreshCookie); err == nil {
		s.mu.Lock()
		delete(s.sessions, cookie.Value)
		s.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	account, ok := s.byID[claimsFrom(r.Context()).Subject]
	if !ok {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": account.profile()})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"pong":     true,
		"username": claimsFrom(r.Context()).Username,
	})
}

func (s *Server) handleForms(w http.ResponseWriter, r *http.Request) {
	account := s.byID[claimsFrom(r.Context()).Subject]
	forms := make([]string, 0, len(account.Forms))
	for path, g := range account.Forms {
		if g.CanView {
			forms = append(forms, path)
		}
	}
	sort.Strings(forms)
	writeJSON(w, http.StatusOK, map[string]any{"forms": forms})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
