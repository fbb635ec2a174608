package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedIn(t *testing.T, f *fixture) string {
	t.Helper()
	token := mintToken(t, jwt.MapClaims{"sub": "u1"})
	f.manager.SetToken(context.Background(), token)
	return token
}

func TestFetch_ReturnsDecodedJSON(t *testing.T) {
	f := newFixture(t)
	token := signedIn(t, f)
	f.backend.router.Get("/api/forms", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "count": 2})
	})

	got, err := f.manager.Fetch(context.Background(), Request{URL: "/api/forms"})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"ok": true, "count": float64(2)}, got)

	h := f.backend.header()
	assert.Equal(t, "Bearer "+token, h.Get("Authorization"))
	assert.Equal(t, "application/json", h.Get("Content-Type"))
	_, err = uuid.Parse(h.Get("X-Request-ID"))
	assert.NoError(t, err)
}

func TestFetch_RelativeURLWithoutLeadingSlash(t *testing.T) {
	f := newFixture(t)
	f.backend.router.Get("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"pong": "yes"})
	})

	got, err := f.manager.Fetch(context.Background(), Request{URL: "api/ping"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"pong": "yes"}, got)
	assert.Empty(t, f.backend.header().Get("Authorization"), "anonymous calls carry no bearer")
}

func TestFetch_AbsoluteURLPassesThrough(t *testing.T) {
	f := newFixture(t)
	signedIn(t, f)

	var gotAuth string
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, []string{"a", "b"})
	}))
	defer other.Close()

	got, err := f.manager.Fetch(context.Background(), Request{URL: other.URL + "/list"})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, got)
	assert.NotEmpty(t, gotAuth)
}

func TestFetch_EncodesData(t *testing.T) {
	f := newFixture(t)
	signedIn(t, f)

	f.backend.router.Post("/api/forms", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, http.StatusCreated, map[string]any{"echo": body})
	})
	f.backend.router.Put("/api/raw", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		writeJSON(w, http.StatusOK, map[string]string{"raw": string(raw), "trace": r.Header.Get("X-Trace")})
	})

	got, err := f.manager.Fetch(context.Background(), Request{
		URL:    "/api/forms",
		Method: "post",
		Data:   map[string]any{"name": "intake"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"echo": map[string]any{"name": "intake"}}, got)

	var out struct {
		Raw   string `json:"raw"`
		Trace string `json:"trace"`
	}
	err = f.manager.FetchInto(context.Background(), Request{
		URL:     "/api/raw",
		Method:  http.MethodPut,
		Data:    `{"already":"encoded"}`,
		Headers: map[string]string{"X-Trace": "abc"},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, `{"already":"encoded"}`, out.Raw)
	assert.Equal(t, "abc", out.Trace)
}

func TestFetch_UnauthorizedForcesLogout(t *testing.T) {
	f := newFixture(t)
	signedIn(t, f)
	f.backend.router.Get("/api/secret", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "token expired"})
	})
	f.backend.router.Post("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	_, err := f.manager.Fetch(context.Background(), Request{URL: "/api/secret"})
	require.Error(t, err)

	assert.True(t, errors.Is(err, ErrUnauthorized))
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusUnauthorized, reqErr.Status)
	assert.Equal(t, "Unauthorized", reqErr.Error())

	assert.False(t, f.manager.IsAuthenticated())
	assert.Nil(t, f.manager.User())
	assert.Empty(t, f.storedToken(t))
	assert.Empty(t, f.client.AuthToken())
	assert.Equal(t, int32(1), f.backend.logoutHits.Load())
	assert.Equal(t, []string{"https://fieldops.example.org/"}, f.nav.assigned)
}

func TestFetch_HTMLErrorIsTruncated(t *testing.T) {
	f := newFixture(t)
	signedIn(t, f)
	page := "<html><body>" + strings.Repeat("x", 500) + "</body></html>"
	f.backend.router.Get("/api/broken", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, page)
	})

	_, err := f.manager.Fetch(context.Background(), Request{URL: "/api/broken"})
	require.Error(t, err)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusInternalServerError, reqErr.Status)
	assert.Equal(t, "Internal Server Error", reqErr.StatusText)
	assert.Contains(t, reqErr.Error(), "500")
	assert.Contains(t, reqErr.Error(), "<html><body>xxx")

	body, ok := reqErr.Body.(string)
	require.True(t, ok)
	assert.Len(t, []rune(body), snippetLimit)
	assert.False(t, errors.Is(err, ErrUnauthorized))
	assert.True(t, f.manager.IsAuthenticated(), "only 401 ends the session")
}

func TestFetch_JSONErrorKeepsDocument(t *testing.T) {
	f := newFixture(t)
	f.backend.router.Post("/api/forms", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": "name is required", "field": "name"})
	})

	_, err := f.manager.Fetch(context.Background(), Request{URL: "/api/forms", Method: http.MethodPost, Data: map[string]any{}})

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusUnprocessableEntity, reqErr.Status)
	assert.Equal(t, map[string]any{"message": "name is required", "field": "name"}, reqErr.Body)
	assert.Equal(t, "request failed: 422 Unprocessable Entity: name is required", reqErr.Error())
}

func TestFetch_NonJSONSuccessIsAnError(t *testing.T) {
	f := newFixture(t)
	f.backend.router.Get("/api/report.csv", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = io.WriteString(w, "a,b\n1,2\n")
	})

	_, err := f.manager.Fetch(context.Background(), Request{URL: "/api/report.csv"})

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusOK, reqErr.Status)
	assert.Contains(t, reqErr.Error(), `expected JSON response, got "text/csv"`)
}

func TestFetch_VendorJSONContentType(t *testing.T) {
	f := newFixture(t)
	f.backend.router.Get("/api/problem", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json; charset=utf-8")
		_, _ = io.WriteString(w, `{"title":"fine"}`)
	})

	got, err := f.manager.Fetch(context.Background(), Request{URL: "/api/problem"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "fine"}, got)
}

func TestFetch_TransportError(t *testing.T) {
	f := newFixture(t)
	f.backend.server.Close()

	_, err := f.manager.Fetch(context.Background(), Request{URL: "/api/ping"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to server")

	var reqErr *RequestError
	assert.False(t, errors.As(err, &reqErr))
}

func TestEncodeData_RejectsUnmarshalable(t *testing.T) {
	_, err := encodeData(make(chan int))
	assert.Error(t, err)
}

func TestIsJSONContent(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"application/json", true},
		{"application/json; charset=utf-8", true},
		{"application/vnd.api+json", true},
		{"text/html", false},
		{"", false},
		{"not a media type;;", false},
	}
	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			assert.Equal(t, tt.want, isJSONContent(tt.contentType))
		})
	}
}
