// Package api is the shared outbound HTTP client. It owns the API base URL,
// the cookie jar that carries the server-managed refresh credential, and the
// default Authorization header applied to every call made through it.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"regexp"
	"strings"
	"sync"
	"time"
)

// DefaultTimeout bounds each request when no http.Client is supplied.
const DefaultTimeout = 30 * time.Second

var schemePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*:`)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected response from server: %s", e.Status)
}

// Client sends requests relative to a base URL.
type Client struct {
	baseURL   string
	http      *http.Client
	userAgent string

	mu        sync.RWMutex
	authToken string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client. A client without a cookie jar
// gets one so that credentials are always sent.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New creates a client for baseURL, e.g. "https://fieldops.example.org/api".
func New(baseURL string, opts ...Option) (*Client, error) {
	if !schemePattern.MatchString(baseURL) {
		return nil, fmt.Errorf("invalid API base URL %q: scheme required", baseURL)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		c.http.Jar = jar
	}
	return c, nil
}

// BaseURL returns the base every relative path is resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HTTPClient returns the underlying client, sharing its cookie jar.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// SetAuthToken sets the default bearer token. An empty token removes it.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
}

// AuthToken returns the current default bearer token.
func (c *Client) AuthToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authToken
}

// ResolveURL joins a relative reference onto the base URL. References that
// already carry a scheme are returned unchanged.
func (c *Client) ResolveURL(ref string) string {
	if schemePattern.MatchString(ref) {
		return ref
	}
	if ref == "" {
		return c.baseURL
	}
	return c.baseURL + "/" + strings.TrimLeft(ref, "/")
}

// NewRequest builds a request with the default headers applied.
func (c *Client) NewRequest(ctx context.Context, method, ref string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.ResolveURL(ref), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if token := c.AuthToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return req, nil
}

// Do sends req with the shared client.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.http.Do(req)
}

// Get decodes the JSON response of a GET into out.
func (c *Client) Get(ctx context.Context, ref string, out any) error {
	return c.Request(ctx, http.MethodGet, ref, nil, out)
}

// Post sends body as JSON and decodes the response into out.
func (c *Client) Post(ctx context.Context, ref string, body, out any) error {
	return c.Request(ctx, http.MethodPost, ref, body, out)
}

// Request sends body (JSON-encoded when non-nil) and decodes a JSON response
// into out. A nil out discards the response body.
func (c *Client) Request(ctx context.Context, method, ref string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := c.NewRequest(ctx, method, ref, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: data}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
