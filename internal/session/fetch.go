package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// maxResponseBytes bounds how much of a response the gateway will buffer.
const maxResponseBytes = 10 << 20

// Request describes one authorized call. URL is relative to the API base
// unless it carries a scheme. Data that is an io.Reader, []byte or string is
// sent as is; anything else is encoded as JSON.
type Request struct {
	URL     string
	Method  string
	Data    any
	Headers map[string]string
}

// Fetch sends an authorized request and returns the decoded JSON body.
//
// Every non-2xx answer is a *RequestError. A 401 additionally logs the user
// out before returning, and the error wraps ErrUnauthorized. A 2xx answer
// that is not JSON is also a *RequestError, since callers always expect
// structured data. Nothing is retried.
func (m *Manager) Fetch(ctx context.Context, r Request) (any, error) {
	body, err := m.do(ctx, r)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return out, nil
}

// FetchInto is Fetch decoding into out.
func (m *Manager) FetchInto(ctx context.Context, r Request, out any) error {
	body, err := m.do(ctx, r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (m *Manager) do(ctx context.Context, r Request) ([]byte, error) {
	method := strings.ToUpper(r.Method)
	if method == "" {
		method = http.MethodGet
	}
	target := m.api.ResolveURL(r.URL)

	ctx, span := m.tracer.Start(ctx, "session.Fetch "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", target),
		),
	)
	defer span.End()

	reqBody, err := encodeData(r.Data)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	if token := m.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := m.api.HTTPClient().Do(req)
	if err != nil {
		m.metrics.ObserveRequest(method, 0, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()
	m.metrics.ObserveRequest(method, resp.StatusCode, time.Since(start))
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode == http.StatusUnauthorized {
		_, _ = io.Copy(io.Discard, resp.Body)
		span.SetStatus(codes.Error, "unauthorized")
		m.logger.Info("request rejected as unauthorized, signing out", "url", target)
		m.Logout(context.WithoutCancel(ctx))
		return nil, &RequestError{
			Status:     resp.StatusCode,
			StatusText: statusText(resp),
			Message:    "Unauthorized",
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	isJSON := isJSONContent(resp.Header.Get("Content-Type"))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		span.SetStatus(codes.Error, resp.Status)
		var doc any
		if isJSON && json.Unmarshal(data, &doc) == nil {
			return nil, newStatusError(resp, doc, serverMessage(doc))
		}
		text := snippet(data)
		return nil, newStatusError(resp, text, text)
	}

	if !isJSON {
		text := snippet(data)
		span.SetStatus(codes.Error, "non-JSON response")
		return nil, &RequestError{
			Status:     resp.StatusCode,
			StatusText: statusText(resp),
			Body:       text,
			Message:    fmt.Sprintf("expected JSON response, got %q: %s", resp.Header.Get("Content-Type"), text),
		}
	}
	return data, nil
}

func encodeData(data any) (io.Reader, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case io.Reader:
		return v, nil
	case []byte:
		return bytes.NewReader(v), nil
	case string:
		return strings.NewReader(v), nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		return bytes.NewReader(encoded), nil
	}
}

func isJSONContent(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
