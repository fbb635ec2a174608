package session

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

var (
	// ErrUnauthorized is wrapped by every error returned after the backend
	// answered 401. The session has already been cleared when it is seen.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrClosed is returned by operations on a closed Manager.
	ErrClosed = errors.New("session manager closed")

	// ErrNoSession is returned when an operation needs a token and none is held.
	ErrNoSession = errors.New("no active session")
)

// snippetLimit caps how much of an unexpected response body is kept.
const snippetLimit = 200

// RequestError describes a failed gateway call. Body holds the decoded JSON
// error document when the server sent one, otherwise up to 200 characters of
// the raw text.
type RequestError struct {
	Status     int
	StatusText string
	Body       any
	Message    string
}

func (e *RequestError) Error() string {
	return e.Message
}

// Unwrap exposes ErrUnauthorized for 401 responses.
func (e *RequestError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

func snippet(body []byte) string {
	text := strings.TrimSpace(string(body))
	runes := []rune(text)
	if len(runes) > snippetLimit {
		return string(runes[:snippetLimit])
	}
	return text
}

// serverMessage pulls a human-readable message out of a JSON error document.
func serverMessage(doc any) string {
	obj, ok := doc.(map[string]any)
	if !ok {
		return ""
	}
	for _, key := range []string{"message", "Message", "error", "Error", "detail", "title"} {
		if s, ok := obj[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func newStatusError(resp *http.Response, body any, detail string) *RequestError {
	text := statusText(resp)
	msg := fmt.Sprintf("request failed: %d %s", resp.StatusCode, text)
	if detail != "" {
		msg += ": " + detail
	}
	return &RequestError{
		Status:     resp.StatusCode,
		StatusText: text,
		Body:       body,
		Message:    msg,
	}
}
