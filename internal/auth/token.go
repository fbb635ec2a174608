// Package auth holds the client-side view of access tokens: a display-only
// claims decoder and the durable stores that keep the raw token between runs.
//
// Nothing in this package verifies a token signature. Claims returned by
// DecodeUnverified are suitable for showing who is signed in and for seeding
// a provisional user record; they must never be used to decide whether a
// caller is allowed to do something. The backend verifies every request.
package auth

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Claims is the payload of an access token decoded without verification.
type Claims map[string]any

var base64URLToStd = strings.NewReplacer("-", "+", "_", "/")

// DecodeUnverified extracts the payload of a JWT without checking its
// signature. It returns nil when the token is malformed in any way.
func DecodeUnverified(token string) Claims {
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return nil
	}

	segment := base64URLToStd.Replace(parts[1])
	if rem := len(segment) % 4; rem != 0 {
		segment += strings.Repeat("=", 4-rem)
	}

	payload, err := base64.StdEncoding.DecodeString(segment)
	if err != nil {
		return nil
	}

	var claims Claims
	if err := json.Unmarshal([]byte(payloadText(payload)), &claims); err != nil {
		return nil
	}
	if claims == nil {
		return nil
	}
	return claims
}

// payloadText interprets the decoded bytes as UTF-8. Issuers that emit
// non-UTF-8 payloads get a byte-per-character reading instead, which still
// parses when the JSON structure itself is ASCII.
func payloadText(payload []byte) string {
	if utf8.Valid(payload) {
		return string(payload)
	}
	runes := make([]rune, len(payload))
	for i, b := range payload {
		runes[i] = rune(b)
	}
	return string(runes)
}

// Subject returns the sub claim.
func (c Claims) Subject() string {
	return c.String("sub")
}

// String returns a scalar claim rendered as a string, or "" when absent.
func (c Claims) String(name string) string {
	switch v := c[name].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// Strings returns a list claim. A single string value is treated as a
// one-element list; non-string entries are skipped.
func (c Claims) Strings(name string) []string {
	switch v := c[name].(type) {
	case string:
		if v == "" {
			return []string{}
		}
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{}
	}
}

// ExpiresAt returns the exp claim and whether it was present.
func (c Claims) ExpiresAt() (time.Time, bool) {
	exp, ok := c["exp"].(float64)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(int64(exp), 0), true
}

// IsExpired reports whether the token carries an exp claim that is before now.
// Tokens without exp never expire from the client's point of view.
func (c Claims) IsExpired(now time.Time) bool {
	exp, ok := c.ExpiresAt()
	return ok && now.After(exp)
}
