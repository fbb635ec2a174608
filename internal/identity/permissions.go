package identity

import (
	"encoding/json"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Flags is one form's capability record, e.g. {"CanCreate": true, "CanEdit": false}.
// Flag names keep whatever casing the backend sent.
type Flags map[string]any

// Allows checks flag under its exact name, camelCase, PascalCase and finally
// lower case, returning the truthiness of the first name present.
func (f Flags) Allows(flag string) bool {
	for _, name := range flagVariants(flag) {
		if v, ok := f[name]; ok {
			return truthy(v)
		}
	}
	return false
}

func flagVariants(flag string) []string {
	return []string{flag, lowerFirst(flag), upperFirst(flag), strings.ToLower(flag)}
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// truthy follows the backend's loose typing: flags arrive as booleans, 0/1
// numbers or strings. Any non-empty string counts as set.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0 && !math.IsNaN(x)
	case float32:
		return x != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	case json.Number:
		f, err := x.Float64()
		return err == nil && f != 0
	default:
		return true
	}
}
