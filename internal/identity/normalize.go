package identity

import (
	"encoding/json"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Normalize maps a raw backend user payload onto User. It never fails: unknown
// shapes produce empty fields. It returns nil for a nil or empty payload.
func Normalize(raw map[string]any) *User {
	if len(raw) == 0 {
		return nil
	}

	u := &User{
		ID:              lookupString(raw, IDAliases),
		Username:        lookupString(raw, UsernameAliases),
		Email:           lookupString(raw, EmailAliases),
		FullName:        lookupString(raw, FullNameAliases),
		Roles:           lookupNames(raw, RolesAliases, RoleNameAliases),
		Permissions:     lookupNames(raw, PermissionsAliases, PermissionNameAliases),
		FormPermissions: normalizeFormPermissions(lookup(raw, FormPermissionsAliases)),
		Employee:        normalizeEmployee(raw),
	}
	if u.FullName == "" {
		u.FullName = joinNonEmpty(lookupString(raw, FirstNameAliases), lookupString(raw, LastNameAliases))
	}
	return u
}

// lookup returns the value of the first alias that is present and non-empty.
func lookup(raw map[string]any, aliases []string) any {
	for _, name := range aliases {
		v, ok := raw[name]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && s == "" {
			continue
		}
		return v
	}
	return nil
}

func lookupString(raw map[string]any, aliases []string) string {
	for _, name := range aliases {
		if s := scalarString(raw[name]); s != "" {
			return s
		}
	}
	return ""
}

func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return ""
	}
}

// lookupNames reads a list of identifiers. Entries may be plain strings or
// objects carrying the name under one of nameAliases; a single scalar is
// treated as a one-element list. Order is kept and duplicates are dropped.
func lookupNames(raw map[string]any, aliases, nameAliases []string) []string {
	out := []string{}
	seen := map[string]struct{}{}
	add := func(name string) {
		if name == "" {
			return
		}
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}

	switch v := lookup(raw, aliases).(type) {
	case []any:
		for _, item := range v {
			if obj, ok := item.(map[string]any); ok {
				add(lookupString(obj, nameAliases))
				continue
			}
			add(scalarString(item))
		}
	case []string:
		for _, item := range v {
			add(strings.TrimSpace(item))
		}
	case map[string]any:
		add(lookupString(v, nameAliases))
	default:
		add(scalarString(v))
	}
	return out
}

// normalizeFormPermissions accepts either a list of per-form objects that
// carry their own key, or an object already keyed by form. Keys are
// lower-cased; a later entry for the same key replaces an earlier one.
// Keyed objects are walked in sorted key order, so among keys that differ
// only by case the all-lowercase spelling wins.
func normalizeFormPermissions(v any) map[string]Flags {
	out := map[string]Flags{}
	switch forms := v.(type) {
	case []any:
		for _, item := range forms {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			key := lookupString(obj, FormKeyAliases)
			if key == "" {
				continue
			}
			out[strings.ToLower(key)] = copyFlags(obj)
		}
	case map[string]any:
		for _, key := range slices.Sorted(maps.Keys(forms)) {
			if key == "" {
				continue
			}
			switch flags := forms[key].(type) {
			case map[string]any:
				out[strings.ToLower(key)] = copyFlags(flags)
			case Flags:
				out[strings.ToLower(key)] = copyFlags(flags)
			}
		}
	case map[string]Flags:
		for _, key := range slices.Sorted(maps.Keys(forms)) {
			if key != "" {
				out[strings.ToLower(key)] = copyFlags(forms[key])
			}
		}
	}
	return out
}

func copyFlags(src map[string]any) Flags {
	dst := make(Flags, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// normalizeEmployee prefers a nested employee object and falls back to
// Employee* fields flattened onto the user. It returns nil when neither
// carries an id or a name.
func normalizeEmployee(raw map[string]any) *Employee {
	if nested, ok := lookup(raw, EmployeeAliases).(map[string]any); ok {
		e := &Employee{
			FullName: lookupString(nested, EmployeeNameAliases),
			ID:       lookupString(nested, EmployeeIDAliases),
			Email:    lookupString(nested, EmployeeEmailAliases),
		}
		if e.FullName == "" {
			e.FullName = joinNonEmpty(lookupString(nested, FirstNameAliases), lookupString(nested, LastNameAliases))
		}
		if e.ID != "" || e.FullName != "" {
			return e
		}
	}

	e := &Employee{
		FullName: lookupString(raw, FlatEmployeeNameAliases),
		ID:       lookupString(raw, FlatEmployeeIDAliases),
		Email:    lookupString(raw, FlatEmployeeEmailAliases),
	}
	if e.ID == "" && e.FullName == "" {
		return nil
	}
	return e
}

func joinNonEmpty(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
