// Package identity turns the backend's user payloads into one canonical
// record and answers permission questions against it.
package identity

import (
	"slices"
	"strings"

	"github.com/fieldops/cli/internal/auth"
)

// User is the canonical user record consumed by commands and screens.
// A User is replaced wholesale on every change and never mutated in place.
type User struct {
	ID              string           `json:"id"`
	Username        string           `json:"username"`
	Email           string           `json:"email"`
	FullName        string           `json:"fullName"`
	Roles           []string         `json:"roles"`
	Permissions     []string         `json:"permissions"`
	FormPermissions map[string]Flags `json:"formPermissions"`
	Employee        *Employee        `json:"employee,omitempty"`
}

// Employee is the staff record linked to a user account.
type Employee struct {
	FullName string `json:"fullName"`
	ID       string `json:"id"`
	Email    string `json:"Email"`
}

// FromClaims builds the minimal user that can be derived from access token
// claims. It has no form permissions.
func FromClaims(claims auth.Claims) *User {
	if claims == nil {
		return nil
	}
	return &User{
		ID:              claims.Subject(),
		Username:        claims.String("username"),
		Roles:           claims.Strings("roles"),
		Permissions:     claims.Strings("permissions"),
		FormPermissions: map[string]Flags{},
	}
}

// HasRole reports whether the user holds role.
func (u *User) HasRole(role string) bool {
	return u != nil && slices.Contains(u.Roles, role)
}

// HasPermission reports whether the user holds permission.
func (u *User) HasPermission(permission string) bool {
	return u != nil && slices.Contains(u.Permissions, permission)
}

// HasFormPermission reports whether the user may access formKey. Without a
// flag, any entry for the form grants access. With a flag, the flag is looked
// up under several casings (see Flags.Allows). Form keys match case-insensitively.
func (u *User) HasFormPermission(formKey string, flag ...string) bool {
	if u == nil || formKey == "" {
		return false
	}
	flags, ok := u.FormPermissions[strings.ToLower(formKey)]
	if !ok {
		return false
	}
	if len(flag) == 0 || flag[0] == "" {
		return true
	}
	return flags.Allows(flag[0])
}
