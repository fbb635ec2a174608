package identity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/cli/internal/auth"
)

func decodeRaw(t *testing.T, body string) map[string]any {
	t.Helper()
	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &raw))
	return raw
}

func TestNormalize_EmptyInput(t *testing.T) {
	assert.Nil(t, Normalize(nil))
	assert.Nil(t, Normalize(map[string]any{}))
}

func TestNormalize_FieldPriority(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want string
	}{
		{name: "first alias wins", raw: map[string]any{"UserID": "x", "userId": "y"}, want: "x"},
		{name: "later alias when first missing", raw: map[string]any{"userId": "y"}, want: "y"},
		{name: "empty string skipped", raw: map[string]any{"UserID": "", "userId": "y"}, want: "y"},
		{name: "null skipped", raw: map[string]any{"UserID": nil, "id": "z"}, want: "z"},
		{name: "numeric id", raw: map[string]any{"UserID": float64(1042)}, want: "1042"},
		{name: "sub as last resort", raw: map[string]any{"sub": "s-1"}, want: "s-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := Normalize(tt.raw)
			require.NotNil(t, u)
			assert.Equal(t, tt.want, u.ID)
		})
	}
}

func TestNormalize_BackendShapes(t *testing.T) {
	pascal := decodeRaw(t, `{
		"UserID": "u1",
		"Username": "bob",
		"Email": "bob@example.org",
		"FullName": "Bob Mwangi",
		"Roles": [{"RoleName": "Advisor"}, {"RoleName": "Auditor"}],
		"Permissions": ["visits:read", "visits:write"],
		"FormPermissions": [
			{"path": "/dash", "CanView": true},
			{"FormName": "LayerVisit", "CanCreate": 1, "CanEdit": 0}
		],
		"Employee": {"EmployeeID": 77, "EmployeeName": "Bob Mwangi", "Email": "bob@coop.example"}
	}`)

	camel := decodeRaw(t, `{
		"userId": "u1",
		"userName": "bob",
		"email": "bob@example.org",
		"firstName": "Bob",
		"lastName": "Mwangi",
		"roles": ["Advisor", "Auditor", "Advisor"],
		"permissions": [{"name": "visits:read"}, {"name": "visits:write"}],
		"formPermissions": {
			"/Dash": {"canView": true},
			"layervisit": {"canCreate": true, "canEdit": false}
		},
		"employeeId": "77",
		"employeeName": "Bob Mwangi",
		"employeeEmail": "bob@coop.example"
	}`)

	for name, raw := range map[string]map[string]any{"pascal": pascal, "camel": camel} {
		t.Run(name, func(t *testing.T) {
			u := Normalize(raw)
			require.NotNil(t, u)

			assert.Equal(t, "u1", u.ID)
			assert.Equal(t, "bob", u.Username)
			assert.Equal(t, "bob@example.org", u.Email)
			assert.Equal(t, "Bob Mwangi", u.FullName)
			assert.Equal(t, []string{"Advisor", "Auditor"}, u.Roles)
			assert.Equal(t, []string{"visits:read", "visits:write"}, u.Permissions)

			require.Contains(t, u.FormPermissions, "/dash")
			require.Contains(t, u.FormPermissions, "layervisit")
			assert.True(t, u.HasFormPermission("/dash", "CanView"))
			assert.True(t, u.HasFormPermission("LayerVisit", "CanCreate"))
			assert.False(t, u.HasFormPermission("LayerVisit", "CanEdit"))

			require.NotNil(t, u.Employee)
			assert.Equal(t, "77", u.Employee.ID)
			assert.Equal(t, "Bob Mwangi", u.Employee.FullName)
			assert.Equal(t, "bob@coop.example", u.Employee.Email)
		})
	}
}

func TestNormalize_FormPermissionRecordKeepsFlagCasing(t *testing.T) {
	u := Normalize(map[string]any{
		"UserID":          "u1",
		"FormPermissions": []any{map[string]any{"path": "/Dash", "CanView": true}},
	})
	require.NotNil(t, u)

	flags := u.FormPermissions["/dash"]
	assert.Equal(t, true, flags["CanView"])
	_, lowered := flags["canview"]
	assert.False(t, lowered)
}

func TestNormalize_LaterFormEntryReplacesEarlier(t *testing.T) {
	u := Normalize(map[string]any{
		"FormPermissions": []any{
			map[string]any{"path": "/dash", "CanEdit": true},
			map[string]any{"Path": "/DASH", "CanEdit": false},
			"not-an-object",
			map[string]any{"CanEdit": true},
		},
	})
	require.NotNil(t, u)
	require.Len(t, u.FormPermissions, 1)
	assert.False(t, u.HasFormPermission("/dash", "CanEdit"))
}

func TestNormalize_Deterministic(t *testing.T) {
	raw := decodeRaw(t, `{
		"UserID": "u1",
		"Roles": ["a", "b"],
		"FormPermissions": {"One": {"CanView": true}, "Two": {"CanEdit": true}},
		"Employee": {"Id": 3, "Name": "E"}
	}`)

	assert.Equal(t, Normalize(raw), Normalize(raw))
}

func TestNormalize_CaseCollidingFormKeys(t *testing.T) {
	raw := decodeRaw(t, `{
		"FormPermissions": {
			"Dashboard": {"CanEdit": true},
			"dashboard": {"CanEdit": false},
			"DASHBOARD": {"CanEdit": true}
		}
	}`)

	first := Normalize(raw)
	require.NotNil(t, first)
	require.Len(t, first.FormPermissions, 1)
	assert.False(t, first.HasFormPermission("Dashboard", "CanEdit"))
	assert.False(t, first.HasFormPermission("dashboard", "CanEdit"))

	for i := 0; i < 200; i++ {
		require.Equal(t, first, Normalize(raw))
	}
}

func TestNormalize_DoesNotAliasInput(t *testing.T) {
	record := map[string]any{"path": "/dash", "CanView": true}
	raw := map[string]any{"FormPermissions": []any{record}}

	u := Normalize(raw)
	record["CanView"] = false

	assert.True(t, u.HasFormPermission("/dash", "CanView"))
}

func TestNormalize_SingleRoleString(t *testing.T) {
	u := Normalize(map[string]any{"Role": "admin"})
	require.NotNil(t, u)
	assert.Equal(t, []string{"admin"}, u.Roles)
	assert.Empty(t, u.Permissions)
	assert.NotNil(t, u.FormPermissions)
	assert.Nil(t, u.Employee)
}

func TestFromClaims(t *testing.T) {
	u := FromClaims(auth.Claims{
		"sub":      "u9",
		"username": "sam",
		"roles":    []any{"advisor"},
	})
	require.NotNil(t, u)

	assert.Equal(t, "u9", u.ID)
	assert.Equal(t, "sam", u.Username)
	assert.True(t, u.HasRole("advisor"))
	assert.Empty(t, u.Permissions)
	assert.Empty(t, u.FormPermissions)
	assert.False(t, u.HasFormPermission("/dash"))

	assert.Nil(t, FromClaims(nil))
}
