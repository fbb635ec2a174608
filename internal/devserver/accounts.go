package devserver

// FormGrant is the set of actions an account may take on one form.
type FormGrant struct {
	CanView   bool
	CanEdit   bool
	CanDelete bool
}

// Account is a user known to the development server.
type Account struct {
	ID          string
	Username    string
	Email       string
	FirstName   string
	LastName    string
	Roles       []string
	Permissions []string
	Forms       map[string]FormGrant
	EmployeeID  string
}

// DefaultAccounts is the fixture the dev-server command starts with.
func DefaultAccounts() []Account {
	return []Account{
		{
			ID:          "1001",
			Username:    "advisor",
			Email:       "advisor@fieldops.test",
			FirstName:   "Avery",
			LastName:    "Advisor",
			Roles:       []string{"advisor"},
			Permissions: []string{"visits:read", "visits:write"},
			Forms: map[string]FormGrant{
				"/visits":    {CanView: true, CanEdit: true},
				"/dashboard": {CanView: true},
				"/lookups":   {CanView: true},
			},
			EmployeeID: "E-1001",
		},
		{
			ID:          "1",
			Username:    "admin",
			Email:       "admin@fieldops.test",
			FirstName:   "Ada",
			LastName:    "Admin",
			Roles:       []string{"admin", "advisor"},
			Permissions: []string{"visits:read", "visits:write", "users:manage"},
			Forms: map[string]FormGrant{
				"/visits":    {CanView: true, CanEdit: true, CanDelete: true},
				"/dashboard": {CanView: true, CanEdit: true},
				"/lookups":   {CanView: true, CanEdit: true, CanDelete: true},
				"/users":     {CanView: true, CanEdit: true, CanDelete: true},
			},
			EmployeeID: "E-0001",
		},
	}
}

// profile renders the account the way the production backend does, with
// PascalCase fields and object-valued role and permission lists.
func (a Account) profile() map[string]any {
	roles := make([]map[string]any, 0, len(a.Roles))
	for _, r := range a.Roles {
		roles = append(roles, map[string]any{"RoleName": r})
	}
	perms := make([]map[string]any, 0, len(a.Permissions))
	for _, p := range a.Permissions {
		perms = append(perms, map[string]any{"PermissionName": p})
	}
	forms := make([]map[string]any, 0, len(a.Forms))
	for path, g := range a.Forms {
		forms = append(forms, map[string]any{
			"FormPath":  path,
			"CanView":   g.CanView,
			"CanEdit":   g.CanEdit,
			"CanDelete": g.CanDelete,
		})
	}

	p := map[string]any{
		"UserID":          a.ID,
		"Username":        a.Username,
		"Email":           a.Email,
		"FirstName":       a.FirstName,
		"LastName":        a.LastName,
		"Roles":           roles,
		"Permissions":     perms,
		"FormPermissions": forms,
	}
	if a.EmployeeID != "" {
		p["Employee"] = map[string]any{
			"EmployeeID": a.EmployeeID,
			"FullName":   a.FirstName + " " + a.LastName,
			"Email":      a.Email,
		}
	}
	return p
}
