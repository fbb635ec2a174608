package identity

// Alias tables list, in priority order, the source field names the backend
// has been seen to use for each canonical field. The first alias holding a
// non-empty value wins. Extend a table here rather than adding branches to
// Normalize.
var (
	IDAliases       = []string{"UserID", "userId", "UserId", "userID", "user_id", "ID", "Id", "id", "sub"}
	UsernameAliases = []string{"Username", "username", "UserName", "userName", "user_name", "Login", "login"}
	EmailAliases    = []string{"Email", "email", "EmailAddress", "emailAddress", "email_address"}
	FullNameAliases = []string{"FullName", "fullName", "full_name", "DisplayName", "displayName", "Name", "name"}

	FirstNameAliases = []string{"FirstName", "firstName", "first_name", "GivenName", "given_name"}
	LastNameAliases  = []string{"LastName", "lastName", "last_name", "Surname", "FamilyName", "family_name"}

	RolesAliases       = []string{"Roles", "roles", "Role", "role"}
	PermissionsAliases = []string{"Permissions", "permissions"}

	// RoleNameAliases and PermissionNameAliases apply when list entries are
	// objects rather than plain strings.
	RoleNameAliases       = []string{"RoleName", "roleName", "Name", "name", "Role", "role", "Code", "code"}
	PermissionNameAliases = []string{"PermissionName", "permissionName", "Permission", "permission", "Name", "name", "Code", "code"}

	FormPermissionsAliases = []string{"FormPermissions", "formPermissions", "form_permissions", "Forms", "forms"}
	FormKeyAliases         = []string{"path", "Path", "FormPath", "formPath", "formKey", "FormKey", "FormName", "formName", "FormID", "formId", "formID"}

	EmployeeAliases = []string{"Employee", "employee"}

	// Employee fields when read from the nested employee object.
	EmployeeIDAliases    = []string{"EmployeeID", "employeeId", "EmployeeId", "ID", "Id", "id"}
	EmployeeNameAliases  = []string{"FullName", "fullName", "EmployeeName", "employeeName", "Name", "name"}
	EmployeeEmailAliases = []string{"Email", "email", "EmployeeEmail", "employeeEmail"}

	// Employee fields flattened onto the user record.
	FlatEmployeeIDAliases    = []string{"EmployeeID", "employeeId", "EmployeeId", "employee_id"}
	FlatEmployeeNameAliases  = []string{"EmployeeName", "employeeName", "EmployeeFullName", "employeeFullName", "employee_name"}
	FlatEmployeeEmailAliases = []string{"EmployeeEmail", "employeeEmail", "employee_email"}
)
