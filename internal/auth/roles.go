package auth

import "slices"

// Role is a role identifier carried in the token's role claim.
type Role string

const (
	RoleUser         Role = "ROLE_USER"
	RoleSuperAdmin   Role = "ROLE_SUPER_ADMIN"
	RoleAnalytics    Role = "ROLE_ANALYTICS"
	RoleTransactions Role = "ROLE_TRANSACTIONS"
	RoleAuditLogs    Role = "ROLE_AUDIT_LOGS"
)

// adminRoles is the fixed set of roles that count as administrative.
var adminRoles = []Role{
	RoleSuperAdmin,
	RoleAnalytics,
	RoleTransactions,
	RoleAuditLogs,
}

// AdminRoles returns the administrative roles.
func AdminRoles() []Role {
	return slices.Clone(adminRoles)
}

// IsAdmin reports whether r is one of the administrative roles.
func (r Role) IsAdmin() bool {
	return slices.Contains(adminRoles, r)
}

func (r Role) String() string {
	return string(r)
}

// AdminRole maps a raw role claim to an administrative role. The second
// result is false for anything outside the admin set, including empty.
func AdminRole(claim string) (Role, bool) {
	r := Role(claim)
	if !r.IsAdmin() {
		return "", false
	}
	return r, true
}
