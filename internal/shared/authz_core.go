package shared

// Core platform permissions.
const (
	PermManageUsers = "manage_users"
	PermViewUsers   = "view_users"
	PermManageRoles = "manage_roles"
	PermViewEnergy  = "view_energy"
)

// CoreScopes lists all permissions the platform routes depend on.
func CoreScopes() []string {
	return []string{
		PermManageUsers,
		PermViewUsers,
		PermManageRoles,
		PermViewEnergy,
	}
}
