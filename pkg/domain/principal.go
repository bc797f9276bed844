package domain

// Role is a laboratory staff role within a tenant. Mirrors the operational
// roles a lab runs on; platform-level operators are modelled by the
// VendorAdmin bit on the principal, not by a role.
type Role string

const (
	RoleTechnologist Role = "technologist"
	RoleScientist    Role = "scientist"
	RoleLabManager   Role = "lab_manager"
	RoleReceptionist Role = "receptionist"
	RoleLogistics    Role = "logistics"
)

var validRoles = map[Role]bool{
	RoleTechnologist: true,
	RoleScientist:    true,
	RoleLabManager:   true,
	RoleReceptionist: true,
	RoleLogistics:    true,
}

// IsValid checks if the role is one of the supported enum values.
func (r Role) IsValid() bool {
	return validRoles[r]
}

// ParseRole constructs a Role from external input.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.IsValid()
}

// Principal is the acting, already-authenticated user for one request.
// Authentication happens upstream; the engine only consumes the identity.
type Principal struct {
	UserID      UserID
	TenantID    TenantID
	Role        Role
	VendorAdmin bool
}
