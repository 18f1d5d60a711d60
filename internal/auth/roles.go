package auth

import (
	"fmt"
	"strings"
)

// Role is the global role carried by every user. The set is closed.
type Role string

const (
	RoleGlobalAdmin     Role = "admin_global"
	RoleTenantAdmin     Role = "tenant_admin"
	RoleConsortiumAdmin Role = "admin_consorcio"
	RoleBuildingAdmin   Role = "admin_edificio"
	RoleOwner           Role = "propietario"
	RoleRenter          Role = "inquilino"
	RoleProvider        Role = "proveedor"
	RolePending         Role = "usuario_pendiente"
)

// AllRoles lists every known role, most privileged first.
var AllRoles = []Role{
	RoleGlobalAdmin,
	RoleTenantAdmin,
	RoleConsortiumAdmin,
	RoleBuildingAdmin,
	RoleOwner,
	RoleRenter,
	RoleProvider,
	RolePending,
}

// ParseRole validates a wire value.
func ParseRole(s string) (Role, error) {
	r := Role(strings.TrimSpace(s))
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

func (r Role) String() string { return string(r) }
