package authz

import (
	"fmt"
	"sort"

	"consorcia.org/internal/auth"
)

// Module is a functional area of the product shown in the navigation.
type Module string

const (
	ModuleDashboard   Module = "dashboard"
	ModuleConsortiums Module = "consorcios"
	ModuleUnits       Module = "unidades"
	ModulePeople      Module = "personas"
	ModuleUsers       Module = "usuarios"
	ModuleProviders   Module = "proveedores"
	ModuleExpenses    Module = "expensas"
	ModuleTickets     Module = "tickets"
)

// ModuleInfo is the catalogue entry for a module.
type ModuleInfo struct {
	Key                Module `json:"key"`
	Name               string `json:"name"`
	Path               string `json:"path"`
	Icon               string `json:"icon"`
	Order              int    `json:"order"`
	RequiresConsortium bool   `json:"requires_consortium"`
}

// Catalogue lists the modules in navigation order.
var Catalogue = []ModuleInfo{
	{Key: ModuleDashboard, Name: "Dashboard", Path: "/dashboard", Icon: "dashboard", Order: 1},
	{Key: ModuleConsortiums, Name: "Consorcios", Path: "/consorcios", Icon: "building", Order: 2},
	{Key: ModuleUnits, Name: "Unidades", Path: "/unidades", Icon: "apartment", Order: 3, RequiresConsortium: true},
	{Key: ModulePeople, Name: "Personas", Path: "/personas", Icon: "people", Order: 4},
	{Key: ModuleUsers, Name: "Usuarios", Path: "/usuarios", Icon: "person", Order: 5},
	{Key: ModuleProviders, Name: "Proveedores", Path: "/proveedores", Icon: "store", Order: 6},
	{Key: ModuleExpenses, Name: "Expensas", Path: "/expensas", Icon: "receipt", Order: 7, RequiresConsortium: true},
	{Key: ModuleTickets, Name: "Tickets", Path: "/tickets", Icon: "support", Order: 8},
}

// ParseModule validates a module key.
func ParseModule(s string) (Module, error) {
	for _, m := range Catalogue {
		if string(m.Key) == s {
			return m.Key, nil
		}
	}
	return "", fmt.Errorf("%w: unknown module %q", auth.ErrInvalidInput, s)
}

// ModuleAction is an operation on a module.
type ModuleAction string

const (
	ModuleView   ModuleAction = "view"
	ModuleCreate ModuleAction = "create"
	ModuleEdit   ModuleAction = "edit"
	ModuleDelete ModuleAction = "delete"
)

// Grant holds the four module flags for one role.
type Grant struct {
	View   bool `json:"view"`
	Create bool `json:"create"`
	Edit   bool `json:"edit"`
	Delete bool `json:"delete"`
}

// Allows reports whether the grant covers action.
func (g Grant) Allows(a ModuleAction) bool {
	switch a {
	case ModuleView:
		return g.View
	case ModuleCreate:
		return g.Create
	case ModuleEdit:
		return g.Edit
	case ModuleDelete:
		return g.Delete
	}
	return false
}

// Matrix maps role → module → grant. Missing entries grant nothing.
type Matrix map[auth.Role]map[Module]Grant

// Grant looks up one cell.
func (m Matrix) Grant(role auth.Role, module Module) Grant {
	return m[role][module]
}

// Allows reports whether role may perform action in module.
func (m Matrix) Allows(role auth.Role, module Module, action ModuleAction) bool {
	return m.Grant(role, module).Allows(action)
}

// VisibleModule is a module the role can view, with its grant.
type VisibleModule struct {
	ModuleInfo
	Grant Grant `json:"permissions"`
}

// Visible lists the modules role can view, in navigation order.
func (m Matrix) Visible(role auth.Role) []VisibleModule {
	out := []VisibleModule{}
	for _, info := range Catalogue {
		g := m.Grant(role, info.Key)
		if g.View {
			out = append(out, VisibleModule{ModuleInfo: info, Grant: g})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Clone returns a deep copy.
func (m Matrix) Clone() Matrix {
	out := make(Matrix, len(m))
	for role, row := range m {
		cp := make(map[Module]Grant, len(row))
		for mod, g := range row {
			cp[mod] = g
		}
		out[role] = cp
	}
	return out
}

var (
	full     = Grant{View: true, Create: true, Edit: true, Delete: true}
	noDelete = Grant{View: true, Create: true, Edit: true}
	viewOnly = Grant{View: true}
	none     = Grant{}
)

// DefaultMatrix is the seeded role × module matrix.
func DefaultMatrix() Matrix {
	return Matrix{
		auth.RoleGlobalAdmin: {
			ModuleDashboard: full, ModuleConsortiums: full, ModuleUnits: full, ModulePeople: full,
			ModuleUsers: full, ModuleProviders: full, ModuleExpenses: full, ModuleTickets: full,
		},
		auth.RoleTenantAdmin: {
			ModuleDashboard: viewOnly, ModuleConsortiums: full, ModuleUnits: full, ModulePeople: full,
			ModuleUsers: noDelete, ModuleProviders: full, ModuleExpenses: noDelete, ModuleTickets: noDelete,
		},
		auth.RoleConsortiumAdmin: {
			ModuleDashboard: viewOnly, ModuleConsortiums: {View: true, Edit: true}, ModuleUnits: full,
			ModulePeople: noDelete, ModuleUsers: none, ModuleProviders: noDelete, ModuleExpenses: noDelete,
			ModuleTickets: noDelete,
		},
		auth.RoleBuildingAdmin: {
			ModuleDashboard: viewOnly, ModuleConsortiums: viewOnly, ModuleUnits: viewOnly, ModulePeople: viewOnly,
			ModuleUsers: none, ModuleProviders: viewOnly, ModuleExpenses: viewOnly,
			ModuleTickets: {View: true, Create: true},
		},
		auth.RoleOwner:  residentGrants(),
		auth.RoleRenter: residentGrants(),
		auth.RoleProvider: {
			ModuleTickets: {View: true, Edit: true},
		},
		auth.RolePending: {},
	}
}

func residentGrants() map[Module]Grant {
	return map[Module]Grant{
		ModuleDashboard: viewOnly, ModuleConsortiums: viewOnly, ModuleUnits: viewOnly,
		ModulePeople: none, ModuleUsers: none, ModuleProviders: none, ModuleExpenses: viewOnly,
		ModuleTickets: {View: true, Create: true},
	}
}
