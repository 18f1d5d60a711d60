package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"consorcia.org/internal/audit"
	"consorcia.org/internal/auth"
	"consorcia.org/internal/authz"
)

// myModules lists the navigation entries the caller's role can view.
func (a *API) myModules(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if !id.Authenticated() {
		writeError(w, r, http.StatusUnauthorized, denialMessage(authz.ReasonUnauthenticated))
		return
	}
	visible, err := a.modules.Visible(r.Context(), id.Role)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"role":    id.Role,
		"modules": visible,
	})
}

func (a *API) moduleMatrix(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, auth.RoleGlobalAdmin, auth.RoleTenantAdmin) {
		return
	}
	m, err := a.modules.Matrix(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"modules": authz.Catalogue,
		"grants":  m,
	})
}

func (a *API) setModuleGrant(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, auth.RoleGlobalAdmin) {
		return
	}
	vars := mux.Vars(r)
	role, err := auth.ParseRole(vars["role"])
	if err != nil {
		handleError(w, r, err)
		return
	}
	module, err := authz.ParseModule(vars["module"])
	if err != nil {
		handleError(w, r, err)
		return
	}
	var g authz.Grant
	if err := decodeJSON(w, r, &g); err != nil {
		handleError(w, r, err)
		return
	}
	if err := a.modules.SetGrant(r.Context(), role, module, g); err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "modules.grant", map[string]any{
		"target_role": string(role),
		"module":      string(module),
		"grant":       g,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"role":        role,
		"module":      module,
		"permissions": g,
	})
}
