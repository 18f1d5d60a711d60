package httpapi

import (
	"net/http"

	"consorcia.org/internal/audit"
	"consorcia.org/internal/auth"
	"consorcia.org/internal/authz"
)

// authorize asks the engine about one resource and writes the denial when
// there is one. It reports whether the handler may proceed.
func (a *API) authorize(w http.ResponseWriter, r *http.Request, kind authz.ResourceKind, id int64, action authz.Action) bool {
	d, err := a.engine.CanAccess(r.Context(), identity(r), kind, id, action)
	if err != nil {
		handleError(w, r, err)
		return false
	}
	if d.Allowed {
		return true
	}
	_ = audit.LogEvent(r.Context(), "authz.denied", map[string]any{
		"kind":        string(kind),
		"resource_id": id,
		"action":      string(action),
		"reason":      string(d.Reason),
	})
	writeError(w, r, d.HTTPStatus(), denialMessage(d.Reason))
	return false
}

// requireModule gates operations that have no resource id yet, such as creation.
func (a *API) requireModule(w http.ResponseWriter, r *http.Request, module authz.Module, action authz.ModuleAction) bool {
	id := identity(r)
	if !id.Authenticated() {
		writeError(w, r, http.StatusUnauthorized, denialMessage(authz.ReasonUnauthenticated))
		return false
	}
	ok, err := a.modules.Allows(r.Context(), id.Role, module, action)
	if err != nil {
		handleError(w, r, err)
		return false
	}
	if !ok {
		_ = audit.LogEvent(r.Context(), "modules.denied", map[string]any{
			"module": string(module),
			"action": string(action),
		})
		writeError(w, r, http.StatusForbidden, denialMessage(authz.ReasonForbidden))
		return false
	}
	return true
}

// requireRole admits only the listed roles.
func requireRole(w http.ResponseWriter, r *http.Request, roles ...auth.Role) bool {
	id := identity(r)
	if !id.Authenticated() {
		writeError(w, r, http.StatusUnauthorized, denialMessage(authz.ReasonUnauthenticated))
		return false
	}
	for _, role := range roles {
		if id.Role == role {
			return true
		}
	}
	writeError(w, r, http.StatusForbidden, denialMessage(authz.ReasonForbidden))
	return false
}

func denialMessage(reason authz.Reason) string {
	switch reason {
	case authz.ReasonUnauthenticated:
		return "authentication required"
	case authz.ReasonNotFound:
		return "resource not found"
	default:
		return "access denied"
	}
}
