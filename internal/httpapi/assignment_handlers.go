package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"consorcia.org/internal/audit"
	"consorcia.org/internal/auth"
	"consorcia.org/internal/authz"
	"consorcia.org/internal/property"
)

type createAssignmentRequest struct {
	Role         auth.Role `json:"role"`
	ConsortiumID *int64    `json:"consortium_id"`
	UnitID       *int64    `json:"unit_id"`
}

// authorizeAssignment checks that the caller may manage grants on the
// assignment's target. Grants without a target, and grants of the two
// platform-wide roles, are reserved to global admins.
func (a *API) authorizeAssignment(w http.ResponseWriter, r *http.Request, role auth.Role, consortiumID, unitID *int64) bool {
	caller := identity(r)
	if caller.Role == auth.RoleGlobalAdmin {
		return true
	}
	if !guardGrant(w, r, role) {
		return false
	}
	switch {
	case unitID != nil && *unitID > 0:
		return a.authorize(w, r, authz.KindUnit, *unitID, authz.ActionModify)
	case consortiumID != nil && *consortiumID > 0:
		return a.authorize(w, r, authz.KindConsortium, *consortiumID, authz.ActionModify)
	default:
		writeError(w, r, http.StatusForbidden, "only a global admin may manage unscoped assignments")
		return false
	}
}

func (a *API) listAssignments(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		handleError(w, r, err)
		return
	}
	if identity(r).UserID != userID && !a.requireModule(w, r, authz.ModuleUsers, authz.ModuleView) {
		return
	}
	includeInactive, _ := strconv.ParseBool(r.URL.Query().Get("include_inactive"))
	list, err := a.property.ListAssignments(r.Context(), userID, includeInactive)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": list})
}

func (a *API) createAssignment(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		handleError(w, r, err)
		return
	}
	var req createAssignmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	role, err := auth.ParseRole(string(req.Role))
	if err != nil {
		handleError(w, r, err)
		return
	}
	if !a.authorizeAssignment(w, r, role, req.ConsortiumID, req.UnitID) {
		return
	}
	assignment, err := a.property.CreateAssignment(r.Context(), property.AssignmentInput{
		UserID:       userID,
		Role:         role,
		ConsortiumID: req.ConsortiumID,
		UnitID:       req.UnitID,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "assignment.create", map[string]any{
		"assignment_id": assignment.ID,
		"target_user":   userID,
		"granted_role":  string(assignment.Role),
		"consortium_id": assignment.ConsortiumID,
		"unit_id":       assignment.UnitID,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/users/%d/assignments", userID))
	writeJSON(w, http.StatusCreated, assignment)
}

// loadAssignment fetches the assignment in the path and checks the caller may manage it.
func (a *API) loadAssignment(w http.ResponseWriter, r *http.Request) (authz.Assignment, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, r, err)
		return authz.Assignment{}, false
	}
	assignment, err := a.property.GetAssignment(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return authz.Assignment{}, false
	}
	if !a.authorizeAssignment(w, r, assignment.Role, assignment.ConsortiumID, assignment.UnitID) {
		return authz.Assignment{}, false
	}
	return assignment, true
}

func (a *API) deactivateAssignment(w http.ResponseWriter, r *http.Request) {
	assignment, ok := a.loadAssignment(w, r)
	if !ok {
		return
	}
	updated, err := a.property.DeactivateAssignment(r.Context(), assignment.ID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "assignment.deactivate", map[string]any{
		"assignment_id": assignment.ID,
		"target_user":   assignment.UserID,
	})
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) deleteAssignment(w http.ResponseWriter, r *http.Request) {
	assignment, ok := a.loadAssignment(w, r)
	if !ok {
		return
	}
	if err := a.property.DeleteAssignment(r.Context(), assignment.ID); err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "assignment.delete", map[string]any{
		"assignment_id": assignment.ID,
		"target_user":   assignment.UserID,
	})
	w.WriteHeader(http.StatusNoContent)
}
