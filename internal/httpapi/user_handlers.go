package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"consorcia.org/internal/audit"
	"consorcia.org/internal/auth"
	"consorcia.org/internal/authz"
)

// platformRole reports whether only a global admin may hand out, or act on
// holders of, the role.
func platformRole(r auth.Role) bool {
	return r == auth.RoleGlobalAdmin || r == auth.RoleTenantAdmin
}

// guardTarget refuses non-global callers acting on platform-level accounts.
func guardTarget(w http.ResponseWriter, r *http.Request, target auth.User) bool {
	if identity(r).Role != auth.RoleGlobalAdmin && platformRole(target.Role) {
		writeError(w, r, http.StatusForbidden, "only a global admin may manage this user")
		return false
	}
	return true
}

// guardGrant refuses non-global callers handing out a platform-level role.
func guardGrant(w http.ResponseWriter, r *http.Request, role auth.Role) bool {
	if identity(r).Role != auth.RoleGlobalAdmin && platformRole(role) {
		writeError(w, r, http.StatusForbidden, "only a global admin may grant this role")
		return false
	}
	return true
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in auth.Registration
	if err := decodeJSON(w, r, &in); err != nil {
		handleError(w, r, err)
		return
	}
	u, err := a.users.Register(r.Context(), in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.register", map[string]any{
		"user_id": u.ID,
	})
	writeJSON(w, http.StatusCreated, map[string]any{
		"user":    u,
		"message": "registration received; the account awaits approval",
	})
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	if !a.requireModule(w, r, authz.ModuleUsers, authz.ModuleView) {
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		handleError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		handleError(w, r, err)
		return
	}
	pending, _ := strconv.ParseBool(r.URL.Query().Get("pending"))
	page, err := a.users.List(r.Context(), auth.UserQuery{
		Role:    auth.Role(r.URL.Query().Get("role")),
		Pending: pending,
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	if !a.requireModule(w, r, authz.ModuleUsers, authz.ModuleCreate) {
		return
	}
	var in auth.NewUser
	if err := decodeJSON(w, r, &in); err != nil {
		handleError(w, r, err)
		return
	}
	if !guardGrant(w, r, in.Role) {
		return
	}
	u, err := a.users.Create(r.Context(), in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.create", map[string]any{
		"target_user": u.ID,
		"role":        string(u.Role),
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/users/%d", u.ID))
	writeJSON(w, http.StatusCreated, u)
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, r, err)
		return
	}
	if identity(r).UserID != id && !a.requireModule(w, r, authz.ModuleUsers, authz.ModuleView) {
		return
	}
	u, err := a.users.Get(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// updateUser lets users edit their own name, email and password. Role,
// activity and approval changes need the edit grant on the users module.
func (a *API) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, r, err)
		return
	}
	var upd auth.UserUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		handleError(w, r, err)
		return
	}
	self := identity(r).UserID == id
	if (!self || upd.Privileged()) && !a.requireModule(w, r, authz.ModuleUsers, authz.ModuleEdit) {
		return
	}
	target, err := a.users.Get(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if !self && !guardTarget(w, r, target) {
		return
	}
	if upd.Role != nil && !guardGrant(w, r, *upd.Role) {
		return
	}
	u, err := a.users.Update(r.Context(), id, upd)
	if err != nil {
		handleError(w, r, err)
		return
	}
	fields := map[string]any{"target_user": id}
	if upd.Role != nil {
		fields["role"] = string(u.Role)
	}
	if upd.Active != nil {
		fields["active"] = u.Active
	}
	if upd.Approved != nil {
		fields["approved"] = u.Approved
	}
	_ = audit.LogEvent(r.Context(), "user.update", fields)
	writeJSON(w, http.StatusOK, u)
}

type approveRequest struct {
	Role auth.Role `json:"role"`
}

func (a *API) approveUser(w http.ResponseWriter, r *http.Request) {
	if !a.requireModule(w, r, authz.ModuleUsers, authz.ModuleEdit) {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, r, err)
		return
	}
	var req approveRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			handleError(w, r, err)
			return
		}
	}
	target, err := a.users.Get(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if !guardTarget(w, r, target) || !guardGrant(w, r, req.Role) {
		return
	}
	u, err := a.users.Approve(r.Context(), id, req.Role)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.approve", map[string]any{
		"target_user": id,
		"role":        string(u.Role),
	})
	writeJSON(w, http.StatusOK, u)
}

func (a *API) deleteUser(w http.ResponseWriter, r *http.Request) {
	if !a.requireModule(w, r, authz.ModuleUsers, authz.ModuleDelete) {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, r, err)
		return
	}
	if identity(r).UserID == id {
		handleError(w, r, fmt.Errorf("%w: users cannot delete themselves", auth.ErrInvalidInput))
		return
	}
	target, err := a.users.Get(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if !guardTarget(w, r, target) {
		return
	}
	if err := a.users.Delete(r.Context(), id); err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.delete", map[string]any{
		"target_user": id,
	})
	w.WriteHeader(http.StatusNoContent)
}
