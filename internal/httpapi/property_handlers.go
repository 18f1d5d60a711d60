package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"consorcia.org/internal/audit"
	"consorcia.org/internal/auth"
	"consorcia.org/internal/authz"
	"consorcia.org/internal/property"
)

func listOptions(r *http.Request) (property.ListOptions, error) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		return property.ListOptions{}, err
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		return property.ListOptions{}, err
	}
	consortiumID, err := queryInt(r, "consortium_id")
	if err != nil {
		return property.ListOptions{}, err
	}
	return property.ListOptions{
		State:        r.URL.Query().Get("state"),
		ConsortiumID: int64(consortiumID),
		Limit:        limit,
		Offset:       offset,
	}, nil
}

func (a *API) listConsortiums(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	f, err := a.filters.Build(r.Context(), identity(r), authz.KindConsortium)
	if err != nil {
		handleError(w, r, err)
		return
	}
	page, err := a.property.ListConsortiums(r.Context(), f, opts)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// createConsortium is gated by the module matrix. A tenant admin always owns
// what they create; only a global admin may name another tenant.
func (a *API) createConsortium(w http.ResponseWriter, r *http.Request) {
	if !a.requireModule(w, r, authz.ModuleConsortiums, authz.ModuleCreate) {
		return
	}
	var in property.ConsortiumInput
	if err := decodeJSON(w, r, &in); err != nil {
		handleError(w, r, err)
		return
	}
	id := identity(r)
	switch id.Role {
	case auth.RoleGlobalAdmin:
	case auth.RoleTenantAdmin:
		owner := id.UserID
		in.TenantID = &owner
	default:
		writeError(w, r, http.StatusForbidden, denialMessage(authz.ReasonForbidden))
		return
	}
	c, err := a.property.CreateConsortium(r.Context(), in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "consortium.create", map[string]any{
		"consortium_id": c.ID,
		"name":          c.Name,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/consortiums/%d", c.ID))
	writeJSON(w, http.StatusCreated, c)
}

func (a *API) getConsortium(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, r, err)
		return
	}
	if !a.authorize(w, r, authz.KindConsortium, id, authz.ActionRead) {
		return
	}
	c, err := a.property.GetConsortium(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// updateConsortium: ownership links are re-pointed only by roles above them.
func (a *API) updateConsortium(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, r, err)
		return
	}
	if !a.authorize(w, r, authz.KindConsortium, id, authz.ActionModify) {
		return
	}
	var upd property.ConsortiumUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		handleError(w, r, err)
		return
	}
	caller := identity(r)
	if upd.TenantID != nil && caller.Role != auth.RoleGlobalAdmin {
		writeError(w, r, http.StatusForbidden, "only a global admin may change tenant_id")
		return
	}
	if upd.ResponsibleID != nil && caller.Role != auth.RoleGlobalAdmin && caller.Role != auth.RoleTenantAdmin {
		writeError(w, r, http.StatusForbidden, "responsible_id is managed by the tenant")
		return
	}
	c, err := a.property.UpdateConsortium(r.Context(), id, upd)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "consortium.update", map[string]any{"consortium_id": id})
	writeJSON(w, http.StatusOK, c)
}

func (a *API) transitionConsortium(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, r, err)
		return
	}
	if !a.authorize(w, r, authz.KindConsortium, id, authz.ActionModify) {
		return
	}
	state := property.ConsortiumActive
	if mux.Vars(r)["transition"] == "deactivate" {
		state = property.ConsortiumInactive
	}
	c, err := a.property.SetConsortiumState(r.Context(), id, state)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "consortium.state", map[string]any{
		"consortium_id": id,
		"state":         string(state),
	})
	writeJSON(w, http.StatusOK, c)
}

func (a *API) deleteConsortium(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, r, err)
		return
	}
	if !a.authorize(w, r, authz.KindConsortium, id, authz.ActionDelete) {
		return
	}
	if err := a.property.DeleteConsortium(r.Context(), id); err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "consortium.delete", map[string]any{"consortium_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listUnits(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	f, err := a.filters.Build(r.Context(), identity(r), authz.KindUnit)
	if err != nil {
		handleError(w, r, err)
		return
	}
	page, err := a.property.ListUnits(r.Context(), f, opts)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// createUnit needs the units module and modify access to the parent consortium.
func (a *API) createUnit(w http.ResponseWriter, r *http.Request) {
	if !a.requireModule(w, r, authz.ModuleUnits, authz.ModuleCreate) {
		return
	}
	var in property.UnitInput
	if err := decodeJSON(w, r, &in); err != nil {
		handleError(w, r, err)
		return
	}
	if in.ConsortiumID <= 0 {
		writeError(w, r, http.StatusBadRequest, "consortium_id is required")
		return
	}
	if !a.authorize(w, r, authz.KindConsortium, in.ConsortiumID, authz.ActionModify) {
		return
	}
	u, err := a.property.CreateUnit(r.Context(), in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "unit.create", map[string]any{
		"unit_id":       u.ID,
		"consortium_id": u.ConsortiumID,
		"code":          u.Code,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/units/%d", u.ID))
	writeJSON(w, http.StatusCreated, u)
}

func (a *API) getUnit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, r, err)
		return
	}
	if !a.authorize(w, r, authz.KindUnit, id, authz.ActionRead) {
		return
	}
	u, err := a.property.GetUnit(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) updateUnit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, r, err)
		return
	}
	if !a.authorize(w, r, authz.KindUnit, id, authz.ActionModify) {
		return
	}
	var upd property.UnitUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		handleError(w, r, err)
		return
	}
	u, err := a.property.UpdateUnit(r.Context(), id, upd)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "unit.update", map[string]any{"unit_id": id})
	writeJSON(w, http.StatusOK, u)
}

func (a *API) deleteUnit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, r, err)
		return
	}
	if !a.authorize(w, r, authz.KindUnit, id, authz.ActionDelete) {
		return
	}
	if err := a.property.DeleteUnit(r.Context(), id); err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "unit.delete", map[string]any{"unit_id": id})
	w.WriteHeader(http.StatusNoContent)
}
