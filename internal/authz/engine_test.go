package authz

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consorcia.org/internal/auth"
)

var allActions = []Action{ActionRead, ActionModify, ActionDelete}

func TestEveryRoleHasATier(t *testing.T) {
	for _, r := range auth.AllRoles {
		assert.NotEqual(t, tierUnknown, tierOf(r), "role %s has no tier", r)
	}
	assert.Equal(t, tierUnknown, tierOf(auth.Role("superuser")))
	assert.Equal(t, tierUnknown, tierOf(""))
}

func TestActionFromMethod(t *testing.T) {
	cases := map[string]Action{
		http.MethodGet:    ActionRead,
		http.MethodHead:   ActionRead,
		http.MethodPost:   ActionModify,
		http.MethodPut:    ActionModify,
		http.MethodPatch:  ActionModify,
		http.MethodDelete: ActionDelete,
		"PURGE":           ActionModify,
	}
	for method, want := range cases {
		assert.Equal(t, want, ActionFromMethod(method), method)
	}
}

func TestGlobalAdminAllowsEverything(t *testing.T) {
	store := newFakeStore()
	e := NewEngine(store, nil)
	admin := auth.Identity{UserID: 1, Role: auth.RoleGlobalAdmin}

	for _, kind := range []ResourceKind{KindConsortium, KindUnit} {
		for _, action := range allActions {
			d, err := e.CanAccess(context.Background(), admin, kind, 12345, action)
			require.NoError(t, err)
			assert.True(t, d.Allowed, "%s %s", kind, action)
		}
	}
	assert.Zero(t, store.lookupCalls, "global admin must short-circuit before lookups")
}

func TestTenantAdmin(t *testing.T) {
	const user = 10
	store := newFakeStore()
	store.addConsortium(1, ptr(user), nil)
	store.addConsortium(2, ptr(11), nil)
	store.addConsortium(3, nil, ptr(user))
	store.addUnit(100, 1)
	store.addUnit(200, 2)
	e := NewEngine(store, nil)
	id := auth.Identity{UserID: user, Role: auth.RoleTenantAdmin}
	ctx := context.Background()

	cases := []struct {
		kind   ResourceKind
		id     int64
		action Action
		want   Decision
	}{
		{KindConsortium, 1, ActionModify, Allow()},
		{KindConsortium, 1, ActionDelete, Allow()},
		{KindConsortium, 2, ActionModify, Deny(ReasonForbidden)},
		{KindConsortium, 2, ActionRead, Deny(ReasonForbidden)},
		{KindConsortium, 3, ActionRead, Deny(ReasonForbidden)},
		{KindConsortium, 404, ActionRead, Deny(ReasonNotFound)},
		{KindUnit, 100, ActionDelete, Allow()},
		{KindUnit, 200, ActionRead, Deny(ReasonForbidden)},
		{KindUnit, 404, ActionDelete, Deny(ReasonNotFound)},
	}
	for _, tc := range cases {
		d, err := e.CanAccess(ctx, id, tc.kind, tc.id, tc.action)
		require.NoError(t, err)
		assert.Equal(t, tc.want, d, "%s %d %s", tc.kind, tc.id, tc.action)
	}
}

func TestConsortiumAdminScenario(t *testing.T) {
	const user = 30
	store := newFakeStore()
	store.addConsortium(7, nil, ptr(user))
	store.addConsortium(9, nil, ptr(31))
	store.addUnit(70, 7)
	e := NewEngine(store, nil)
	id := auth.Identity{UserID: user, Role: auth.RoleConsortiumAdmin}
	ctx := context.Background()

	d, err := e.CanAccess(ctx, id, KindConsortium, 7, ActionFromMethod(http.MethodPut))
	require.NoError(t, err)
	assert.Equal(t, Allow(), d)

	d, err = e.CanAccess(ctx, id, KindConsortium, 9, ActionFromMethod(http.MethodPut))
	require.NoError(t, err)
	assert.Equal(t, Deny(ReasonForbidden), d)

	d, err = e.CanAccess(ctx, id, KindUnit, 70, ActionModify)
	require.NoError(t, err)
	assert.Equal(t, Allow(), d, "responsible admin manages units of the consortium")

	d, err = e.CanAccess(ctx, id, KindConsortium, 7, ActionDelete)
	require.NoError(t, err)
	assert.Equal(t, Deny(ReasonForbidden), d, "only global and tenant admins delete")
}

func TestOwnerScenario(t *testing.T) {
	const user = 50
	store := newFakeStore()
	store.addConsortium(5, nil, nil)
	store.addUnit(42, 5)
	store.addUnit(99, 5)
	store.assign(user, nil, ptr(42))
	e := NewEngine(store, nil)
	id := auth.Identity{UserID: user, Role: auth.RoleOwner}
	ctx := context.Background()

	scope, err := e.resolver.Resolve(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, scope.ConsortiumIDs.Sorted())
	assert.Equal(t, []int64{42}, scope.UnitIDs.Sorted())

	cases := []struct {
		kind   ResourceKind
		id     int64
		method string
		want   Decision
	}{
		{KindUnit, 42, http.MethodGet, Allow()},
		{KindUnit, 42, http.MethodPut, Deny(ReasonForbidden)},
		{KindUnit, 42, http.MethodDelete, Deny(ReasonForbidden)},
		{KindUnit, 99, http.MethodGet, Deny(ReasonForbidden)},
		{KindUnit, 12345, http.MethodGet, Deny(ReasonNotFound)},
		{KindConsortium, 5, http.MethodGet, Allow()},
		{KindConsortium, 5, http.MethodPatch, Deny(ReasonForbidden)},
	}
	for _, tc := range cases {
		d, err := e.CanAccess(ctx, id, tc.kind, tc.id, ActionFromMethod(tc.method))
		require.NoError(t, err)
		assert.Equal(t, tc.want, d, "%s %d %s", tc.kind, tc.id, tc.method)
	}
}

func TestScopedRolesAreReadOnly(t *testing.T) {
	store := newFakeStore()
	store.addConsortium(5, ptr(1), ptr(1))
	store.addUnit(42, 5)
	for _, role := range []auth.Role{auth.RoleBuildingAdmin, auth.RoleOwner, auth.RoleRenter} {
		userID := int64(len(store.assignments) + 60)
		store.assign(userID, ptr(5), nil)
		store.assign(userID, nil, ptr(42))
		e := NewEngine(store, nil)
		id := auth.Identity{UserID: userID, Role: role}
		for _, kind := range []ResourceKind{KindConsortium, KindUnit} {
			rid := int64(5)
			if kind == KindUnit {
				rid = 42
			}
			d, err := e.CanAccess(context.Background(), id, kind, rid, ActionRead)
			require.NoError(t, err)
			assert.True(t, d.Allowed, "%s read %s", role, kind)

			for _, action := range []Action{ActionModify, ActionDelete} {
				d, err := e.CanAccess(context.Background(), id, kind, rid, action)
				require.NoError(t, err)
				assert.Equal(t, Deny(ReasonForbidden), d, "%s %s %s", role, action, kind)
			}
		}
	}
}

func TestConsortiumGrantCoversUnitReads(t *testing.T) {
	store := newFakeStore()
	store.addConsortium(5, nil, nil)
	store.addConsortium(6, nil, nil)
	store.addUnit(99, 5)
	store.addUnit(100, 6)
	store.assign(70, ptr(5), nil)
	e := NewEngine(store, nil)
	id := auth.Identity{UserID: 70, Role: auth.RoleBuildingAdmin}

	d, err := e.CanAccess(context.Background(), id, KindUnit, 99, ActionRead)
	require.NoError(t, err)
	assert.Equal(t, Allow(), d)

	d, err = e.CanAccess(context.Background(), id, KindUnit, 100, ActionRead)
	require.NoError(t, err)
	assert.Equal(t, Deny(ReasonForbidden), d)
}

func TestUnprivilegedAndUnknownRolesAreDenied(t *testing.T) {
	store := newFakeStore()
	store.addConsortium(5, ptr(80), ptr(80))
	store.addUnit(42, 5)
	store.assign(80, ptr(5), ptr(42))
	e := NewEngine(store, nil)

	for _, role := range []auth.Role{auth.RoleProvider, auth.RolePending, "superuser", ""} {
		id := auth.Identity{UserID: 80, Role: role}
		d, err := e.CanAccess(context.Background(), id, KindConsortium, 5, ActionRead)
		require.NoError(t, err)
		assert.Equal(t, Deny(ReasonForbidden), d, "role %q", role)

		d, err = e.CanAccess(context.Background(), id, KindUnit, 7777, ActionRead)
		require.NoError(t, err)
		assert.Equal(t, Deny(ReasonNotFound), d, "role %q on missing unit", role)
	}
}

func TestUnauthenticated(t *testing.T) {
	e := NewEngine(newFakeStore(), nil)
	d, err := e.CanAccess(context.Background(), auth.Identity{}, KindConsortium, 1, ActionRead)
	require.NoError(t, err)
	assert.Equal(t, Deny(ReasonUnauthenticated), d)
	assert.Equal(t, http.StatusUnauthorized, d.HTTPStatus())
}

func TestUnknownKind(t *testing.T) {
	e := NewEngine(newFakeStore(), nil)
	_, err := e.CanAccess(context.Background(), auth.Identity{UserID: 1, Role: auth.RoleOwner}, "ticket", 1, ActionRead)
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
}

func TestStorageFailureIsNotADenial(t *testing.T) {
	boom := errors.New("timeout")
	ctx := context.Background()

	store := newFakeStore()
	store.lookupErr = boom
	e := NewEngine(store, nil)
	d, err := e.CanAccess(ctx, auth.Identity{UserID: 1, Role: auth.RoleTenantAdmin}, KindConsortium, 1, ActionRead)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, boom)
	assert.False(t, d.Allowed)
	assert.Empty(t, d.Reason)

	store = newFakeStore()
	store.addConsortium(1, nil, nil)
	store.assignmentsErr = boom
	e = NewEngine(store, nil)
	_, err = e.CanAccess(ctx, auth.Identity{UserID: 1, Role: auth.RoleOwner}, KindConsortium, 1, ActionRead)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestDecisionHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusOK, Allow().HTTPStatus())
	assert.Equal(t, http.StatusForbidden, Deny(ReasonForbidden).HTTPStatus())
	assert.Equal(t, http.StatusNotFound, Deny(ReasonNotFound).HTTPStatus())
	assert.Equal(t, "deny:FORBIDDEN", Deny(ReasonForbidden).String())
}
