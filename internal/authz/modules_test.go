package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consorcia.org/internal/auth"
)

func TestDefaultMatrix(t *testing.T) {
	m := DefaultMatrix()

	for _, r := range auth.AllRoles {
		_, ok := m[r]
		assert.True(t, ok, "role %s missing from matrix", r)
	}
	assert.True(t, m.Allows(auth.RoleGlobalAdmin, ModuleUsers, ModuleDelete))
	assert.True(t, m.Allows(auth.RoleTenantAdmin, ModuleConsortiums, ModuleCreate))
	assert.False(t, m.Allows(auth.RoleTenantAdmin, ModuleUsers, ModuleDelete))
	assert.False(t, m.Allows(auth.RoleConsortiumAdmin, ModuleConsortiums, ModuleCreate))
	assert.True(t, m.Allows(auth.RoleConsortiumAdmin, ModuleUnits, ModuleCreate))
	assert.True(t, m.Allows(auth.RoleOwner, ModuleTickets, ModuleCreate))
	assert.False(t, m.Allows(auth.RoleOwner, ModulePeople, ModuleView))
	assert.True(t, m.Allows(auth.RoleProvider, ModuleTickets, ModuleEdit))
	assert.False(t, m.Allows(auth.RoleProvider, ModuleDashboard, ModuleView))
	assert.False(t, m.Allows(auth.RolePending, ModuleDashboard, ModuleView))
	assert.False(t, m.Allows("root", ModuleDashboard, ModuleView))
}

func TestVisibleModules(t *testing.T) {
	m := DefaultMatrix()
	var keys []Module
	for _, v := range m.Visible(auth.RoleRenter) {
		keys = append(keys, v.Key)
	}
	assert.Equal(t, []Module{ModuleDashboard, ModuleConsortiums, ModuleUnits, ModuleExpenses, ModuleTickets}, keys)
	assert.Empty(t, m.Visible(auth.RolePending))
	assert.Len(t, m.Visible(auth.RoleProvider), 1)
}

func TestParseModule(t *testing.T) {
	got, err := ParseModule("unidades")
	require.NoError(t, err)
	assert.Equal(t, ModuleUnits, got)
	_, err = ParseModule("reportes")
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
}

type countingSource struct {
	m     Matrix
	reads int
	err   error
}

func (s *countingSource) RoleGrants(_ context.Context, role auth.Role) (map[Module]Grant, error) {
	s.reads++
	if s.err != nil {
		return nil, s.err
	}
	return s.m.Clone()[role], nil
}

func (s *countingSource) LoadMatrix(context.Context) (Matrix, error) { return s.m.Clone(), s.err }

func (s *countingSource) SetGrant(_ context.Context, role auth.Role, module Module, g Grant) error {
	if s.m[role] == nil {
		s.m[role] = map[Module]Grant{}
	}
	s.m[role][module] = g
	return nil
}

func TestCachedMatrix(t *testing.T) {
	src := &countingSource{m: DefaultMatrix()}
	c := NewCachedMatrix(src, 0, time.Minute)
	ctx := context.Background()

	ok, err := c.Allows(ctx, auth.RoleOwner, ModuleTickets, ModuleCreate)
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = c.Visible(ctx, auth.RoleOwner)
	require.NoError(t, err)
	assert.Equal(t, 1, src.reads, "second lookup should hit the cache")

	require.NoError(t, c.SetGrant(ctx, auth.RoleOwner, ModuleTickets, Grant{View: true}))
	ok, err = c.Allows(ctx, auth.RoleOwner, ModuleTickets, ModuleCreate)
	require.NoError(t, err)
	assert.False(t, ok, "write must evict the cached row")
	assert.Equal(t, 2, src.reads)

	full, err := c.Matrix(ctx)
	require.NoError(t, err)
	assert.False(t, full.Allows(auth.RoleOwner, ModuleTickets, ModuleCreate))
}

func TestCachedMatrixFailure(t *testing.T) {
	src := &countingSource{m: DefaultMatrix(), err: errors.New("db gone")}
	c := NewCachedMatrix(src, 4, time.Minute)
	_, err := c.Allows(context.Background(), auth.RoleOwner, ModuleTickets, ModuleView)
	assert.ErrorIs(t, err, ErrUnavailable)
}
