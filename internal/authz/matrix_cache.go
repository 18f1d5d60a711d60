package authz

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"consorcia.org/internal/auth"
)

// MatrixSource persists the role × module matrix.
type MatrixSource interface {
	RoleGrants(ctx context.Context, role auth.Role) (map[Module]Grant, error)
	LoadMatrix(ctx context.Context) (Matrix, error)
	SetGrant(ctx context.Context, role auth.Role, module Module, g Grant) error
}

// CachedMatrix fronts a MatrixSource with a small expiring per-role cache.
// Writes through SetGrant evict the affected role immediately; writes made
// elsewhere become visible after the TTL.
type CachedMatrix struct {
	src   MatrixSource
	cache *expirable.LRU[auth.Role, map[Module]Grant]
}

// NewCachedMatrix wraps src. size <= 0 defaults to one slot per role.
func NewCachedMatrix(src MatrixSource, size int, ttl time.Duration) *CachedMatrix {
	if size <= 0 {
		size = len(auth.AllRoles)
	}
	return &CachedMatrix{
		src:   src,
		cache: expirable.NewLRU[auth.Role, map[Module]Grant](size, nil, ttl),
	}
}

// Grants returns role's row.
func (c *CachedMatrix) Grants(ctx context.Context, role auth.Role) (map[Module]Grant, error) {
	if row, ok := c.cache.Get(role); ok {
		return row, nil
	}
	row, err := c.src.RoleGrants(ctx, role)
	if err != nil {
		return nil, unavailable("load module grants", err)
	}
	if row == nil {
		row = map[Module]Grant{}
	}
	c.cache.Add(role, row)
	return row, nil
}

// Allows reports whether role may perform action in module.
func (c *CachedMatrix) Allows(ctx context.Context, role auth.Role, module Module, action ModuleAction) (bool, error) {
	row, err := c.Grants(ctx, role)
	if err != nil {
		return false, err
	}
	return row[module].Allows(action), nil
}

// Visible lists the modules role can view.
func (c *CachedMatrix) Visible(ctx context.Context, role auth.Role) ([]VisibleModule, error) {
	row, err := c.Grants(ctx, role)
	if err != nil {
		return nil, err
	}
	return Matrix{role: row}.Visible(role), nil
}

// Matrix returns the full matrix, bypassing the cache.
func (c *CachedMatrix) Matrix(ctx context.Context) (Matrix, error) {
	m, err := c.src.LoadMatrix(ctx)
	if err != nil {
		return nil, unavailable("load module matrix", err)
	}
	return m, nil
}

// SetGrant stores one cell and evicts the role.
func (c *CachedMatrix) SetGrant(ctx context.Context, role auth.Role, module Module, g Grant) error {
	if err := c.src.SetGrant(ctx, role, module, g); err != nil {
		return err
	}
	c.cache.Remove(role)
	return nil
}
