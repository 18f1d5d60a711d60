// Package authz decides who may see or change consortiums and units.
//
// It reads three relations through Store (consortiums, units and role
// assignments) and produces either a Decision for a single resource or a
// Filter for list queries. It never writes.
package authz

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"consorcia.org/internal/auth"
)

// ErrUnavailable marks failures to read permission data. Callers should treat
// it as retryable and must not turn it into a denial.
var ErrUnavailable = errors.New("authz: permission data unavailable")

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

// ResourceKind names the protected relations.
type ResourceKind string

const (
	KindConsortium ResourceKind = "consortium"
	KindUnit       ResourceKind = "unit"
)

// ParseKind validates a wire value.
func ParseKind(s string) (ResourceKind, error) {
	switch k := ResourceKind(s); k {
	case KindConsortium, KindUnit:
		return k, nil
	}
	return "", fmt.Errorf("authz: unknown resource kind %q", s)
}

// Action is the verb class a request performs on a resource.
type Action string

const (
	ActionRead   Action = "read"
	ActionModify Action = "modify"
	ActionDelete Action = "delete"
)

// ActionFromMethod folds an HTTP method into an Action. Unknown methods count as modify.
func ActionFromMethod(method string) Action {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ActionRead
	case http.MethodDelete:
		return ActionDelete
	default:
		return ActionModify
	}
}

// Consortium carries the ownership columns the permission layer reads.
type Consortium struct {
	ID            int64
	TenantID      *int64
	ResponsibleID *int64
}

func (c Consortium) tenantIs(userID int64) bool {
	return c.TenantID != nil && *c.TenantID == userID
}

func (c Consortium) responsibleIs(userID int64) bool {
	return c.ResponsibleID != nil && *c.ResponsibleID == userID
}

// Unit carries the parent link the permission layer reads.
type Unit struct {
	ID           int64
	ConsortiumID int64
}

// Assignment grants a user a role, optionally narrowed to a consortium and/or a unit.
type Assignment struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	RoleID       int64     `json:"role_id"`
	Role         auth.Role `json:"role,omitempty"`
	ConsortiumID *int64    `json:"consortium_id,omitempty"`
	UnitID       *int64    `json:"unit_id,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Global reports whether the assignment carries neither a consortium nor a unit.
func (a Assignment) Global() bool {
	return a.ConsortiumID == nil && a.UnitID == nil
}

// Store is the read interface the permission layer needs. Missing consortiums
// and units are reported as auth.ErrNotFound; anything else is an outage.
type Store interface {
	ActiveAssignments(ctx context.Context, userID int64) ([]Assignment, error)
	// UnitConsortiums maps each existing unit id to its consortium id. Unknown ids are omitted.
	UnitConsortiums(ctx context.Context, unitIDs []int64) (map[int64]int64, error)
	ConsortiumByID(ctx context.Context, id int64) (Consortium, error)
	UnitByID(ctx context.Context, id int64) (Unit, error)
}
