// Package property holds consortiums, their units and the role assignments
// that scope users to them.
package property

import (
	"time"

	"consorcia.org/internal/auth"
	"consorcia.org/internal/authz"
)

// ConsortiumState is the lifecycle state of a consortium.
type ConsortiumState string

const (
	ConsortiumActive   ConsortiumState = "active"
	ConsortiumInactive ConsortiumState = "inactive"
)

func (s ConsortiumState) valid() bool {
	return s == ConsortiumActive || s == ConsortiumInactive
}

// UnitState is the occupancy state of a unit.
type UnitState string

const (
	UnitOccupied    UnitState = "occupied"
	UnitVacant      UnitState = "vacant"
	UnitMaintenance UnitState = "maintenance"
)

func (s UnitState) valid() bool {
	switch s {
	case UnitOccupied, UnitVacant, UnitMaintenance:
		return true
	}
	return false
}

// Consortium is a managed building.
type Consortium struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Address       string          `json:"address,omitempty"`
	TenantID      *int64          `json:"tenant_id,omitempty"`
	ResponsibleID *int64          `json:"responsible_id,omitempty"`
	State         ConsortiumState `json:"state"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Access projects the columns the permission layer reads.
func (c Consortium) Access() authz.Consortium {
	return authz.Consortium{ID: c.ID, TenantID: c.TenantID, ResponsibleID: c.ResponsibleID}
}

// ConsortiumInput creates a consortium.
type ConsortiumInput struct {
	Name          string `json:"name"`
	Address       string `json:"address"`
	TenantID      *int64 `json:"tenant_id"`
	ResponsibleID *int64 `json:"responsible_id"`
}

// ConsortiumUpdate changes the non-nil fields. A zero id clears the link.
type ConsortiumUpdate struct {
	Name          *string `json:"name"`
	Address       *string `json:"address"`
	TenantID      *int64  `json:"tenant_id"`
	ResponsibleID *int64  `json:"responsible_id"`
}

// Unit is a functional unit inside a consortium.
type Unit struct {
	ID           int64     `json:"id"`
	ConsortiumID int64     `json:"consortium_id"`
	Code         string    `json:"code"`
	Floor        string    `json:"floor"`
	Area         *float64  `json:"area,omitempty"`
	Share        *float64  `json:"share,omitempty"`
	State        UnitState `json:"state"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Access projects the columns the permission layer reads.
func (u Unit) Access() authz.Unit {
	return authz.Unit{ID: u.ID, ConsortiumID: u.ConsortiumID}
}

// UnitInput creates a unit.
type UnitInput struct {
	ConsortiumID int64     `json:"consortium_id"`
	Code         string    `json:"code"`
	Floor        string    `json:"floor"`
	Area         *float64  `json:"area"`
	Share        *float64  `json:"share"`
	State        UnitState `json:"state"`
	Description  string    `json:"description"`
}

// UnitUpdate changes the non-nil fields. The parent consortium cannot move.
type UnitUpdate struct {
	Code        *string    `json:"code"`
	Floor       *string    `json:"floor"`
	Area        *float64   `json:"area"`
	Share       *float64   `json:"share"`
	State       *UnitState `json:"state"`
	Description *string    `json:"description"`
}

// AssignmentInput grants a role to a user, optionally narrowed.
type AssignmentInput struct {
	UserID       int64     `json:"user_id"`
	Role         auth.Role `json:"role"`
	ConsortiumID *int64    `json:"consortium_id"`
	UnitID       *int64    `json:"unit_id"`
}

// ListOptions narrows and pages list queries.
type ListOptions struct {
	State        string
	ConsortiumID int64
	Limit        int
	Offset       int
}

// Page is one page of a filtered listing.
type Page[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}
