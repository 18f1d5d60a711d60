package property

import (
	"context"

	"consorcia.org/internal/authz"
)

// ConsortiumStore persists consortiums. Listing applies the filter it is given
// and nothing else decides visibility.
type ConsortiumStore interface {
	ListConsortiums(ctx context.Context, f authz.Filter, opts ListOptions) ([]Consortium, int, error)
	GetConsortium(ctx context.Context, id int64) (Consortium, error)
	CreateConsortium(ctx context.Context, in ConsortiumInput) (Consortium, error)
	UpdateConsortium(ctx context.Context, id int64, upd ConsortiumUpdate) (Consortium, error)
	SetConsortiumState(ctx context.Context, id int64, state ConsortiumState) (Consortium, error)
	DeleteConsortium(ctx context.Context, id int64) error
}

// UnitStore persists units.
type UnitStore interface {
	ListUnits(ctx context.Context, f authz.Filter, opts ListOptions) ([]Unit, int, error)
	GetUnit(ctx context.Context, id int64) (Unit, error)
	CreateUnit(ctx context.Context, in UnitInput) (Unit, error)
	UpdateUnit(ctx context.Context, id int64, upd UnitUpdate) (Unit, error)
	DeleteUnit(ctx context.Context, id int64) error
}

// AssignmentStore persists role assignments.
type AssignmentStore interface {
	CreateAssignment(ctx context.Context, in AssignmentInput) (authz.Assignment, error)
	ListAssignments(ctx context.Context, userID int64, includeInactive bool) ([]authz.Assignment, error)
	GetAssignment(ctx context.Context, id int64) (authz.Assignment, error)
	DeactivateAssignment(ctx context.Context, id int64) (authz.Assignment, error)
	DeleteAssignment(ctx context.Context, id int64) error
}

// Store is everything the property service needs.
type Store interface {
	ConsortiumStore
	UnitStore
	AssignmentStore
}
