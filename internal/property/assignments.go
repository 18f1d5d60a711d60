package property

import (
	"context"
	"errors"
	"fmt"

	"consorcia.org/internal/auth"
	"consorcia.org/internal/authz"
)

// CreateAssignment validates and stores a grant. When both a consortium and a
// unit are named, the unit must belong to that consortium.
func (s *Service) CreateAssignment(ctx context.Context, in AssignmentInput) (authz.Assignment, error) {
	if err := requireID("user_id", in.UserID); err != nil {
		return authz.Assignment{}, err
	}
	role, err := auth.ParseRole(string(in.Role))
	if err != nil {
		return authz.Assignment{}, err
	}
	in.Role = role
	if in.ConsortiumID != nil && *in.ConsortiumID <= 0 {
		return authz.Assignment{}, fmt.Errorf("%w: consortium_id must be positive", auth.ErrInvalidInput)
	}
	if in.UnitID != nil && *in.UnitID <= 0 {
		return authz.Assignment{}, fmt.Errorf("%w: unit_id must be positive", auth.ErrInvalidInput)
	}
	if in.UnitID != nil {
		u, err := s.store.GetUnit(ctx, *in.UnitID)
		if errors.Is(err, auth.ErrNotFound) {
			return authz.Assignment{}, fmt.Errorf("%w: unit %d does not exist", auth.ErrInvalidInput, *in.UnitID)
		}
		if err != nil {
			return authz.Assignment{}, err
		}
		if in.ConsortiumID != nil && *in.ConsortiumID != u.ConsortiumID {
			return authz.Assignment{}, fmt.Errorf("%w: unit %d does not belong to consortium %d", auth.ErrInvalidInput, u.ID, *in.ConsortiumID)
		}
	}
	return s.store.CreateAssignment(ctx, in)
}

func (s *Service) ListAssignments(ctx context.Context, userID int64, includeInactive bool) ([]authz.Assignment, error) {
	if err := requireID("user_id", userID); err != nil {
		return nil, err
	}
	list, err := s.store.ListAssignments(ctx, userID, includeInactive)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []authz.Assignment{}
	}
	return list, nil
}

func (s *Service) GetAssignment(ctx context.Context, id int64) (authz.Assignment, error) {
	if err := requireID("assignment_id", id); err != nil {
		return authz.Assignment{}, err
	}
	return s.store.GetAssignment(ctx, id)
}

// DeactivateAssignment is the normal way to revoke a grant.
func (s *Service) DeactivateAssignment(ctx context.Context, id int64) (authz.Assignment, error) {
	if err := requireID("assignment_id", id); err != nil {
		return authz.Assignment{}, err
	}
	return s.store.DeactivateAssignment(ctx, id)
}

func (s *Service) DeleteAssignment(ctx context.Context, id int64) error {
	if err := requireID("assignment_id", id); err != nil {
		return err
	}
	return s.store.DeleteAssignment(ctx, id)
}
