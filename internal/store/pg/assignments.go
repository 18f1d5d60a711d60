package pg

import (
	"context"

	"consorcia.org/internal/authz"
	"consorcia.org/internal/property"
)

func (s *Store) CreateAssignment(ctx context.Context, in property.AssignmentInput) (authz.Assignment, error) {
	if s.db == nil {
		return authz.Assignment{}, errNoDB
	}
	// An unknown role name leaves role_id null and trips the not-null constraint.
	row := s.db.QueryRowContext(ctx, `
		with ins as (
			insert into user_roles (user_id, role_id, consortium_id, unit_id)
			values ($1, (select id from roles where name = $2), $3, $4)
			returning *
		)
		select `+assignmentColumns+`
		from ins ur
		join roles r on r.id = ur.role_id
	`, in.UserID, string(in.Role), optionalID(in.ConsortiumID), optionalID(in.UnitID))
	a, err := scanAssignment(row)
	if err != nil {
		return authz.Assignment{}, writeErr(err)
	}
	return a, nil
}

func (s *Store) ListAssignments(ctx context.Context, userID int64, includeInactive bool) ([]authz.Assignment, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+assignmentColumns+`
		from user_roles ur
		join roles r on r.id = ur.role_id
		where ur.user_id = $1 and (ur.active or $2)
		order by ur.id
	`, userID, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []authz.Assignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) GetAssignment(ctx context.Context, id int64) (authz.Assignment, error) {
	if s.db == nil {
		return authz.Assignment{}, errNoDB
	}
	a, err := scanAssignment(s.db.QueryRowContext(ctx, `
		select `+assignmentColumns+`
		from user_roles ur
		join roles r on r.id = ur.role_id
		where ur.id = $1
	`, id))
	if err != nil {
		return authz.Assignment{}, writeErr(err)
	}
	return a, nil
}

func (s *Store) DeactivateAssignment(ctx context.Context, id int64) (authz.Assignment, error) {
	if s.db == nil {
		return authz.Assignment{}, errNoDB
	}
	res, err := s.db.ExecContext(ctx, `update user_roles set active = false where id = $1`, id)
	if err != nil {
		return authz.Assignment{}, err
	}
	if err := expectAffected(res); err != nil {
		return authz.Assignment{}, err
	}
	return s.GetAssignment(ctx, id)
}

func (s *Store) DeleteAssignment(ctx context.Context, id int64) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from user_roles where id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}
