package pg

import (
	"context"
	"database/sql"
	"errors"

	"consorcia.org/internal/auth"
	"consorcia.org/internal/authz"
)

const assignmentColumns = `ur.id, ur.user_id, ur.role_id, r.name, ur.consortium_id, ur.unit_id, ur.active, ur.created_at`

func scanAssignment(sc interface{ Scan(...any) error }) (authz.Assignment, error) {
	var (
		a          authz.Assignment
		role       string
		consortium sql.NullInt64
		unit       sql.NullInt64
	)
	if err := sc.Scan(&a.ID, &a.UserID, &a.RoleID, &role, &consortium, &unit, &a.Active, &a.CreatedAt); err != nil {
		return authz.Assignment{}, err
	}
	a.Role = auth.Role(role)
	a.ConsortiumID = nullID(consortium)
	a.UnitID = nullID(unit)
	return a, nil
}

func nullID(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func (s *Store) ActiveAssignments(ctx context.Context, userID int64) ([]authz.Assignment, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+assignmentColumns+`
		from user_roles ur
		join roles r on r.id = ur.role_id
		where ur.user_id = $1 and ur.active
		order by ur.id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []authz.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) UnitConsortiums(ctx context.Context, unitIDs []int64) (map[int64]int64, error) {
	out := make(map[int64]int64, len(unitIDs))
	if len(unitIDs) == 0 {
		return out, nil
	}
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `select id, consortium_id from units where id = any($1)`, unitIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, parent int64
		if err := rows.Scan(&id, &parent); err != nil {
			return nil, err
		}
		out[id] = parent
	}
	return out, rows.Err()
}

func (s *Store) ConsortiumByID(ctx context.Context, id int64) (authz.Consortium, error) {
	if s.db == nil {
		return authz.Consortium{}, errNoDB
	}
	var tenant, responsible sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		select tenant_id, responsible_id from consortiums where id = $1
	`, id).Scan(&tenant, &responsible)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.Consortium{}, auth.ErrNotFound
	}
	if err != nil {
		return authz.Consortium{}, err
	}
	return authz.Consortium{ID: id, TenantID: nullID(tenant), ResponsibleID: nullID(responsible)}, nil
}

func (s *Store) UnitByID(ctx context.Context, id int64) (authz.Unit, error) {
	if s.db == nil {
		return authz.Unit{}, errNoDB
	}
	u := authz.Unit{ID: id}
	err := s.db.QueryRowContext(ctx, `select consortium_id from units where id = $1`, id).Scan(&u.ConsortiumID)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.Unit{}, auth.ErrNotFound
	}
	if err != nil {
		return authz.Unit{}, err
	}
	return u, nil
}
