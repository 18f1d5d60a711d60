package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"consorcia.org/internal/authz"
	"consorcia.org/internal/property"
)

const unitColumns = `u.id, u.consortium_id, u.code, u.floor, u.area::float8, u.share::float8, u.state, u.description, u.created_at, u.updated_at`

func scanUnit(sc interface{ Scan(...any) error }) (property.Unit, error) {
	var (
		u           property.Unit
		area, share sql.NullFloat64
		state       string
	)
	if err := sc.Scan(&u.ID, &u.ConsortiumID, &u.Code, &u.Floor, &area, &share, &state, &u.Description, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return property.Unit{}, err
	}
	u.Area = nullFloat(area)
	u.Share = nullFloat(share)
	u.State = property.UnitState(state)
	return u, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func optionalFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

// ListUnits joins the parent consortium so tenant and responsible filters apply to units.
func (s *Store) ListUnits(ctx context.Context, f authz.Filter, opts property.ListOptions) ([]property.Unit, int, error) {
	if s.db == nil {
		return nil, 0, errNoDB
	}
	var w where
	w.unitFilter(f)
	if opts.ConsortiumID > 0 {
		w.add("u.consortium_id = " + w.arg(opts.ConsortiumID))
	}
	if opts.State != "" {
		w.add("u.state = " + w.arg(opts.State))
	}
	from := ` from units u join consortiums c on c.id = u.consortium_id`

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*)`+from+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `select ` + unitColumns + from + w.String() + ` order by u.id` + w.page(opts)
	rows, err := s.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []property.Unit{}
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Store) GetUnit(ctx context.Context, id int64) (property.Unit, error) {
	if s.db == nil {
		return property.Unit{}, errNoDB
	}
	u, err := scanUnit(s.db.QueryRowContext(ctx, `select `+unitColumns+` from units u where u.id = $1`, id))
	if err != nil {
		return property.Unit{}, writeErr(err)
	}
	return u, nil
}

func (s *Store) CreateUnit(ctx context.Context, in property.UnitInput) (property.Unit, error) {
	if s.db == nil {
		return property.Unit{}, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `
		insert into units as u (consortium_id, code, floor, area, share, state, description)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning `+unitColumns,
		in.ConsortiumID, in.Code, in.Floor, optionalFloat(in.Area), optionalFloat(in.Share), string(in.State), in.Description)
	u, err := scanUnit(row)
	if err != nil {
		return property.Unit{}, writeErr(err)
	}
	return u, nil
}

func (s *Store) UpdateUnit(ctx context.Context, id int64, upd property.UnitUpdate) (property.Unit, error) {
	if s.db == nil {
		return property.Unit{}, errNoDB
	}
	var (
		setClauses []string
		args       []any
	)
	set := func(column string, v any) {
		args = append(args, v)
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if upd.Code != nil {
		set("code", *upd.Code)
	}
	if upd.Floor != nil {
		set("floor", *upd.Floor)
	}
	if upd.Area != nil {
		set("area", *upd.Area)
	}
	if upd.Share != nil {
		set("share", *upd.Share)
	}
	if upd.State != nil {
		set("state", string(*upd.State))
	}
	if upd.Description != nil {
		set("description", *upd.Description)
	}
	if len(setClauses) == 0 {
		return s.GetUnit(ctx, id)
	}
	setClauses = append(setClauses, "updated_at = now()")
	args = append(args, id)
	query := fmt.Sprintf(`update units as u set %s where u.id = $%d returning %s`,
		strings.Join(setClauses, ", "), len(args), unitColumns)
	u, err := scanUnit(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return property.Unit{}, writeErr(err)
	}
	return u, nil
}

func (s *Store) DeleteUnit(ctx context.Context, id int64) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from units where id = $1`, id)
	if err != nil {
		return deleteErr(err)
	}
	return expectAffected(res)
}
