package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"consorcia.org/internal/authz"
	"consorcia.org/internal/property"
)

const consortiumColumns = `c.id, c.name, c.address, c.tenant_id, c.responsible_id, c.state, c.created_at, c.updated_at`

func scanConsortium(sc interface{ Scan(...any) error }) (property.Consortium, error) {
	var (
		c                   property.Consortium
		tenant, responsible sql.NullInt64
		state               string
	)
	if err := sc.Scan(&c.ID, &c.Name, &c.Address, &tenant, &responsible, &state, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return property.Consortium{}, err
	}
	c.TenantID = nullID(tenant)
	c.ResponsibleID = nullID(responsible)
	c.State = property.ConsortiumState(state)
	return c, nil
}

// optionalID turns a nil or zero id into SQL NULL.
func optionalID(id *int64) any {
	if id == nil || *id == 0 {
		return nil
	}
	return *id
}

func (s *Store) ListConsortiums(ctx context.Context, f authz.Filter, opts property.ListOptions) ([]property.Consortium, int, error) {
	if s.db == nil {
		return nil, 0, errNoDB
	}
	var w where
	w.consortiumFilter(f)
	if opts.State != "" {
		w.add("c.state = " + w.arg(opts.State))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from consortiums c`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `select ` + consortiumColumns + ` from consortiums c` + w.String() + ` order by c.id` + w.page(opts)
	rows, err := s.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []property.Consortium{}
	for rows.Next() {
		c, err := scanConsortium(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Store) GetConsortium(ctx context.Context, id int64) (property.Consortium, error) {
	if s.db == nil {
		return property.Consortium{}, errNoDB
	}
	c, err := scanConsortium(s.db.QueryRowContext(ctx, `select `+consortiumColumns+` from consortiums c where c.id = $1`, id))
	if err != nil {
		return property.Consortium{}, writeErr(err)
	}
	return c, nil
}

func (s *Store) CreateConsortium(ctx context.Context, in property.ConsortiumInput) (property.Consortium, error) {
	if s.db == nil {
		return property.Consortium{}, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `
		insert into consortiums as c (name, address, tenant_id, responsible_id)
		values ($1, $2, $3, $4)
		returning `+consortiumColumns,
		in.Name, in.Address, optionalID(in.TenantID), optionalID(in.ResponsibleID))
	c, err := scanConsortium(row)
	if err != nil {
		return property.Consortium{}, writeErr(err)
	}
	return c, nil
}

func (s *Store) UpdateConsortium(ctx context.Context, id int64, upd property.ConsortiumUpdate) (property.Consortium, error) {
	if s.db == nil {
		return property.Consortium{}, errNoDB
	}
	var (
		setClauses []string
		args       []any
	)
	set := func(column string, v any) {
		args = append(args, v)
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if upd.Name != nil {
		set("name", *upd.Name)
	}
	if upd.Address != nil {
		set("address", *upd.Address)
	}
	if upd.TenantID != nil {
		set("tenant_id", optionalID(upd.TenantID))
	}
	if upd.ResponsibleID != nil {
		set("responsible_id", optionalID(upd.ResponsibleID))
	}
	if len(setClauses) == 0 {
		return s.GetConsortium(ctx, id)
	}
	setClauses = append(setClauses, "updated_at = now()")
	args = append(args, id)
	query := fmt.Sprintf(`update consortiums as c set %s where c.id = $%d returning %s`,
		strings.Join(setClauses, ", "), len(args), consortiumColumns)
	c, err := scanConsortium(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return property.Consortium{}, writeErr(err)
	}
	return c, nil
}

func (s *Store) SetConsortiumState(ctx context.Context, id int64, state property.ConsortiumState) (property.Consortium, error) {
	if s.db == nil {
		return property.Consortium{}, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `
		update consortiums as c set state = $1, updated_at = now()
		where c.id = $2
		returning `+consortiumColumns, string(state), id)
	c, err := scanConsortium(row)
	if err != nil {
		return property.Consortium{}, writeErr(err)
	}
	return c, nil
}

// DeleteConsortium fails with a conflict while units reference the row;
// assignments scoped to it cascade.
func (s *Store) DeleteConsortium(ctx context.Context, id int64) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from consortiums where id = $1`, id)
	if err != nil {
		return deleteErr(err)
	}
	return expectAffected(res)
}
