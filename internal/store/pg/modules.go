package pg

import (
	"context"

	"consorcia.org/internal/auth"
	"consorcia.org/internal/authz"
)

func (s *Store) RoleGrants(ctx context.Context, role auth.Role) (map[authz.Module]authz.Grant, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select m.code, rm.can_view, rm.can_create, rm.can_edit, rm.can_delete
		from role_modules rm
		join roles r on r.id = rm.role_id
		join modules m on m.id = rm.module_id
		where r.name = $1 and m.active
	`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[authz.Module]authz.Grant{}
	for rows.Next() {
		var (
			code string
			g    authz.Grant
		)
		if err := rows.Scan(&code, &g.View, &g.Create, &g.Edit, &g.Delete); err != nil {
			return nil, err
		}
		out[authz.Module(code)] = g
	}
	return out, rows.Err()
}

func (s *Store) LoadMatrix(ctx context.Context) (authz.Matrix, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select r.name, m.code, rm.can_view, rm.can_create, rm.can_edit, rm.can_delete
		from role_modules rm
		join roles r on r.id = rm.role_id
		join modules m on m.id = rm.module_id
		where m.active
		order by r.id, m.sort_order
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := authz.Matrix{}
	for rows.Next() {
		var (
			role, code string
			g          authz.Grant
		)
		if err := rows.Scan(&role, &code, &g.View, &g.Create, &g.Edit, &g.Delete); err != nil {
			return nil, err
		}
		r := auth.Role(role)
		if out[r] == nil {
			out[r] = map[authz.Module]authz.Grant{}
		}
		out[r][authz.Module(code)] = g
	}
	return out, rows.Err()
}

// SetGrant upserts one cell. Unknown roles or modules report ErrNotFound.
func (s *Store) SetGrant(ctx context.Context, role auth.Role, module authz.Module, g authz.Grant) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `
		insert into role_modules (role_id, module_id, can_view, can_create, can_edit, can_delete)
		select r.id, m.id, $3, $4, $5, $6
		from roles r, modules m
		where r.name = $1 and m.code = $2
		on conflict (role_id, module_id) do update set
			can_view = excluded.can_view,
			can_create = excluded.can_create,
			can_edit = excluded.can_edit,
			can_delete = excluded.can_delete
	`, string(role), string(module), g.View, g.Create, g.Edit, g.Delete)
	if err != nil {
		return err
	}
	return expectAffected(res)
}
