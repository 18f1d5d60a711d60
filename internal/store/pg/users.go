package pg

import (
	"context"
	"fmt"
	"strings"

	"consorcia.org/internal/auth"
	"consorcia.org/internal/property"
)

const userColumns = `id, username, email, password_hash, role, active, approved, created_at`

func scanUser(sc interface{ Scan(...any) error }) (auth.User, error) {
	var (
		u    auth.User
		role string
	)
	if err := sc.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.Active, &u.Approved, &u.CreatedAt); err != nil {
		return auth.User{}, err
	}
	u.Role = auth.Role(role)
	return u, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where lower(email) = $1`,
		strings.ToLower(strings.TrimSpace(email))))
	if err != nil {
		return auth.User{}, writeErr(err)
	}
	return u, nil
}

func (s *Store) UserByID(ctx context.Context, id int64) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id))
	if err != nil {
		return auth.User{}, writeErr(err)
	}
	return u, nil
}

// CreateUser inserts a user with an already hashed password.
func (s *Store) CreateUser(ctx context.Context, u auth.User) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `
		insert into users (username, email, password_hash, role, active, approved)
		values ($1, $2, $3, $4, $5, $6)
		returning `+userColumns,
		u.Username, strings.ToLower(strings.TrimSpace(u.Email)), u.PasswordHash, string(u.Role), u.Active, u.Approved)
	created, err := scanUser(row)
	if err != nil {
		return auth.User{}, writeErr(err)
	}
	return created, nil
}

func (s *Store) ListUsers(ctx context.Context, q auth.UserQuery) ([]auth.User, int, error) {
	if s.db == nil {
		return nil, 0, errNoDB
	}
	var w where
	if q.Role != "" {
		w.add("role = " + w.arg(string(q.Role)))
	}
	if q.Pending {
		w.add("not approved")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from users`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `select ` + userColumns + ` from users` + w.String() + ` order by id` +
		w.page(property.ListOptions{Limit: q.Limit, Offset: q.Offset})
	rows, err := s.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []auth.User{}
	for rows.Next() {
		u, err := scanUser(rows)
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

// UpdateUser writes the non-nil fields. Password is expected to be a hash.
func (s *Store) UpdateUser(ctx context.Context, id int64, upd auth.UserUpdate) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	var (
		setClauses []string
		args       []any
	)
	set := func(column string, v any) {
		args = append(args, v)
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if upd.Username != nil {
		set("username", *upd.Username)
	}
	if upd.Email != nil {
		set("email", strings.ToLower(strings.TrimSpace(*upd.Email)))
	}
	if upd.Password != nil {
		set("password_hash", *upd.Password)
	}
	if upd.Role != nil {
		set("role", string(*upd.Role))
	}
	if upd.Active != nil {
		set("active", *upd.Active)
	}
	if upd.Approved != nil {
		set("approved", *upd.Approved)
	}
	if len(setClauses) == 0 {
		return s.UserByID(ctx, id)
	}
	args = append(args, id)
	query := fmt.Sprintf(`update users set %s where id = $%d returning %s`,
		strings.Join(setClauses, ", "), len(args), userColumns)
	u, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return auth.User{}, writeErr(err)
	}
	return u, nil
}

// DeleteUser removes the account. Its assignments cascade and consortium
// links are set to null by the schema.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from users where id = $1`, id)
	if err != nil {
		return deleteErr(err)
	}
	return expectAffected(res)
}
