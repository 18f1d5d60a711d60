package auth

import "context"

// UserStore reads users for login. Missing rows are reported as ErrNotFound.
type UserStore interface {
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByID(ctx context.Context, id int64) (User, error)
}

// UserDirectory adds the writes user management needs. A duplicate email is
// reported as ErrConflict. Deleting a user drops its role assignments.
type UserDirectory interface {
	UserStore
	CreateUser(ctx context.Context, u User) (User, error)
	ListUsers(ctx context.Context, q UserQuery) ([]User, int, error)
	UpdateUser(ctx context.Context, id int64, upd UserUpdate) (User, error)
	DeleteUser(ctx context.Context, id int64) error
}
