package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	maxUsernameLength = 50
	defaultUserLimit  = 50
	maxUserLimit      = 200
)

// UserService manages accounts: self-service registration, administrator
// CRUD and approval of pending users. Who may call what is decided by the
// HTTP layer; this type only validates and normalises.
type UserService struct {
	store UserDirectory
}

func NewUserService(store UserDirectory) (*UserService, error) {
	if store == nil {
		return nil, errors.New("auth: user directory is required")
	}
	return &UserService{store: store}, nil
}

// Register creates a pending account that cannot log in until approved.
func (s *UserService) Register(ctx context.Context, in Registration) (User, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return User{}, err
	}
	username, err := normalizeUsername(in.Username, email)
	if err != nil {
		return User{}, err
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return User{}, err
	}
	return s.store.CreateUser(ctx, User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         RolePending,
		Active:       false,
		Approved:     false,
	})
}

// Create adds an account on behalf of an administrator.
func (s *UserService) Create(ctx context.Context, in NewUser) (User, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return User{}, err
	}
	username, err := normalizeUsername(in.Username, email)
	if err != nil {
		return User{}, err
	}
	role, err := ParseRole(string(in.Role))
	if err != nil {
		return User{}, err
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return User{}, err
	}
	u := User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
		Approved:     true,
	}
	if in.Active != nil {
		u.Active = *in.Active
	}
	if in.Approved != nil {
		u.Approved = *in.Approved
	}
	return s.store.CreateUser(ctx, u)
}

func (s *UserService) Get(ctx context.Context, id int64) (User, error) {
	if id <= 0 {
		return User{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.UserByID(ctx, id)
}

func (s *UserService) List(ctx context.Context, q UserQuery) (UserPage, error) {
	if q.Role != "" && !q.Role.Valid() {
		return UserPage{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, q.Role)
	}
	if q.Limit <= 0 {
		q.Limit = defaultUserLimit
	}
	if q.Limit > maxUserLimit {
		q.Limit = maxUserLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	items, total, err := s.store.ListUsers(ctx, q)
	if err != nil {
		return UserPage{}, err
	}
	if items == nil {
		items = []User{}
	}
	return UserPage{Items: items, Total: total, Limit: q.Limit, Offset: q.Offset}, nil
}

func (s *UserService) Update(ctx context.Context, id int64, upd UserUpdate) (User, error) {
	if id <= 0 {
		return User{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if upd.Email != nil {
		email, err := normalizeEmail(*upd.Email)
		if err != nil {
			return User{}, err
		}
		upd.Email = &email
	}
	if upd.Username != nil {
		name := strings.TrimSpace(*upd.Username)
		if name == "" || utf8.RuneCountInString(name) > maxUsernameLength {
			return User{}, fmt.Errorf("%w: username must be 1 to %d characters", ErrInvalidInput, maxUsernameLength)
		}
		upd.Username = &name
	}
	if upd.Role != nil {
		role, err := ParseRole(string(*upd.Role))
		if err != nil {
			return User{}, err
		}
		upd.Role = &role
	}
	if upd.Password != nil {
		hash, err := HashPassword(*upd.Password)
		if err != nil {
			return User{}, err
		}
		upd.Password = &hash
	}
	return s.store.UpdateUser(ctx, id, upd)
}

// Approve activates a pending account. A user still holding the pending role
// needs a real role to be approved into.
func (s *UserService) Approve(ctx context.Context, id int64, role Role) (User, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	if role == "" {
		role = current.Role
	}
	role, err = ParseRole(string(role))
	if err != nil {
		return User{}, err
	}
	if role == RolePending {
		return User{}, fmt.Errorf("%w: a role is required to approve a pending user", ErrInvalidInput)
	}
	yes := true
	return s.store.UpdateUser(ctx, id, UserUpdate{Role: &role, Active: &yes, Approved: &yes})
}

func (s *UserService) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.DeleteUser(ctx, id)
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		return "", fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	domain := email[at+1:]
	if dot := strings.LastIndex(domain, "."); dot <= 0 || dot == len(domain)-1 {
		return "", fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	return email, nil
}

// normalizeUsername falls back to the local part of the email.
func normalizeUsername(raw, email string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		name = email[:strings.LastIndex(email, "@")]
	}
	if utf8.RuneCountInString(name) > maxUsernameLength {
		return "", fmt.Errorf("%w: username must be at most %d characters", ErrInvalidInput, maxUsernameLength)
	}
	return name, nil
}
