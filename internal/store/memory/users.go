package memory

import (
	"context"
	"strings"

	"consorcia.org/internal/auth"
	"consorcia.org/internal/property"
)

// emailTaken reports whether another user already holds email. Callers hold the lock.
func (s *Store) emailTaken(email string, except int64) bool {
	for _, u := range s.users {
		if u.ID != except && u.Email == email {
			return true
		}
	}
	return false
}

func (s *Store) CreateUser(_ context.Context, u auth.User) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if s.emailTaken(u.Email, 0) {
		return auth.User{}, auth.ErrConflict
	}
	if !u.Role.Valid() {
		return auth.User{}, auth.ErrNotFound
	}
	u.ID = s.id()
	u.CreatedAt = s.now()
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) ListUsers(_ context.Context, q auth.UserQuery) ([]auth.User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []auth.User
	for _, id := range sortedKeys(s.users) {
		u := s.users[id]
		if q.Role != "" && u.Role != q.Role {
			continue
		}
		if q.Pending && u.Approved {
			continue
		}
		matched = append(matched, u)
	}
	return page(matched, property.ListOptions{Limit: q.Limit, Offset: q.Offset}), len(matched), nil
}

func (s *Store) UpdateUser(_ context.Context, id int64, upd auth.UserUpdate) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	if upd.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*upd.Email))
		if s.emailTaken(email, id) {
			return auth.User{}, auth.ErrConflict
		}
		u.Email = email
	}
	if upd.Username != nil {
		u.Username = *upd.Username
	}
	if upd.Password != nil {
		u.PasswordHash = *upd.Password
	}
	if upd.Role != nil {
		if !upd.Role.Valid() {
			return auth.User{}, auth.ErrNotFound
		}
		u.Role = *upd.Role
	}
	if upd.Active != nil {
		u.Active = *upd.Active
	}
	if upd.Approved != nil {
		u.Approved = *upd.Approved
	}
	s.users[id] = u
	return u, nil
}

// DeleteUser mirrors the foreign keys: assignments cascade, consortium
// links are cleared.
func (s *Store) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.users, id)
	for aid, a := range s.assignments {
		if a.UserID == id {
			delete(s.assignments, aid)
		}
	}
	for cid, c := range s.consortiums {
		changed := false
		if c.TenantID != nil && *c.TenantID == id {
			c.TenantID = nil
			changed = true
		}
		if c.ResponsibleID != nil && *c.ResponsibleID == id {
			c.ResponsibleID = nil
			changed = true
		}
		if changed {
			s.consortiums[cid] = c
		}
	}
	return nil
}
