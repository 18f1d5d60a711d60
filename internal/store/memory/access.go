package memory

import (
	"context"

	"consorcia.org/internal/auth"
	"consorcia.org/internal/authz"
)

func (s *Store) ActiveAssignments(_ context.Context, userID int64) ([]authz.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []authz.Assignment
	for _, id := range sortedKeys(s.assignments) {
		a := s.assignments[id]
		if a.UserID == userID && a.Active {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) UnitConsortiums(_ context.Context, unitIDs []int64) (map[int64]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]int64, len(unitIDs))
	for _, id := range unitIDs {
		if u, ok := s.units[id]; ok {
			out[id] = u.ConsortiumID
		}
	}
	return out, nil
}

func (s *Store) ConsortiumByID(_ context.Context, id int64) (authz.Consortium, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.consortiums[id]
	if !ok {
		return authz.Consortium{}, auth.ErrNotFound
	}
	return c.Access(), nil
}

func (s *Store) UnitByID(_ context.Context, id int64) (authz.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.units[id]
	if !ok {
		return authz.Unit{}, auth.ErrNotFound
	}
	return u.Access(), nil
}

func (s *Store) RoleGrants(_ context.Context, role auth.Role) (map[authz.Module]authz.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matrix.Clone()[role], nil
}

func (s *Store) LoadMatrix(context.Context) (authz.Matrix, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matrix.Clone(), nil
}

func (s *Store) SetGrant(_ context.Context, role auth.Role, module authz.Module, g authz.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roleIDs[role]; !ok {
		return auth.ErrNotFound
	}
	if s.matrix[role] == nil {
		s.matrix[role] = map[authz.Module]authz.Grant{}
	}
	s.matrix[role][module] = g
	return nil
}
