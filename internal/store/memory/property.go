package memory

import (
	"context"
	"strings"

	"consorcia.org/internal/auth"
	"consorcia.org/internal/authz"
	"consorcia.org/internal/property"
)

func (s *Store) ListConsortiums(_ context.Context, f authz.Filter, opts property.ListOptions) ([]property.Consortium, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []property.Consortium
	for _, id := range sortedKeys(s.consortiums) {
		c := s.consortiums[id]
		if !f.MatchConsortium(c.Access()) {
			continue
		}
		if opts.State != "" && string(c.State) != opts.State {
			continue
		}
		matched = append(matched, c)
	}
	return page(matched, opts), len(matched), nil
}

func (s *Store) GetConsortium(_ context.Context, id int64) (property.Consortium, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.consortiums[id]
	if !ok {
		return property.Consortium{}, auth.ErrNotFound
	}
	return c, nil
}

func (s *Store) checkUser(id *int64) error {
	if id == nil {
		return nil
	}
	if _, ok := s.users[*id]; !ok {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) CreateConsortium(_ context.Context, in property.ConsortiumInput) (property.Consortium, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkUser(in.TenantID); err != nil {
		return property.Consortium{}, err
	}
	if err := s.checkUser(in.ResponsibleID); err != nil {
		return property.Consortium{}, err
	}
	now := s.now()
	c := property.Consortium{
		ID:            s.id(),
		Name:          in.Name,
		Address:       in.Address,
		TenantID:      in.TenantID,
		ResponsibleID: in.ResponsibleID,
		State:         property.ConsortiumActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.consortiums[c.ID] = c
	return c, nil
}

func (s *Store) UpdateConsortium(_ context.Context, id int64, upd property.ConsortiumUpdate) (property.Consortium, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.consortiums[id]
	if !ok {
		return property.Consortium{}, auth.ErrNotFound
	}
	if upd.Name != nil {
		c.Name = *upd.Name
	}
	if upd.Address != nil {
		c.Address = *upd.Address
	}
	if upd.TenantID != nil {
		if *upd.TenantID == 0 {
			c.TenantID = nil
		} else if err := s.checkUser(upd.TenantID); err != nil {
			return property.Consortium{}, err
		} else {
			v := *upd.TenantID
			c.TenantID = &v
		}
	}
	if upd.ResponsibleID != nil {
		if *upd.ResponsibleID == 0 {
			c.ResponsibleID = nil
		} else if err := s.checkUser(upd.ResponsibleID); err != nil {
			return property.Consortium{}, err
		} else {
			v := *upd.ResponsibleID
			c.ResponsibleID = &v
		}
	}
	c.UpdatedAt = s.now()
	s.consortiums[id] = c
	return c, nil
}

func (s *Store) SetConsortiumState(_ context.Context, id int64, state property.ConsortiumState) (property.Consortium, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.consortiums[id]
	if !ok {
		return property.Consortium{}, auth.ErrNotFound
	}
	c.State = state
	c.UpdatedAt = s.now()
	s.consortiums[id] = c
	return c, nil
}

// DeleteConsortium refuses while units still reference the consortium.
func (s *Store) DeleteConsortium(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.consortiums[id]; !ok {
		return auth.ErrNotFound
	}
	for _, u := range s.units {
		if u.ConsortiumID == id {
			return auth.ErrConflict
		}
	}
	delete(s.consortiums, id)
	for aid, a := range s.assignments {
		if a.ConsortiumID != nil && *a.ConsortiumID == id {
			delete(s.assignments, aid)
		}
	}
	return nil
}

func (s *Store) ListUnits(_ context.Context, f authz.Filter, opts property.ListOptions) ([]property.Unit, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []property.Unit
	for _, id := range sortedKeys(s.units) {
		u := s.units[id]
		parent, ok := s.consortiums[u.ConsortiumID]
		if !ok || !f.MatchUnit(u.Access(), parent.Access()) {
			continue
		}
		if opts.ConsortiumID > 0 && u.ConsortiumID != opts.ConsortiumID {
			continue
		}
		if opts.State != "" && string(u.State) != opts.State {
			continue
		}
		matched = append(matched, u)
	}
	return page(matched, opts), len(matched), nil
}

func (s *Store) GetUnit(_ context.Context, id int64) (property.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.units[id]
	if !ok {
		return property.Unit{}, auth.ErrNotFound
	}
	return u, nil
}

func (s *Store) codeTaken(consortiumID int64, code string, except int64) bool {
	for _, u := range s.units {
		if u.ID != except && u.ConsortiumID == consortiumID && strings.EqualFold(u.Code, code) {
			return true
		}
	}
	return false
}

func (s *Store) CreateUnit(_ context.Context, in property.UnitInput) (property.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.consortiums[in.ConsortiumID]; !ok {
		return property.Unit{}, auth.ErrNotFound
	}
	if s.codeTaken(in.ConsortiumID, in.Code, 0) {
		return property.Unit{}, auth.ErrConflict
	}
	now := s.now()
	u := property.Unit{
		ID:           s.id(),
		ConsortiumID: in.ConsortiumID,
		Code:         in.Code,
		Floor:        in.Floor,
		Area:         in.Area,
		Share:        in.Share,
		State:        in.State,
		Description:  in.Description,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.units[u.ID] = u
	return u, nil
}

func (s *Store) UpdateUnit(_ context.Context, id int64, upd property.UnitUpdate) (property.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[id]
	if !ok {
		return property.Unit{}, auth.ErrNotFound
	}
	if upd.Code != nil {
		if s.codeTaken(u.ConsortiumID, *upd.Code, id) {
			return property.Unit{}, auth.ErrConflict
		}
		u.Code = *upd.Code
	}
	if upd.Floor != nil {
		u.Floor = *upd.Floor
	}
	if upd.Area != nil {
		u.Area = upd.Area
	}
	if upd.Share != nil {
		u.Share = upd.Share
	}
	if upd.State != nil {
		u.State = *upd.State
	}
	if upd.Description != nil {
		u.Description = *upd.Description
	}
	u.UpdatedAt = s.now()
	s.units[id] = u
	return u, nil
}

func (s *Store) DeleteUnit(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.units[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.units, id)
	for aid, a := range s.assignments {
		if a.UnitID != nil && *a.UnitID == id {
			delete(s.assignments, aid)
		}
	}
	return nil
}

func (s *Store) CreateAssignment(_ context.Context, in property.AssignmentInput) (authz.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[in.UserID]; !ok {
		return authz.Assignment{}, auth.ErrNotFound
	}
	roleID, ok := s.roleIDs[in.Role]
	if !ok {
		return authz.Assignment{}, auth.ErrInvalidInput
	}
	if in.ConsortiumID != nil {
		if _, ok := s.consortiums[*in.ConsortiumID]; !ok {
			return authz.Assignment{}, auth.ErrNotFound
		}
	}
	if in.UnitID != nil {
		if _, ok := s.units[*in.UnitID]; !ok {
			return authz.Assignment{}, auth.ErrNotFound
		}
	}
	a := authz.Assignment{
		ID:           s.id(),
		UserID:       in.UserID,
		RoleID:       roleID,
		Role:         in.Role,
		ConsortiumID: copyID(in.ConsortiumID),
		UnitID:       copyID(in.UnitID),
		Active:       true,
		CreatedAt:    s.now(),
	}
	s.assignments[a.ID] = a
	return a, nil
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func (s *Store) ListAssignments(_ context.Context, userID int64, includeInactive bool) ([]authz.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []authz.Assignment
	for _, id := range sortedKeys(s.assignments) {
		a := s.assignments[id]
		if a.UserID == userID && (a.Active || includeInactive) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) GetAssignment(_ context.Context, id int64) (authz.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assignments[id]
	if !ok {
		return authz.Assignment{}, auth.ErrNotFound
	}
	return a, nil
}

func (s *Store) DeactivateAssignment(_ context.Context, id int64) (authz.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[id]
	if !ok {
		return authz.Assignment{}, auth.ErrNotFound
	}
	a.Active = false
	s.assignments[id] = a
	return a, nil
}

func (s *Store) DeleteAssignment(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assignments[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.assignments, id)
	return nil
}
