package authz

import (
	"context"
	"sync"

	"consorcia.org/internal/auth"
)

func ptr(v int64) *int64 { return &v }

type fakeStore struct {
	mu          sync.Mutex
	assignments map[int64][]Assignment
	consortiums map[int64]Consortium
	units       map[int64]Unit

	assignmentsErr error
	unitsErr       error
	lookupErr      error

	assignmentCalls int
	lookupCalls     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		assignments: map[int64][]Assignment{},
		consortiums: map[int64]Consortium{},
		units:       map[int64]Unit{},
	}
}

func (f *fakeStore) addConsortium(id int64, tenant, responsible *int64) {
	f.consortiums[id] = Consortium{ID: id, TenantID: tenant, ResponsibleID: responsible}
}

func (f *fakeStore) addUnit(id, consortiumID int64) {
	f.units[id] = Unit{ID: id, ConsortiumID: consortiumID}
}

func (f *fakeStore) assign(userID int64, consortiumID, unitID *int64) {
	list := f.assignments[userID]
	list = append(list, Assignment{
		ID:           int64(len(list) + 1),
		UserID:       userID,
		RoleID:       1,
		ConsortiumID: consortiumID,
		UnitID:       unitID,
		Active:       true,
	})
	f.assignments[userID] = list
}

func (f *fakeStore) ActiveAssignments(_ context.Context, userID int64) ([]Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assignmentCalls++
	if f.assignmentsErr != nil {
		return nil, f.assignmentsErr
	}
	return append([]Assignment(nil), f.assignments[userID]...), nil
}

func (f *fakeStore) UnitConsortiums(_ context.Context, unitIDs []int64) (map[int64]int64, error) {
	if f.unitsErr != nil {
		return nil, f.unitsErr
	}
	out := map[int64]int64{}
	for _, id := range unitIDs {
		if u, ok := f.units[id]; ok {
			out[id] = u.ConsortiumID
		}
	}
	return out, nil
}

func (f *fakeStore) ConsortiumByID(_ context.Context, id int64) (Consortium, error) {
	f.lookupCalls++
	if f.lookupErr != nil {
		return Consortium{}, f.lookupErr
	}
	c, ok := f.consortiums[id]
	if !ok {
		return Consortium{}, auth.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) UnitByID(_ context.Context, id int64) (Unit, error) {
	f.lookupCalls++
	if f.lookupErr != nil {
		return Unit{}, f.lookupErr
	}
	u, ok := f.units[id]
	if !ok {
		return Unit{}, auth.ErrNotFound
	}
	return u, nil
}
