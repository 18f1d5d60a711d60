// Package memory keeps every relation in process. It backs development runs
// without a database and the HTTP tests, and mirrors the constraints of the
// PostgreSQL schema.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"consorcia.org/internal/auth"
	"consorcia.org/internal/authz"
	"consorcia.org/internal/property"
)

var (
	_ authz.Store        = (*Store)(nil)
	_ authz.MatrixSource = (*Store)(nil)
	_ property.Store     = (*Store)(nil)
	_ auth.UserDirectory = (*Store)(nil)
)

// Store is a mutex-guarded set of maps.
type Store struct {
	mu          sync.RWMutex
	nextID      int64
	now         func() time.Time
	consortiums map[int64]property.Consortium
	units       map[int64]property.Unit
	assignments map[int64]authz.Assignment
	users       map[int64]auth.User
	roleIDs     map[auth.Role]int64
	matrix      authz.Matrix
}

// New returns an empty store seeded with the roles and the default module matrix.
func New() *Store {
	s := &Store{
		now:         func() time.Time { return time.Now().UTC() },
		consortiums: map[int64]property.Consortium{},
		units:       map[int64]property.Unit{},
		assignments: map[int64]authz.Assignment{},
		users:       map[int64]auth.User{},
		roleIDs:     map[auth.Role]int64{},
		matrix:      authz.DefaultMatrix(),
	}
	for i, r := range auth.AllRoles {
		s.roleIDs[r] = int64(i + 1)
	}
	return s
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// AddUser inserts a user, assigning an id when none is set.
func (s *Store) AddUser(u auth.User) auth.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.id()
	} else if u.ID > s.nextID {
		s.nextID = u.ID
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	s.users[u.ID] = u
	return u
}

func (s *Store) UserByEmail(_ context.Context, email string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return auth.User{}, auth.ErrNotFound
}

func (s *Store) UserByID(_ context.Context, id int64) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	return u, nil
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func page[T any](items []T, opts property.ListOptions) []T {
	if opts.Offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if opts.Limit > 0 && opts.Offset+opts.Limit < end {
		end = opts.Offset + opts.Limit
	}
	return items[opts.Offset:end]
}
