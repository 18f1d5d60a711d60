package authz

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"consorcia.org/internal/obs"
)

var tracer = otel.Tracer("consorcia.org/internal/authz")

// IDSet is a set of row ids. The nil set is empty.
type IDSet map[int64]struct{}

// NewIDSet builds a set from ids.
func NewIDSet(ids ...int64) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Len() int { return len(s) }

// Sorted returns the members in ascending order; never nil.
func (s IDSet) Sorted() []int64 {
	out := make([]int64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s IDSet) clone() IDSet {
	out := make(IDSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Scope is the set of consortium and unit ids a user may read.
//
// ConsortiumIDs holds every consortium reachable from an active assignment,
// including the parents of assigned units. GrantedConsortiumIDs is the subset
// granted by assignments that name a consortium but no unit; only those
// expand to every unit of the consortium when listing or reading units.
type Scope struct {
	ConsortiumIDs        IDSet
	UnitIDs              IDSet
	GrantedConsortiumIDs IDSet
}

// Empty reports whether the scope grants nothing.
func (s Scope) Empty() bool {
	return s.ConsortiumIDs.Len() == 0 && s.UnitIDs.Len() == 0
}

// CoversConsortium reports read access to a consortium.
func (s Scope) CoversConsortium(id int64) bool {
	return s.ConsortiumIDs.Has(id)
}

// CoversUnit reports read access to a unit: assigned directly, or through a
// consortium-level grant on its parent.
func (s Scope) CoversUnit(u Unit) bool {
	return s.UnitIDs.Has(u.ID) || s.GrantedConsortiumIDs.Has(u.ConsortiumID)
}

func (s Scope) clone() Scope {
	return Scope{
		ConsortiumIDs:        s.ConsortiumIDs.clone(),
		UnitIDs:              s.UnitIDs.clone(),
		GrantedConsortiumIDs: s.GrantedConsortiumIDs.clone(),
	}
}

// Resolver computes scopes from active assignments.
type Resolver struct {
	store Store
}

// NewResolver returns a resolver reading from store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the user's scope. A storage failure yields an error wrapping
// ErrUnavailable and no partial scope.
func (r *Resolver) Resolve(ctx context.Context, userID int64) (scope Scope, err error) {
	if memo := memoFromContext(ctx); memo != nil {
		if cached, ok := memo.get(userID); ok {
			return cached, nil
		}
	}

	ctx, span := tracer.Start(ctx, "authz.ResolveScope", trace.WithAttributes(attribute.Int64("user.id", userID)))
	start := time.Now()
	defer func() {
		obs.ObserveScopeResolve(time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "resolve scope")
		}
		span.End()
	}()

	assignments, err := r.store.ActiveAssignments(ctx, userID)
	if err != nil {
		return Scope{}, unavailable("load assignments", err)
	}

	scope = Scope{
		ConsortiumIDs:        IDSet{},
		UnitIDs:              IDSet{},
		GrantedConsortiumIDs: IDSet{},
	}
	var unitIDs []int64
	for _, a := range assignments {
		if !a.Active {
			continue
		}
		if a.ConsortiumID != nil {
			scope.ConsortiumIDs[*a.ConsortiumID] = struct{}{}
			if a.UnitID == nil {
				scope.GrantedConsortiumIDs[*a.ConsortiumID] = struct{}{}
			}
		}
		if a.UnitID != nil && !scope.UnitIDs.Has(*a.UnitID) {
			scope.UnitIDs[*a.UnitID] = struct{}{}
			unitIDs = append(unitIDs, *a.UnitID)
		}
	}

	if len(unitIDs) > 0 {
		parents, err := r.store.UnitConsortiums(ctx, unitIDs)
		if err != nil {
			return Scope{}, unavailable("load unit consortiums", err)
		}
		for _, consortiumID := range parents {
			scope.ConsortiumIDs[consortiumID] = struct{}{}
		}
	}

	span.SetAttributes(
		attribute.Int("scope.consortiums", scope.ConsortiumIDs.Len()),
		attribute.Int("scope.units", scope.UnitIDs.Len()),
	)
	if memo := memoFromContext(ctx); memo != nil {
		memo.put(userID, scope)
	}
	return scope, nil
}

type memoKey struct{}

type scopeMemo struct {
	mu     sync.Mutex
	scopes map[int64]Scope
}

func (m *scopeMemo) get(userID int64) (Scope, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scopes[userID]
	if !ok {
		return Scope{}, false
	}
	return s.clone(), true
}

func (m *scopeMemo) put(userID int64, s Scope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scopes[userID] = s.clone()
}

// WithRequestCache returns a context under which Resolve remembers scopes for
// the lifetime of that context. Install it once per request; never share it
// across requests, since assignments may change between them.
func WithRequestCache(ctx context.Context) context.Context {
	if memoFromContext(ctx) != nil {
		return ctx
	}
	return context.WithValue(ctx, memoKey{}, &scopeMemo{scopes: map[int64]Scope{}})
}

func memoFromContext(ctx context.Context) *scopeMemo {
	m, _ := ctx.Value(memoKey{}).(*scopeMemo)
	return m
}
