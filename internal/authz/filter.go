package authz

import (
	"context"
	"fmt"

	"consorcia.org/internal/auth"
)

// FilterKind selects how a list query is narrowed.
type FilterKind int

const (
	// FilterImpossible matches no rows. It is the zero value.
	FilterImpossible FilterKind = iota
	// FilterNone leaves the query unconstrained.
	FilterNone
	// FilterTenant keeps consortiums whose tenant_id equals Value.
	FilterTenant
	// FilterResponsible keeps consortiums whose responsible_id equals Value.
	FilterResponsible
	// FilterIDs keeps rows whose id is in IDs. For units it also keeps rows
	// whose consortium_id is in ConsortiumIDs.
	FilterIDs
)

func (k FilterKind) String() string {
	switch k {
	case FilterNone:
		return "none"
	case FilterTenant:
		return "tenant"
	case FilterResponsible:
		return "responsible"
	case FilterIDs:
		return "ids"
	default:
		return "impossible"
	}
}

// Filter is a declarative narrowing of a list query. The query layer applies it;
// nothing here touches the request.
type Filter struct {
	Kind          FilterKind `json:"kind"`
	Value         int64      `json:"value,omitempty"`
	IDs           []int64    `json:"ids,omitempty"`
	ConsortiumIDs []int64    `json:"consortium_ids,omitempty"`
}

// NoFilter grants every row.
func NoFilter() Filter { return Filter{Kind: FilterNone} }

// Impossible grants no row.
func Impossible() Filter { return Filter{Kind: FilterImpossible} }

// Field names the column the filter constrains on the listed relation.
func (f Filter) Field() string {
	switch f.Kind {
	case FilterTenant:
		return "tenant_id"
	case FilterResponsible:
		return "responsible_id"
	case FilterIDs, FilterImpossible:
		return "id"
	}
	return ""
}

func (f Filter) String() string {
	switch f.Kind {
	case FilterTenant, FilterResponsible:
		return fmt.Sprintf("%s=%d", f.Field(), f.Value)
	case FilterIDs:
		return fmt.Sprintf("id in %v or consortium_id in %v", f.IDs, f.ConsortiumIDs)
	}
	return f.Kind.String()
}

// MatchConsortium evaluates the filter against a consortium row.
func (f Filter) MatchConsortium(c Consortium) bool {
	switch f.Kind {
	case FilterNone:
		return true
	case FilterTenant:
		return c.tenantIs(f.Value)
	case FilterResponsible:
		return c.responsibleIs(f.Value)
	case FilterIDs:
		return contains(f.IDs, c.ID)
	}
	return false
}

// MatchUnit evaluates the filter against a unit row and its parent consortium.
func (f Filter) MatchUnit(u Unit, parent Consortium) bool {
	switch f.Kind {
	case FilterNone:
		return true
	case FilterTenant:
		return parent.tenantIs(f.Value)
	case FilterResponsible:
		return parent.responsibleIs(f.Value)
	case FilterIDs:
		return contains(f.IDs, u.ID) || contains(f.ConsortiumIDs, u.ConsortiumID)
	}
	return false
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// FilterBuilder turns a caller into a list Filter.
type FilterBuilder struct {
	resolver *Resolver
}

// NewFilterBuilder returns a builder backed by resolver.
func NewFilterBuilder(resolver *Resolver) *FilterBuilder {
	return &FilterBuilder{resolver: resolver}
}

// Build returns the filter for listing kind as id. Scoped roles get id
// membership; unit listings additionally carry the consortium-level grants so
// the query layer can include every unit of those consortiums. An empty scope,
// and any role without list access, yields Impossible.
func (b *FilterBuilder) Build(ctx context.Context, id auth.Identity, kind ResourceKind) (Filter, error) {
	if kind != KindConsortium && kind != KindUnit {
		return Filter{}, fmt.Errorf("%w: unknown resource kind %q", auth.ErrInvalidInput, kind)
	}
	if !id.Authenticated() {
		return Impossible(), nil
	}

	switch tierOf(id.Role) {
	case tierGlobal:
		return NoFilter(), nil
	case tierTenant:
		return Filter{Kind: FilterTenant, Value: id.UserID}, nil
	case tierConsortium:
		return Filter{Kind: FilterResponsible, Value: id.UserID}, nil
	case tierScoped:
		scope, err := b.resolver.Resolve(ctx, id.UserID)
		if err != nil {
			return Filter{}, err
		}
		return scopeFilter(scope, kind), nil
	case tierNone, tierUnknown:
	}
	return Impossible(), nil
}

func scopeFilter(scope Scope, kind ResourceKind) Filter {
	if kind == KindConsortium {
		if scope.ConsortiumIDs.Len() == 0 {
			return Impossible()
		}
		return Filter{Kind: FilterIDs, IDs: scope.ConsortiumIDs.Sorted()}
	}
	if scope.UnitIDs.Len() == 0 && scope.GrantedConsortiumIDs.Len() == 0 {
		return Impossible()
	}
	return Filter{
		Kind:          FilterIDs,
		IDs:           scope.UnitIDs.Sorted(),
		ConsortiumIDs: scope.GrantedConsortiumIDs.Sorted(),
	}
}

// MarshalText renders the kind by name.
func (k FilterKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (k *FilterKind) UnmarshalText(b []byte) error {
	for _, known := range []FilterKind{FilterImpossible, FilterNone, FilterTenant, FilterResponsible, FilterIDs} {
		if known.String() == string(b) {
			*k = known
			return nil
		}
	}
	return fmt.Errorf("%w: unknown filter kind %q", auth.ErrInvalidInput, b)
}
