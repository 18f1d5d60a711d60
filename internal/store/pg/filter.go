package pg

import (
	"fmt"
	"strings"

	"consorcia.org/internal/authz"
	"consorcia.org/internal/property"
)

// where accumulates predicates and numbered placeholders.
type where struct {
	clauses []string
	args    []any
}

func (w *where) arg(v any) string {
	w.args = append(w.args, v)
	return fmt.Sprintf("$%d", len(w.args))
}

func (w *where) add(clause string) {
	w.clauses = append(w.clauses, clause)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " where " + strings.Join(w.clauses, " and ")
}

// consortiumFilter narrows rows aliased "c".
func (w *where) consortiumFilter(f authz.Filter) {
	switch f.Kind {
	case authz.FilterNone:
	case authz.FilterTenant:
		w.add("c.tenant_id = " + w.arg(f.Value))
	case authz.FilterResponsible:
		w.add("c.responsible_id = " + w.arg(f.Value))
	case authz.FilterIDs:
		w.add("c.id = any(" + w.arg(int64s(f.IDs)) + ")")
	default:
		w.add("false")
	}
}

// unitFilter narrows rows aliased "u" joined to their consortium "c".
func (w *where) unitFilter(f authz.Filter) {
	switch f.Kind {
	case authz.FilterNone:
	case authz.FilterTenant:
		w.add("c.tenant_id = " + w.arg(f.Value))
	case authz.FilterResponsible:
		w.add("c.responsible_id = " + w.arg(f.Value))
	case authz.FilterIDs:
		ids := w.arg(int64s(f.IDs))
		parents := w.arg(int64s(f.ConsortiumIDs))
		w.add("(u.id = any(" + ids + ") or u.consortium_id = any(" + parents + "))")
	default:
		w.add("false")
	}
}

func (w *where) page(opts property.ListOptions) string {
	return fmt.Sprintf(" limit %s offset %s", w.arg(opts.Limit), w.arg(opts.Offset))
}
