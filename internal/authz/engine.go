package authz

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"consorcia.org/internal/auth"
	"consorcia.org/internal/obs"
)

// tier groups roles by how the engine treats them.
type tier int

const (
	tierUnknown tier = iota
	tierGlobal
	tierTenant
	tierConsortium
	tierScoped
	tierNone
)

// tierOf is the only place roles are matched. Every member of auth.AllRoles
// must have a case here; anything else falls to tierUnknown and is denied.
func tierOf(r auth.Role) tier {
	switch r {
	case auth.RoleGlobalAdmin:
		return tierGlobal
	case auth.RoleTenantAdmin:
		return tierTenant
	case auth.RoleConsortiumAdmin:
		return tierConsortium
	case auth.RoleBuildingAdmin, auth.RoleOwner, auth.RoleRenter:
		return tierScoped
	case auth.RoleProvider, auth.RolePending:
		return tierNone
	}
	return tierUnknown
}

// Engine answers single-resource access questions.
type Engine struct {
	store    Store
	resolver *Resolver
}

// NewEngine builds an engine. A nil resolver gets one over the same store.
func NewEngine(store Store, resolver *Resolver) *Engine {
	if resolver == nil {
		resolver = NewResolver(store)
	}
	return &Engine{store: store, resolver: resolver}
}

// target is a loaded resource with its owning consortium.
type target struct {
	consortium Consortium
	unit       *Unit
}

// CanAccess decides whether id may perform action on the resource. Rules are
// evaluated in order and the first match wins:
//
//  1. global admin: allow
//  2. delete by anyone but a tenant admin: forbidden
//  3. resource (or a unit's consortium) missing: not found
//  4. tenant admin: allow iff the consortium's tenant is the caller
//  5. consortium admin: allow iff the consortium's responsible is the caller
//  6. building admin, owner, renter: allow reads of resources in scope
//  7. everything else: forbidden
//
// The error is non-nil only when permission data could not be read.
func (e *Engine) CanAccess(ctx context.Context, id auth.Identity, kind ResourceKind, resourceID int64, action Action) (d Decision, err error) {
	ctx, span := tracer.Start(ctx, "authz.CanAccess", trace.WithAttributes(
		attribute.Int64("user.id", id.UserID),
		attribute.String("user.role", string(id.Role)),
		attribute.String("resource.kind", string(kind)),
		attribute.Int64("resource.id", resourceID),
		attribute.String("action", string(action)),
	))
	defer func() {
		outcome := d.outcome()
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, "access check")
		}
		span.SetAttributes(attribute.String("decision", outcome))
		obs.ObserveDecision(string(kind), string(action), outcome)
		span.End()
	}()

	if !id.Authenticated() {
		return Deny(ReasonUnauthenticated), nil
	}
	if kind != KindConsortium && kind != KindUnit {
		return Decision{}, fmt.Errorf("%w: unknown resource kind %q", auth.ErrInvalidInput, kind)
	}

	t := tierOf(id.Role)
	if t == tierGlobal {
		return Allow(), nil
	}
	if action == ActionDelete && t != tierTenant {
		return Deny(ReasonForbidden), nil
	}

	res, err := e.load(ctx, kind, resourceID)
	if errors.Is(err, auth.ErrNotFound) {
		return Deny(ReasonNotFound), nil
	}
	if err != nil {
		return Decision{}, err
	}

	switch t {
	case tierTenant:
		if res.consortium.tenantIs(id.UserID) {
			return Allow(), nil
		}
	case tierConsortium:
		if res.consortium.responsibleIs(id.UserID) {
			return Allow(), nil
		}
	case tierScoped:
		if action != ActionRead {
			return Deny(ReasonForbidden), nil
		}
		scope, err := e.resolver.Resolve(ctx, id.UserID)
		if err != nil {
			return Decision{}, err
		}
		if res.unit != nil && scope.CoversUnit(*res.unit) {
			return Allow(), nil
		}
		if res.unit == nil && scope.CoversConsortium(res.consortium.ID) {
			return Allow(), nil
		}
	case tierNone, tierUnknown:
	}
	return Deny(ReasonForbidden), nil
}

func (e *Engine) load(ctx context.Context, kind ResourceKind, resourceID int64) (target, error) {
	if resourceID <= 0 {
		return target{}, auth.ErrNotFound
	}
	var (
		res          target
		consortiumID = resourceID
	)
	if kind == KindUnit {
		u, err := e.store.UnitByID(ctx, resourceID)
		if err != nil {
			return target{}, storeErr("load unit", err)
		}
		res.unit = &u
		consortiumID = u.ConsortiumID
	}
	c, err := e.store.ConsortiumByID(ctx, consortiumID)
	if err != nil {
		return target{}, storeErr("load consortium", err)
	}
	res.consortium = c
	return res, nil
}

func storeErr(op string, err error) error {
	if errors.Is(err, auth.ErrNotFound) {
		return auth.ErrNotFound
	}
	return unavailable(op, err)
}
