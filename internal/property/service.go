package property

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"consorcia.org/internal/auth"
	"consorcia.org/internal/authz"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Service validates input before it reaches the store. Access control is the
// caller's job: list methods take the filter built for the caller.
type Service struct {
	store Store
}

// NewService constructs the service.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("property: store is required")
	}
	return &Service{store: store}, nil
}

func normalizeList(opts ListOptions) ListOptions {
	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}
	if opts.Limit > maxLimit {
		opts.Limit = maxLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	opts.State = strings.TrimSpace(opts.State)
	return opts
}

func checkLength(field, value string, max int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%w: %s is required", auth.ErrInvalidInput, field)
	}
	if utf8.RuneCountInString(value) > max {
		return fmt.Errorf("%w: %s must be at most %d characters", auth.ErrInvalidInput, field, max)
	}
	return nil
}

func checkOptionalID(field string, id *int64) error {
	if id != nil && *id < 0 {
		return fmt.Errorf("%w: %s must be positive", auth.ErrInvalidInput, field)
	}
	return nil
}

func requireID(field string, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: %s is required", auth.ErrInvalidInput, field)
	}
	return nil
}

// nullIfZero turns an explicit 0 into "no link".
func nullIfZero(id *int64) *int64 {
	if id != nil && *id == 0 {
		return nil
	}
	return id
}

// ListConsortiums returns the page of consortiums visible through f.
func (s *Service) ListConsortiums(ctx context.Context, f authz.Filter, opts ListOptions) (Page[Consortium], error) {
	opts = normalizeList(opts)
	if opts.State != "" && !ConsortiumState(opts.State).valid() {
		return Page[Consortium]{}, fmt.Errorf("%w: unknown state %q", auth.ErrInvalidInput, opts.State)
	}
	items, total, err := s.store.ListConsortiums(ctx, f, opts)
	if err != nil {
		return Page[Consortium]{}, err
	}
	if items == nil {
		items = []Consortium{}
	}
	return Page[Consortium]{Items: items, Total: total, Limit: opts.Limit, Offset: opts.Offset}, nil
}

func (s *Service) GetConsortium(ctx context.Context, id int64) (Consortium, error) {
	if err := requireID("consortium_id", id); err != nil {
		return Consortium{}, err
	}
	return s.store.GetConsortium(ctx, id)
}

func (s *Service) CreateConsortium(ctx context.Context, in ConsortiumInput) (Consortium, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Address = strings.TrimSpace(in.Address)
	if err := checkLength("name", in.Name, 100, true); err != nil {
		return Consortium{}, err
	}
	if err := checkLength("address", in.Address, 200, false); err != nil {
		return Consortium{}, err
	}
	if err := checkOptionalID("tenant_id", in.TenantID); err != nil {
		return Consortium{}, err
	}
	if err := checkOptionalID("responsible_id", in.ResponsibleID); err != nil {
		return Consortium{}, err
	}
	in.TenantID = nullIfZero(in.TenantID)
	in.ResponsibleID = nullIfZero(in.ResponsibleID)
	return s.store.CreateConsortium(ctx, in)
}

func (s *Service) UpdateConsortium(ctx context.Context, id int64, upd ConsortiumUpdate) (Consortium, error) {
	if err := requireID("consortium_id", id); err != nil {
		return Consortium{}, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if err := checkLength("name", name, 100, true); err != nil {
			return Consortium{}, err
		}
		upd.Name = &name
	}
	if upd.Address != nil {
		addr := strings.TrimSpace(*upd.Address)
		if err := checkLength("address", addr, 200, false); err != nil {
			return Consortium{}, err
		}
		upd.Address = &addr
	}
	if err := checkOptionalID("tenant_id", upd.TenantID); err != nil {
		return Consortium{}, err
	}
	if err := checkOptionalID("responsible_id", upd.ResponsibleID); err != nil {
		return Consortium{}, err
	}
	if upd.Name == nil && upd.Address == nil && upd.TenantID == nil && upd.ResponsibleID == nil {
		return Consortium{}, fmt.Errorf("%w: no fields to update", auth.ErrInvalidInput)
	}
	return s.store.UpdateConsortium(ctx, id, upd)
}

// SetConsortiumState activates or deactivates a consortium.
func (s *Service) SetConsortiumState(ctx context.Context, id int64, state ConsortiumState) (Consortium, error) {
	if err := requireID("consortium_id", id); err != nil {
		return Consortium{}, err
	}
	if !state.valid() {
		return Consortium{}, fmt.Errorf("%w: unknown state %q", auth.ErrInvalidInput, state)
	}
	return s.store.SetConsortiumState(ctx, id, state)
}

func (s *Service) DeleteConsortium(ctx context.Context, id int64) error {
	if err := requireID("consortium_id", id); err != nil {
		return err
	}
	return s.store.DeleteConsortium(ctx, id)
}

// ListUnits returns the page of units visible through f.
func (s *Service) ListUnits(ctx context.Context, f authz.Filter, opts ListOptions) (Page[Unit], error) {
	opts = normalizeList(opts)
	if opts.State != "" && !UnitState(opts.State).valid() {
		return Page[Unit]{}, fmt.Errorf("%w: unknown state %q", auth.ErrInvalidInput, opts.State)
	}
	if opts.ConsortiumID < 0 {
		return Page[Unit]{}, fmt.Errorf("%w: consortium_id must be positive", auth.ErrInvalidInput)
	}
	items, total, err := s.store.ListUnits(ctx, f, opts)
	if err != nil {
		return Page[Unit]{}, err
	}
	if items == nil {
		items = []Unit{}
	}
	return Page[Unit]{Items: items, Total: total, Limit: opts.Limit, Offset: opts.Offset}, nil
}

func (s *Service) GetUnit(ctx context.Context, id int64) (Unit, error) {
	if err := requireID("unit_id", id); err != nil {
		return Unit{}, err
	}
	return s.store.GetUnit(ctx, id)
}

func validateUnitNumbers(area, share *float64) error {
	if area != nil && *area < 0 {
		return fmt.Errorf("%w: area must not be negative", auth.ErrInvalidInput)
	}
	if share != nil && (*share < 0 || *share > 100) {
		return fmt.Errorf("%w: share must be between 0 and 100", auth.ErrInvalidInput)
	}
	return nil
}

func (s *Service) CreateUnit(ctx context.Context, in UnitInput) (Unit, error) {
	if err := requireID("consortium_id", in.ConsortiumID); err != nil {
		return Unit{}, err
	}
	in.Code = strings.TrimSpace(in.Code)
	in.Floor = strings.TrimSpace(in.Floor)
	in.Description = strings.TrimSpace(in.Description)
	if err := checkLength("code", in.Code, 50, true); err != nil {
		return Unit{}, err
	}
	if err := checkLength("floor", in.Floor, 10, true); err != nil {
		return Unit{}, err
	}
	if err := validateUnitNumbers(in.Area, in.Share); err != nil {
		return Unit{}, err
	}
	if in.State == "" {
		in.State = UnitVacant
	}
	if !in.State.valid() {
		return Unit{}, fmt.Errorf("%w: unknown state %q", auth.ErrInvalidInput, in.State)
	}
	return s.store.CreateUnit(ctx, in)
}

func (s *Service) UpdateUnit(ctx context.Context, id int64, upd UnitUpdate) (Unit, error) {
	if err := requireID("unit_id", id); err != nil {
		return Unit{}, err
	}
	if upd.Code != nil {
		code := strings.TrimSpace(*upd.Code)
		if err := checkLength("code", code, 50, true); err != nil {
			return Unit{}, err
		}
		upd.Code = &code
	}
	if upd.Floor != nil {
		floor := strings.TrimSpace(*upd.Floor)
		if err := checkLength("floor", floor, 10, true); err != nil {
			return Unit{}, err
		}
		upd.Floor = &floor
	}
	if err := validateUnitNumbers(upd.Area, upd.Share); err != nil {
		return Unit{}, err
	}
	if upd.State != nil && !upd.State.valid() {
		return Unit{}, fmt.Errorf("%w: unknown state %q", auth.ErrInvalidInput, *upd.State)
	}
	if upd.Code == nil && upd.Floor == nil && upd.Area == nil && upd.Share == nil && upd.State == nil && upd.Description == nil {
		return Unit{}, fmt.Errorf("%w: no fields to update", auth.ErrInvalidInput)
	}
	return s.store.UpdateUnit(ctx, id, upd)
}

func (s *Service) DeleteUnit(ctx context.Context, id int64) error {
	if err := requireID("unit_id", id); err != nil {
		return err
	}
	return s.store.DeleteUnit(ctx, id)
}
