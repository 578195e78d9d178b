package store

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"fleetbook/internal/allocation/models"
	id "fleetbook/pkg/domain"
	"fleetbook/pkg/platform/sentinel"
)

type employeeDay struct {
	employee id.EmployeeID
	date     id.Date
}

type vehicleDay struct {
	vehicle id.VehicleID
	date    id.Date
}

// InMemory is a record store for tests and single-node runs. The
// (employee, date) and (vehicle, date) indexes reject double-booking at write
// time regardless of what callers checked beforehand.
type InMemory struct {
	mu          sync.RWMutex
	employees   map[id.EmployeeID]models.Employee
	vehicles    map[id.VehicleID]models.Vehicle
	allocations map[id.AllocationID]models.Allocation
	byEmployee  map[employeeDay]id.AllocationID
	byVehicle   map[vehicleDay]id.AllocationID
}

func NewInMemory() *InMemory {
	return &InMemory{
		employees:   make(map[id.EmployeeID]models.Employee),
		vehicles:    make(map[id.VehicleID]models.Vehicle),
		allocations: make(map[id.AllocationID]models.Allocation),
		byEmployee:  make(map[employeeDay]id.AllocationID),
		byVehicle:   make(map[vehicleDay]id.AllocationID),
	}
}

// PutEmployee upserts master data.
func (s *InMemory) PutEmployee(_ context.Context, e models.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employees[e.EmployeeID] = e
	return nil
}

// PutVehicle upserts master data.
func (s *InMemory) PutVehicle(_ context.Context, v models.Vehicle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vehicles[v.VehicleID] = v
	return nil
}

func (s *InMemory) FindEmployee(_ context.Context, employeeID id.EmployeeID) (*models.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.employees[employeeID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &e, nil
}

func (s *InMemory) FindVehicle(_ context.Context, vehicleID id.VehicleID) (*models.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vehicles[vehicleID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &v, nil
}

func (s *InMemory) ListEmployees(_ context.Context) ([]*models.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Employee, 0, len(s.employees))
	for _, e := range s.employees {
		out = append(out, &e)
	}
	slices.SortFunc(out, func(a, b *models.Employee) int { return cmp.Compare(a.EmployeeID, b.EmployeeID) })
	return out, nil
}

func (s *InMemory) ListVehicles(_ context.Context) ([]*models.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Vehicle, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		out = append(out, &v)
	}
	slices.SortFunc(out, func(a, b *models.Vehicle) int { return cmp.Compare(a.VehicleID, b.VehicleID) })
	return out, nil
}

func (s *InMemory) FindAllocation(_ context.Context, allocationID id.AllocationID) (*models.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.allocations[allocationID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &a, nil
}

// FindAllocations returns matches ordered by date, then employee.
func (s *InMemory) FindAllocations(_ context.Context, filter models.AllocationFilter) ([]*models.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// point lookups through the uniqueness indexes
	if filter.Date != nil && (filter.EmployeeID != nil || filter.VehicleID != nil) {
		var allocID id.AllocationID
		var ok bool
		if filter.EmployeeID != nil {
			allocID, ok = s.byEmployee[employeeDay{*filter.EmployeeID, *filter.Date}]
		} else {
			allocID, ok = s.byVehicle[vehicleDay{*filter.VehicleID, *filter.Date}]
		}
		if !ok {
			return nil, nil
		}
		a := s.allocations[allocID]
		if !filter.Matches(&a) {
			return nil, nil
		}
		return []*models.Allocation{&a}, nil
	}

	var out []*models.Allocation
	for _, a := range s.allocations {
		if filter.Matches(&a) {
			out = append(out, &a)
		}
	}
	slices.SortFunc(out, compareAllocations)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// InsertAllocation stores a, assigning an id when a has none.
func (s *InMemory) InsertAllocation(_ context.Context, a *models.Allocation) (*models.Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := *a
	if record.ID.IsNil() {
		record.ID = id.NewAllocationID()
	}
	if _, taken := s.byEmployee[employeeDay{record.EmployeeID, record.Date}]; taken {
		return nil, ErrEmployeeDateTaken
	}
	if _, taken := s.byVehicle[vehicleDay{record.VehicleID, record.Date}]; taken {
		return nil, ErrVehicleDateTaken
	}
	s.index(record)
	return &record, nil
}

// UpdateAllocation replaces the fields of an existing allocation in place.
// It reports zero rows when the id is unknown.
func (s *InMemory) UpdateAllocation(_ context.Context, a *models.Allocation) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.allocations[a.ID]
	if !ok {
		return 0, nil
	}
	if owner, taken := s.byEmployee[employeeDay{a.EmployeeID, a.Date}]; taken && owner != a.ID {
		return 0, ErrEmployeeDateTaken
	}
	if owner, taken := s.byVehicle[vehicleDay{a.VehicleID, a.Date}]; taken && owner != a.ID {
		return 0, ErrVehicleDateTaken
	}
	s.unindex(existing)
	s.index(*a)
	return 1, nil
}

func (s *InMemory) DeleteAllocation(_ context.Context, allocationID id.AllocationID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.allocations[allocationID]
	if !ok {
		return 0, nil
	}
	s.unindex(existing)
	return 1, nil
}

func (s *InMemory) index(a models.Allocation) {
	s.allocations[a.ID] = a
	s.byEmployee[employeeDay{a.EmployeeID, a.Date}] = a.ID
	s.byVehicle[vehicleDay{a.VehicleID, a.Date}] = a.ID
}

func (s *InMemory) unindex(a models.Allocation) {
	delete(s.allocations, a.ID)
	delete(s.byEmployee, employeeDay{a.EmployeeID, a.Date})
	delete(s.byVehicle, vehicleDay{a.VehicleID, a.Date})
}

func compareAllocations(a, b *models.Allocation) int {
	if c := a.Date.Compare(b.Date); c != 0 {
		return c
	}
	if c := cmp.Compare(a.EmployeeID, b.EmployeeID); c != 0 {
		return c
	}
	return cmp.Compare(a.VehicleID, b.VehicleID)
}
