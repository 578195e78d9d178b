// Package conflict finds allocations that would collide with a proposed
// (employee, date) or (vehicle, date) booking.
package conflict

import (
	"context"

	"fleetbook/internal/allocation/models"
	id "fleetbook/pkg/domain"
)

// Finder is the slice of the record store the checker reads from.
type Finder interface {
	FindAllocations(ctx context.Context, filter models.AllocationFilter) ([]*models.Allocation, error)
}

// Checker evaluates collisions against the finder's current state.
type Checker struct {
	finder Finder
}

func New(finder Finder) *Checker {
	return &Checker{finder: finder}
}

// FindEmployeeConflict returns another allocation holding employeeID on date,
// ignoring exclude when set. Nil means the slot is free.
func (c *Checker) FindEmployeeConflict(ctx context.Context, employeeID id.EmployeeID, date id.Date, exclude *id.AllocationID) (*models.Allocation, error) {
	return c.first(ctx, models.AllocationFilter{
		EmployeeID: &employeeID,
		Date:       &date,
		ExcludeID:  exclude,
		Limit:      1,
	})
}

// FindVehicleConflict is FindEmployeeConflict keyed by vehicle.
func (c *Checker) FindVehicleConflict(ctx context.Context, vehicleID id.VehicleID, date id.Date, exclude *id.AllocationID) (*models.Allocation, error) {
	return c.first(ctx, models.AllocationFilter{
		VehicleID: &vehicleID,
		Date:      &date,
		ExcludeID: exclude,
		Limit:     1,
	})
}

func (c *Checker) first(ctx context.Context, filter models.AllocationFilter) (*models.Allocation, error) {
	found, err := c.finder.FindAllocations(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}
