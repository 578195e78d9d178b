package service

import (
	"context"

	"fleetbook/internal/allocation/datepolicy"
	"fleetbook/internal/allocation/metrics"
	"fleetbook/internal/allocation/models"
	dErrors "fleetbook/pkg/domain-errors"
)

// List returns the allocations matching every supplied criterion.
//
// Each criterion must first match at least one allocation on its own, checked
// in the order employee, vehicle, date. Only then are the criteria combined;
// an empty combined result is not an error.
func (s *Service) List(ctx context.Context, query models.ListAllocationsQuery) (result []*models.Allocation, err error) {
	ctx, done := s.begin(ctx, metrics.OperationList)
	defer func() { done(err) }()

	var combined models.AllocationFilter

	if query.EmployeeID != nil {
		employeeID := *query.EmployeeID
		if err := s.requireAny(ctx, models.AllocationFilter{EmployeeID: &employeeID},
			"Employee with ID %d not found.", int64(employeeID)); err != nil {
			return nil, err
		}
		combined.EmployeeID = &employeeID
	}

	if query.VehicleID != nil {
		vehicleID := *query.VehicleID
		if err := s.requireAny(ctx, models.AllocationFilter{VehicleID: &vehicleID},
			"Vehicle with ID %d not found.", int64(vehicleID)); err != nil {
			return nil, err
		}
		combined.VehicleID = &vehicleID
	}

	if query.Date != nil {
		date, err := datepolicy.ValidateFormat(*query.Date)
		if err != nil {
			return nil, err
		}
		if err := s.requireAny(ctx, models.AllocationFilter{Date: &date},
			"No allocations found for the date %s.", date.String()); err != nil {
			return nil, err
		}
		combined.Date = &date
	}

	allocations, err := s.store.FindAllocations(ctx, combined)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStoreFailure, "failed to list allocations")
	}
	if allocations == nil {
		allocations = []*models.Allocation{}
	}
	return allocations, nil
}

// requireAny fails with no_matching_records when filter matches nothing.
func (s *Service) requireAny(ctx context.Context, filter models.AllocationFilter, format string, args ...any) error {
	filter.Limit = 1
	found, err := s.store.FindAllocations(ctx, filter)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStoreFailure, "failed to list allocations")
	}
	if len(found) == 0 {
		return dErrors.Newf(dErrors.CodeNoMatchingRecords, format, args...)
	}
	return nil
}
