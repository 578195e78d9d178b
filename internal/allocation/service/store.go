package service

import (
	"context"

	"fleetbook/internal/allocation/models"
	id "fleetbook/pkg/domain"
	"fleetbook/pkg/platform/audit"
)

// Directory resolves employee and vehicle master data.
type Directory interface {
	FindEmployee(ctx context.Context, employeeID id.EmployeeID) (*models.Employee, error)
	FindVehicle(ctx context.Context, vehicleID id.VehicleID) (*models.Vehicle, error)
	ListEmployees(ctx context.Context) ([]*models.Employee, error)
	ListVehicles(ctx context.Context) ([]*models.Vehicle, error)
}

// Store is the record store contract. Lookups return sentinel.ErrNotFound
// for missing records; writes return store.ErrEmployeeDateTaken or
// store.ErrVehicleDateTaken when a uniqueness guard fires.
type Store interface {
	Directory
	FindAllocation(ctx context.Context, allocationID id.AllocationID) (*models.Allocation, error)
	FindAllocations(ctx context.Context, filter models.AllocationFilter) ([]*models.Allocation, error)
	InsertAllocation(ctx context.Context, allocation *models.Allocation) (*models.Allocation, error)
	UpdateAllocation(ctx context.Context, allocation *models.Allocation) (int64, error)
	DeleteAllocation(ctx context.Context, allocationID id.AllocationID) (int64, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
