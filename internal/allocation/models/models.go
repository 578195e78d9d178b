package models

import (
	id "fleetbook/pkg/domain"
)

// Employee is master data owned by the record store. Immutable once seeded.
type Employee struct {
	EmployeeID id.EmployeeID `json:"employee_id"`
	Name       string        `json:"name"`
}

// Vehicle is master data owned by the record store. Immutable once seeded.
type Vehicle struct {
	VehicleID id.VehicleID `json:"vehicle_id"`
	Driver    string       `json:"driver"`
}

// Allocation binds one vehicle to one employee for a single day.
type Allocation struct {
	ID         id.AllocationID `json:"id"`
	EmployeeID id.EmployeeID   `json:"employee_id"`
	VehicleID  id.VehicleID    `json:"vehicle_id"`
	Date       id.Date         `json:"date"`
}

// SameBooking reports whether a and b hold the same employee, vehicle and date.
func (a Allocation) SameBooking(employeeID id.EmployeeID, vehicleID id.VehicleID, date id.Date) bool {
	return a.EmployeeID == employeeID && a.VehicleID == vehicleID && a.Date == date
}

// AllocationFilter is the record store predicate. Nil fields match anything;
// set fields are AND-combined.
type AllocationFilter struct {
	EmployeeID *id.EmployeeID
	VehicleID  *id.VehicleID
	Date       *id.Date
	ExcludeID  *id.AllocationID
	// Limit caps the result; zero means unlimited.
	Limit int
}

// Matches evaluates the filter against a single allocation.
func (f AllocationFilter) Matches(a *Allocation) bool {
	if f.EmployeeID != nil && a.EmployeeID != *f.EmployeeID {
		return false
	}
	if f.VehicleID != nil && a.VehicleID != *f.VehicleID {
		return false
	}
	if f.Date != nil && a.Date != *f.Date {
		return false
	}
	if f.ExcludeID != nil && a.ID == *f.ExcludeID {
		return false
	}
	return true
}
