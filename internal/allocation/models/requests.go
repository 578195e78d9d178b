package models

import (
	id "fleetbook/pkg/domain"
	dErrors "fleetbook/pkg/domain-errors"
)

// CreateAllocationRequest carries the raw date string. The date policy
// owns format validation, including the empty string.
type CreateAllocationRequest struct {
	EmployeeID id.EmployeeID `json:"employee_id"`
	VehicleID  id.VehicleID  `json:"vehicle_id"`
	Date       string        `json:"date"`
}

// Validate checks request shape only. Date rules live in the date policy.
func (r *CreateAllocationRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validateKeys(r.EmployeeID, r.VehicleID)
}

type UpdateAllocationRequest struct {
	EmployeeID id.EmployeeID `json:"employee_id"`
	VehicleID  id.VehicleID  `json:"vehicle_id"`
	Date       string        `json:"date"`
}

func (r *UpdateAllocationRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validateKeys(r.EmployeeID, r.VehicleID)
}

// DeleteAllocationRequest names the employee asking for the cancellation.
type DeleteAllocationRequest struct {
	EmployeeID id.EmployeeID `json:"employee_id"`
}

func (r *DeleteAllocationRequest) Validate() error {
	if r == nil || !r.EmployeeID.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "employee_id must be a positive integer")
	}
	return nil
}

// ListAllocationsQuery holds the optional listing criteria as received.
type ListAllocationsQuery struct {
	EmployeeID *id.EmployeeID
	VehicleID  *id.VehicleID
	Date       *string
}

// DeleteAllocationResponse confirms a removal.
type DeleteAllocationResponse struct {
	Message string `json:"message"`
}

func validateKeys(employeeID id.EmployeeID, vehicleID id.VehicleID) error {
	if !employeeID.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "employee_id must be a positive integer")
	}
	if !vehicleID.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "vehicle_id must be a positive integer")
	}
	return nil
}
