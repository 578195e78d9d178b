package domain

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	dErrors "fleetbook/pkg/domain-errors"
)

// EmployeeID is the natural key of an employee. Always positive.
type EmployeeID int64

// VehicleID is the natural key of a vehicle. Always positive.
type VehicleID int64

// AllocationID is the system-assigned identifier of an allocation.
type AllocationID uuid.UUID

func (id EmployeeID) String() string { return strconv.FormatInt(int64(id), 10) }
func (id VehicleID) String() string  { return strconv.FormatInt(int64(id), 10) }

// IsValid reports whether the key is a usable natural key.
func (id EmployeeID) IsValid() bool { return id > 0 }

// IsValid reports whether the key is a usable natural key.
func (id VehicleID) IsValid() bool { return id > 0 }

// NewAllocationID returns a fresh random allocation id.
func NewAllocationID() AllocationID {
	return AllocationID(uuid.New())
}

func (id AllocationID) String() string {
	return uuid.UUID(id).String()
}

func (id AllocationID) IsNil() bool {
	return uuid.UUID(id) == uuid.Nil
}

func (id AllocationID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *AllocationID) UnmarshalText(b []byte) error {
	parsed, err := ParseAllocationID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseEmployeeID parses a positive decimal employee key.
func ParseEmployeeID(s string) (EmployeeID, error) {
	n, err := parsePositive(s, "employee_id")
	return EmployeeID(n), err
}

// ParseVehicleID parses a positive decimal vehicle key.
func ParseVehicleID(s string) (VehicleID, error) {
	n, err := parsePositive(s, "vehicle_id")
	return VehicleID(n), err
}

// ParseAllocationID parses a non-nil UUID.
func ParseAllocationID(s string) (AllocationID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return AllocationID{}, dErrors.New(dErrors.CodeBadRequest, "allocation id is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return AllocationID{}, dErrors.New(dErrors.CodeBadRequest, "invalid allocation id")
	}
	if parsed == uuid.Nil {
		return AllocationID{}, dErrors.New(dErrors.CodeBadRequest, "invalid allocation id")
	}
	return AllocationID(parsed), nil
}

func parsePositive(s, field string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, dErrors.Newf(dErrors.CodeBadRequest, "%s is required", field)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, dErrors.Newf(dErrors.CodeBadRequest, "%s must be a positive integer", field)
	}
	return n, nil
}
