package store

import (
	"fmt"

	"fleetbook/pkg/platform/sentinel"
)

// Uniqueness guards. Both wrap sentinel.ErrConflict.
var (
	ErrEmployeeDateTaken = fmt.Errorf("%w: employee already allocated on date", sentinel.ErrConflict)
	ErrVehicleDateTaken  = fmt.Errorf("%w: vehicle already allocated on date", sentinel.ErrConflict)
)
