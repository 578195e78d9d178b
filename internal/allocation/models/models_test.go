package models

import (
	"testing"

	"github.com/stretchr/testify/assert"

	id "fleetbook/pkg/domain"
	dErrors "fleetbook/pkg/domain-errors"
)

func TestAllocationFilterMatches(t *testing.T) {
	day := id.NewDate(2099, 1, 10)
	other := id.NewDate(2099, 1, 11)
	a := &Allocation{ID: id.NewAllocationID(), EmployeeID: 1, VehicleID: 10, Date: day}

	emp := id.EmployeeID(1)
	wrongEmp := id.EmployeeID(2)
	veh := id.VehicleID(10)
	self := a.ID

	tests := []struct {
		name   string
		filter AllocationFilter
		want   bool
	}{
		{"empty filter matches", AllocationFilter{}, true},
		{"employee match", AllocationFilter{EmployeeID: &emp}, true},
		{"employee mismatch", AllocationFilter{EmployeeID: &wrongEmp}, false},
		{"employee and vehicle and date", AllocationFilter{EmployeeID: &emp, VehicleID: &veh, Date: &day}, true},
		{"date mismatch", AllocationFilter{Date: &other}, false},
		{"excluded self", AllocationFilter{EmployeeID: &emp, ExcludeID: &self}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(a))
		})
	}
}

func TestCreateAllocationRequestValidate(t *testing.T) {
	req := &CreateAllocationRequest{EmployeeID: 1, VehicleID: 10, Date: " 2099-01-10 "}
	assert.NoError(t, req.Validate())
	assert.Equal(t, " 2099-01-10 ", req.Date, "date is left for the date policy to reject")

	assert.True(t, dErrors.HasCode((&CreateAllocationRequest{VehicleID: 10, Date: "2099-01-10"}).Validate(), dErrors.CodeBadRequest))
	assert.True(t, dErrors.HasCode((&CreateAllocationRequest{EmployeeID: 1, Date: "2099-01-10"}).Validate(), dErrors.CodeBadRequest))
	assert.NoError(t, (&CreateAllocationRequest{EmployeeID: 1, VehicleID: 10}).Validate())
}

func TestDeleteAllocationRequestValidate(t *testing.T) {
	assert.NoError(t, (&DeleteAllocationRequest{EmployeeID: 3}).Validate())
	assert.True(t, dErrors.HasCode((&DeleteAllocationRequest{}).Validate(), dErrors.CodeBadRequest))
}
