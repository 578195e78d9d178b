package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"fleetbook/internal/allocation/metrics"
	"fleetbook/internal/allocation/models"
	"fleetbook/internal/allocation/store"
	id "fleetbook/pkg/domain"
	dErrors "fleetbook/pkg/domain-errors"
	"fleetbook/pkg/platform/audit"
	"fleetbook/pkg/platform/audit/publisher"
	auditmemory "fleetbook/pkg/platform/audit/store/memory"
	"fleetbook/pkg/platform/sentinel"
	"fleetbook/pkg/requestcontext"
)

var (
	today    = id.NewDate(2099, time.January, 9)
	tomorrow = today.AddDays(1)
	now      = time.Date(2099, time.January, 9, 10, 30, 0, 0, time.UTC)
)

type ServiceSuite struct {
	suite.Suite
	ctx        context.Context
	store      *store.InMemory
	auditStore *auditmemory.InMemoryStore
	registry   *prometheus.Registry
	service    *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), now)
	s.store = store.NewInMemory()
	s.Require().NoError(s.store.Seed(s.ctx,
		[]models.Employee{{EmployeeID: 1, Name: "employee1"}, {EmployeeID: 2, Name: "employee2"}},
		[]models.Vehicle{{VehicleID: 10, Driver: "driver10"}, {VehicleID: 20, Driver: "driver20"}},
	))
	s.auditStore = auditmemory.NewInMemoryStore()
	s.registry = prometheus.NewRegistry()
	s.service = New(s.store,
		WithAuditPublisher(publisher.NewPublisher(s.auditStore)),
		WithMetrics(metrics.New(s.registry)),
	)
}

func (s *ServiceSuite) create(employee id.EmployeeID, vehicle id.VehicleID, date string) (*models.Allocation, error) {
	return s.service.Create(s.ctx, &models.CreateAllocationRequest{EmployeeID: employee, VehicleID: vehicle, Date: date})
}

func (s *ServiceSuite) mustCreate(employee id.EmployeeID, vehicle id.VehicleID, date string) *models.Allocation {
	a, err := s.create(employee, vehicle, date)
	s.Require().NoError(err)
	return a
}

// seedAllocation bypasses the date policy so past and same-day records can exist.
func (s *ServiceSuite) seedAllocation(employee id.EmployeeID, vehicle id.VehicleID, date id.Date) *models.Allocation {
	a, err := s.store.InsertAllocation(s.ctx, &models.Allocation{EmployeeID: employee, VehicleID: vehicle, Date: date})
	s.Require().NoError(err)
	return a
}

func (s *ServiceSuite) requireCode(err error, code dErrors.Code) {
	s.T().Helper()
	s.Require().Error(err)
	s.Equal(code, dErrors.CodeOf(err), err.Error())
}

func (s *ServiceSuite) TestScenarios() {
	var allocationA *models.Allocation

	s.Run("vehicle already taken on the date", func() {
		allocationA = s.mustCreate(1, 10, "2099-01-10")
		s.False(allocationA.ID.IsNil())

		_, err := s.create(2, 10, "2099-01-10")
		s.requireCode(err, dErrors.CodeVehicleDoubleBooked)
		s.Contains(err.Error(), "Vehicle 10 is already allocated for 2099-01-10.")
	})

	s.Run("employee already booked on the date", func() {
		_, err := s.create(1, 20, "2099-01-10")
		s.requireCode(err, dErrors.CodeEmployeeDoubleBooked)
		s.Contains(err.Error(), "Employee 1 has already booked another vehicle for 2099-01-10.")
	})

	s.Run("owner swaps to a free vehicle", func() {
		updated, err := s.service.Update(s.ctx, allocationA.ID,
			&models.UpdateAllocationRequest{EmployeeID: 1, VehicleID: 20, Date: "2099-01-10"})
		s.Require().NoError(err)
		s.Equal(id.VehicleID(20), updated.VehicleID)
		s.Equal(allocationA.ID, updated.ID)
	})

	s.Run("non-owner cannot delete", func() {
		err := s.service.Delete(s.ctx, allocationA.ID, 2)
		s.requireCode(err, dErrors.CodeNotAuthorized)
	})

	s.Run("past date creation rejected", func() {
		_, err := s.create(1, 10, "2020-01-01")
		s.requireCode(err, dErrors.CodePastOrTodayDate)
	})

	s.Run("listing an employee with no allocations", func() {
		missing := id.EmployeeID(999)
		_, err := s.service.List(s.ctx, models.ListAllocationsQuery{EmployeeID: &missing})
		s.requireCode(err, dErrors.CodeNoMatchingRecords)
		s.Contains(err.Error(), "Employee with ID 999 not found.")
	})
}

func (s *ServiceSuite) TestCreate() {
	s.Run("only strictly future dates are accepted", func() {
		_, err := s.create(1, 10, today.String())
		s.requireCode(err, dErrors.CodePastOrTodayDate)

		_, err = s.create(1, 10, today.AddDays(-1).String())
		s.requireCode(err, dErrors.CodePastOrTodayDate)

		a := s.mustCreate(1, 10, tomorrow.String())
		s.Equal(tomorrow, a.Date)
	})

	s.Run("malformed date", func() {
		_, err := s.create(1, 10, "10-01-2099")
		s.requireCode(err, dErrors.CodeInvalidDate)
	})

	s.Run("unknown employee", func() {
		_, err := s.create(7, 10, "2099-02-01")
		s.requireCode(err, dErrors.CodeEmployeeNotFound)
	})

	s.Run("unknown vehicle", func() {
		_, err := s.create(1, 70, "2099-02-01")
		s.requireCode(err, dErrors.CodeVehicleNotFound)
	})

	s.Run("repeating a create is rejected", func() {
		s.mustCreate(2, 20, "2099-03-01")
		_, err := s.create(2, 20, "2099-03-01")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeEmployeeDoubleBooked) || dErrors.HasCode(err, dErrors.CodeVehicleDoubleBooked))
	})

	s.Run("date must be exactly YYYY-MM-DD", func() {
		for _, raw := range []string{"", " 2099-04-01", "2099-04-01\n", " 2099-04-01 "} {
			_, err := s.create(2, 10, raw)
			s.requireCode(err, dErrors.CodeInvalidDate)
		}
		day := "2099-04-01"
		_, err := s.service.List(s.ctx, models.ListAllocationsQuery{Date: &day})
		s.requireCode(err, dErrors.CodeNoMatchingRecords)
	})
}

func (s *ServiceSuite) TestUpdate() {
	s.Run("unknown allocation", func() {
		_, err := s.service.Update(s.ctx, id.NewAllocationID(),
			&models.UpdateAllocationRequest{EmployeeID: 1, VehicleID: 10, Date: "2099-05-01"})
		s.requireCode(err, dErrors.CodeAllocationNotFound)
	})

	s.Run("empty date is a format error", func() {
		_, err := s.service.Update(s.ctx, id.NewAllocationID(),
			&models.UpdateAllocationRequest{EmployeeID: 1, VehicleID: 10, Date: ""})
		s.requireCode(err, dErrors.CodeInvalidDate)
	})

	a := s.mustCreate(1, 10, "2099-05-01")

	s.Run("ownership cannot be transferred", func() {
		_, err := s.service.Update(s.ctx, a.ID,
			&models.UpdateAllocationRequest{EmployeeID: 2, VehicleID: 10, Date: "2099-05-01"})
		s.requireCode(err, dErrors.CodeNotAuthorized)
	})

	s.Run("unknown new employee is reported before authorization", func() {
		_, err := s.service.Update(s.ctx, a.ID,
			&models.UpdateAllocationRequest{EmployeeID: 9, VehicleID: 10, Date: "2099-05-01"})
		s.requireCode(err, dErrors.CodeEmployeeNotFound)
	})

	s.Run("unknown vehicle", func() {
		_, err := s.service.Update(s.ctx, a.ID,
			&models.UpdateAllocationRequest{EmployeeID: 1, VehicleID: 99, Date: "2099-05-01"})
		s.requireCode(err, dErrors.CodeVehicleNotFound)
	})

	s.Run("identical fields are a no-op", func() {
		_, err := s.service.Update(s.ctx, a.ID,
			&models.UpdateAllocationRequest{EmployeeID: 1, VehicleID: 10, Date: "2099-05-01"})
		s.requireCode(err, dErrors.CodeNoChange)
	})

	s.Run("moving onto a day the employee already holds", func() {
		s.mustCreate(1, 20, "2099-05-02")
		_, err := s.service.Update(s.ctx, a.ID,
			&models.UpdateAllocationRequest{EmployeeID: 1, VehicleID: 10, Date: "2099-05-02"})
		s.requireCode(err, dErrors.CodeEmployeeDoubleBooked)
	})

	s.Run("moving onto a vehicle taken that day", func() {
		s.mustCreate(2, 20, "2099-05-01")
		_, err := s.service.Update(s.ctx, a.ID,
			&models.UpdateAllocationRequest{EmployeeID: 1, VehicleID: 20, Date: "2099-05-01"})
		s.requireCode(err, dErrors.CodeVehicleDoubleBooked)
	})

	s.Run("past dates are not rejected on update", func() {
		updated, err := s.service.Update(s.ctx, a.ID,
			&models.UpdateAllocationRequest{EmployeeID: 1, VehicleID: 10, Date: "2020-01-01"})
		s.Require().NoError(err)
		s.Equal("2020-01-01", updated.Date.String())

		stored, err := s.service.Get(s.ctx, a.ID)
		s.Require().NoError(err)
		s.Equal(*updated, *stored)
	})

	s.Run("malformed date", func() {
		_, err := s.service.Update(s.ctx, a.ID,
			&models.UpdateAllocationRequest{EmployeeID: 1, VehicleID: 10, Date: "2099/05/01"})
		s.requireCode(err, dErrors.CodeInvalidDate)
	})
}

func (s *ServiceSuite) TestDelete() {
	s.Run("deletion window", func() {
		past := s.seedAllocation(1, 10, today.AddDays(-3))
		sameDay := s.seedAllocation(1, 20, today)
		future := s.mustCreate(1, 10, tomorrow.String())

		s.requireCode(s.service.Delete(s.ctx, past.ID, 1), dErrors.CodePastDate)
		s.requireCode(s.service.Delete(s.ctx, sameDay.ID, 1), dErrors.CodeSameDayDeletion)
		s.Require().NoError(s.service.Delete(s.ctx, future.ID, 1))

		_, err := s.service.Get(s.ctx, future.ID)
		s.requireCode(err, dErrors.CodeAllocationNotFound)
	})

	s.Run("unknown allocation", func() {
		s.requireCode(s.service.Delete(s.ctx, id.NewAllocationID(), 1), dErrors.CodeAllocationNotFound)
	})

	s.Run("authorization is checked before the date", func() {
		past := s.seedAllocation(2, 20, today.AddDays(-1))
		s.requireCode(s.service.Delete(s.ctx, past.ID, 1), dErrors.CodeNotAuthorized)
	})

	s.Run("slot is free again after deletion", func() {
		a := s.mustCreate(2, 10, "2099-06-01")
		s.Require().NoError(s.service.Delete(s.ctx, a.ID, 2))
		s.mustCreate(1, 10, "2099-06-01")
	})
}

func (s *ServiceSuite) TestList() {
	first := s.mustCreate(1, 10, "2099-07-01")
	second := s.mustCreate(2, 20, "2099-07-01")
	third := s.mustCreate(1, 20, "2099-07-02")

	s.Run("no criteria lists everything in date order", func() {
		all, err := s.service.List(s.ctx, models.ListAllocationsQuery{})
		s.Require().NoError(err)
		s.Equal([]*models.Allocation{first, second, third}, all)
	})

	s.Run("criteria are combined with AND", func() {
		employee := id.EmployeeID(1)
		vehicle := id.VehicleID(20)
		result, err := s.service.List(s.ctx, models.ListAllocationsQuery{EmployeeID: &employee, VehicleID: &vehicle})
		s.Require().NoError(err)
		s.Equal([]*models.Allocation{third}, result)
	})

	s.Run("each criterion matching alone but not together is an empty success", func() {
		employee := id.EmployeeID(2)
		date := "2099-07-02"
		result, err := s.service.List(s.ctx, models.ListAllocationsQuery{EmployeeID: &employee, Date: &date})
		s.Require().NoError(err)
		s.NotNil(result)
		s.Empty(result)
	})

	s.Run("unknown vehicle criterion", func() {
		vehicle := id.VehicleID(10)
		date := "2099-07-02"
		_, err := s.service.List(s.ctx, models.ListAllocationsQuery{VehicleID: &vehicle, Date: &date})
		s.Require().NoError(err)

		missing := id.VehicleID(30)
		_, err = s.service.List(s.ctx, models.ListAllocationsQuery{VehicleID: &missing})
		s.requireCode(err, dErrors.CodeNoMatchingRecords)
		s.Contains(err.Error(), "Vehicle with ID 30 not found.")
	})

	s.Run("non-positive ids match nothing", func() {
		negative := id.EmployeeID(-5)
		_, err := s.service.List(s.ctx, models.ListAllocationsQuery{EmployeeID: &negative})
		s.requireCode(err, dErrors.CodeNoMatchingRecords)
		s.Contains(err.Error(), "Employee with ID -5 not found.")

		zero := id.VehicleID(0)
		_, err = s.service.List(s.ctx, models.ListAllocationsQuery{VehicleID: &zero})
		s.requireCode(err, dErrors.CodeNoMatchingRecords)
	})

	s.Run("date is format checked before existence", func() {
		bad := "July 1st"
		_, err := s.service.List(s.ctx, models.ListAllocationsQuery{Date: &bad})
		s.requireCode(err, dErrors.CodeInvalidDate)

		empty := "2099-08-01"
		_, err = s.service.List(s.ctx, models.ListAllocationsQuery{Date: &empty})
		s.requireCode(err, dErrors.CodeNoMatchingRecords)
		s.Contains(err.Error(), "No allocations found for the date 2099-08-01.")
	})

	s.Run("past dates are listable", func() {
		old := s.seedAllocation(2, 10, id.NewDate(2020, time.January, 1))
		date := "2020-01-01"
		result, err := s.service.List(s.ctx, models.ListAllocationsQuery{Date: &date})
		s.Require().NoError(err)
		s.Equal([]*models.Allocation{old}, result)
	})

	s.Run("employee criterion is checked first", func() {
		employee := id.EmployeeID(404)
		vehicle := id.VehicleID(404)
		_, err := s.service.List(s.ctx, models.ListAllocationsQuery{EmployeeID: &employee, VehicleID: &vehicle})
		s.requireCode(err, dErrors.CodeNoMatchingRecords)
		s.Contains(err.Error(), "Employee with ID 404")
	})
}

func (s *ServiceSuite) TestDirectoryListing() {
	employees, err := s.service.ListEmployees(s.ctx)
	s.Require().NoError(err)
	s.Len(employees, 2)

	vehicles, err := s.service.ListVehicles(s.ctx)
	s.Require().NoError(err)
	s.Len(vehicles, 2)
}

func (s *ServiceSuite) TestAuditAndMetrics() {
	ctx := requestcontext.WithRequestID(s.ctx, "req-1")
	a, err := s.service.Create(ctx, &models.CreateAllocationRequest{EmployeeID: 1, VehicleID: 10, Date: "2099-09-01"})
	s.Require().NoError(err)
	_, err = s.service.Update(ctx, a.ID, &models.UpdateAllocationRequest{EmployeeID: 1, VehicleID: 20, Date: "2099-09-01"})
	s.Require().NoError(err)
	s.Require().NoError(s.service.Delete(ctx, a.ID, 1))
	_, err = s.create(1, 10, "2020-01-01")
	s.Require().Error(err)

	events, err := s.auditStore.ListByEmployee(ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(events, 3)
	s.Equal(audit.EventAllocationCreated, events[0].Action)
	s.Equal(audit.EventAllocationUpdated, events[1].Action)
	s.Equal(audit.EventAllocationDeleted, events[2].Action)
	s.Equal("req-1", events[0].RequestID)
	s.Equal(a.ID, events[2].AllocationID)
	s.Equal(now, events[0].Timestamp)

	s.Equal(float64(1), promtestutil.ToFloat64(s.service.metrics.Operations.WithLabelValues(metrics.OperationCreate, metrics.OutcomeSuccess)))
	s.Equal(float64(1), promtestutil.ToFloat64(s.service.metrics.Operations.WithLabelValues(metrics.OperationCreate, metrics.OutcomeRejected)))
	s.Equal(float64(1), promtestutil.ToFloat64(s.service.metrics.Rejections.WithLabelValues(metrics.OperationCreate, string(dErrors.CodePastOrTodayDate))))
}

func (s *ServiceSuite) TestConcurrentCreates() {
	s.Run("one booking per employee and date", func() {
		const workers = 32
		vehicles := make([]models.Vehicle, 0, workers)
		for i := 1; i <= workers; i++ {
			vehicles = append(vehicles, models.Vehicle{VehicleID: id.VehicleID(100 + i), Driver: "spare"})
		}
		s.Require().NoError(s.store.Seed(s.ctx, nil, vehicles))

		var wg sync.WaitGroup
		var successes, doubleBooked atomic.Int32
		for i := 1; i <= workers; i++ {
			wg.Add(1)
			go func(vehicle id.VehicleID) {
				defer wg.Done()
				_, err := s.create(1, vehicle, "2099-10-01")
				switch {
				case err == nil:
					successes.Add(1)
				case dErrors.HasCode(err, dErrors.CodeEmployeeDoubleBooked):
					doubleBooked.Add(1)
				}
			}(id.VehicleID(100 + i))
		}
		wg.Wait()

		s.Equal(int32(1), successes.Load())
		s.Equal(int32(workers-1), doubleBooked.Load())
	})

	s.Run("one booking per vehicle and date", func() {
		employees := make([]models.Employee, 0, 16)
		for i := 1; i <= 16; i++ {
			employees = append(employees, models.Employee{EmployeeID: id.EmployeeID(100 + i), Name: "temp"})
		}
		s.Require().NoError(s.store.Seed(s.ctx, employees, nil))

		var wg sync.WaitGroup
		var successes atomic.Int32
		for _, e := range employees {
			wg.Add(1)
			go func(employee id.EmployeeID) {
				defer wg.Done()
				if _, err := s.create(employee, 10, "2099-10-02"); err == nil {
					successes.Add(1)
				}
			}(e.EmployeeID)
		}
		wg.Wait()
		s.Equal(int32(1), successes.Load())
	})
}

// faultyStore fails selected operations on top of the in-memory store.
type faultyStore struct {
	*store.InMemory
	findErr    error
	updateNoop bool
	deleteNoop bool
	insertErr  error
}

func (f *faultyStore) FindAllocations(ctx context.Context, filter models.AllocationFilter) ([]*models.Allocation, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.InMemory.FindAllocations(ctx, filter)
}

func (f *faultyStore) InsertAllocation(ctx context.Context, a *models.Allocation) (*models.Allocation, error) {
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	return f.InMemory.InsertAllocation(ctx, a)
}

func (f *faultyStore) UpdateAllocation(ctx context.Context, a *models.Allocation) (int64, error) {
	if f.updateNoop {
		return 0, nil
	}
	return f.InMemory.UpdateAllocation(ctx, a)
}

func (f *faultyStore) DeleteAllocation(ctx context.Context, allocationID id.AllocationID) (int64, error) {
	if f.deleteNoop {
		return 0, nil
	}
	return f.InMemory.DeleteAllocation(ctx, allocationID)
}

func (s *ServiceSuite) TestStoreFailures() {
	s.Run("conflict lookup failure", func() {
		svc := New(&faultyStore{InMemory: s.store, findErr: errors.New("connection reset")})
		_, err := svc.Create(s.ctx, &models.CreateAllocationRequest{EmployeeID: 1, VehicleID: 10, Date: "2099-11-01"})
		s.requireCode(err, dErrors.CodeStoreFailure)

		_, err = svc.List(s.ctx, models.ListAllocationsQuery{})
		s.requireCode(err, dErrors.CodeStoreFailure)
	})

	s.Run("unreachable store", func() {
		svc := New(&faultyStore{InMemory: s.store, findErr: fmt.Errorf("find allocations: %w", sentinel.ErrUnavailable)})
		_, err := svc.Create(s.ctx, &models.CreateAllocationRequest{EmployeeID: 1, VehicleID: 10, Date: "2099-11-05"})
		s.requireCode(err, dErrors.CodeStoreFailure)
		s.ErrorIs(err, sentinel.ErrUnavailable)
	})

	s.Run("uniqueness guard maps to double booking", func() {
		svc := New(&faultyStore{InMemory: s.store, insertErr: store.ErrVehicleDateTaken})
		_, err := svc.Create(s.ctx, &models.CreateAllocationRequest{EmployeeID: 1, VehicleID: 10, Date: "2099-11-02"})
		s.requireCode(err, dErrors.CodeVehicleDoubleBooked)
	})

	s.Run("update that touched nothing", func() {
		a := s.mustCreate(1, 10, "2099-11-03")
		svc := New(&faultyStore{InMemory: s.store, updateNoop: true})
		_, err := svc.Update(s.ctx, a.ID, &models.UpdateAllocationRequest{EmployeeID: 1, VehicleID: 20, Date: "2099-11-03"})
		s.requireCode(err, dErrors.CodeStoreFailure)
		s.Contains(err.Error(), "Failed to update the allocation.")
	})

	s.Run("delete that touched nothing", func() {
		a := s.mustCreate(2, 10, "2099-11-04")
		svc := New(&faultyStore{InMemory: s.store, deleteNoop: true})
		err := svc.Delete(s.ctx, a.ID, 2)
		s.requireCode(err, dErrors.CodeStoreFailure)
	})
}

func (s *ServiceSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	_, err := s.service.Create(ctx, &models.CreateAllocationRequest{EmployeeID: 1, VehicleID: 10, Date: "2099-12-01"})
	s.requireCode(err, dErrors.CodeTimeout)
}
