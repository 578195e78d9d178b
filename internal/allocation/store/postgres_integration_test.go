//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"fleetbook/internal/allocation/models"
	"fleetbook/internal/allocation/store"
	id "fleetbook/pkg/domain"
	"fleetbook/pkg/platform/sentinel"
	"fleetbook/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.Require().NoError(store.Migrate(context.Background(), s.postgres.DB))
	// applying twice is a no-op
	s.Require().NoError(store.Migrate(context.Background(), s.postgres.DB))
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, "allocations", "employees", "vehicles"))
	s.Require().NoError(s.store.Seed(ctx, store.SeedEmployees(5), store.SeedVehicles(5)))
}

var day = id.NewDate(2099, time.January, 10)

func (s *PostgresStoreSuite) TestSeedAndDirectory() {
	ctx := context.Background()

	e, err := s.store.FindEmployee(ctx, 4)
	s.Require().NoError(err)
	s.Equal("employee4", e.Name)

	_, err = s.store.FindVehicle(ctx, 42)
	s.ErrorIs(err, sentinel.ErrNotFound)

	// reseeding is idempotent
	s.Require().NoError(s.store.Seed(ctx, store.SeedEmployees(5), store.SeedVehicles(5)))
	employees, err := s.store.ListEmployees(ctx)
	s.Require().NoError(err)
	s.Len(employees, 5)
}

func (s *PostgresStoreSuite) TestAllocationRoundTrip() {
	ctx := context.Background()

	a, err := s.store.InsertAllocation(ctx, &models.Allocation{EmployeeID: 1, VehicleID: 1, Date: day})
	s.Require().NoError(err)

	found, err := s.store.FindAllocation(ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(*a, *found)

	a.VehicleID = 2
	rows, err := s.store.UpdateAllocation(ctx, a)
	s.Require().NoError(err)
	s.Equal(int64(1), rows)

	rows, err = s.store.DeleteAllocation(ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), rows)

	_, err = s.store.FindAllocation(ctx, a.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	rows, err = s.store.UpdateAllocation(ctx, a)
	s.Require().NoError(err)
	s.Zero(rows)
}

func (s *PostgresStoreSuite) TestUniqueConstraints() {
	ctx := context.Background()
	_, err := s.store.InsertAllocation(ctx, &models.Allocation{EmployeeID: 1, VehicleID: 1, Date: day})
	s.Require().NoError(err)

	_, err = s.store.InsertAllocation(ctx, &models.Allocation{EmployeeID: 1, VehicleID: 2, Date: day})
	s.ErrorIs(err, store.ErrEmployeeDateTaken)

	_, err = s.store.InsertAllocation(ctx, &models.Allocation{EmployeeID: 2, VehicleID: 1, Date: day})
	s.ErrorIs(err, store.ErrVehicleDateTaken)
}

func (s *PostgresStoreSuite) TestFindAllocationsFilter() {
	ctx := context.Background()
	first, err := s.store.InsertAllocation(ctx, &models.Allocation{EmployeeID: 1, VehicleID: 1, Date: day})
	s.Require().NoError(err)
	_, err = s.store.InsertAllocation(ctx, &models.Allocation{EmployeeID: 1, VehicleID: 2, Date: day.AddDays(1)})
	s.Require().NoError(err)
	_, err = s.store.InsertAllocation(ctx, &models.Allocation{EmployeeID: 2, VehicleID: 2, Date: day})
	s.Require().NoError(err)

	employee := id.EmployeeID(1)
	found, err := s.store.FindAllocations(ctx, models.AllocationFilter{EmployeeID: &employee})
	s.Require().NoError(err)
	s.Require().Len(found, 2)
	s.Equal(day, found[0].Date)

	found, err = s.store.FindAllocations(ctx, models.AllocationFilter{EmployeeID: &employee, Date: &day, ExcludeID: &first.ID})
	s.Require().NoError(err)
	s.Empty(found)

	found, err = s.store.FindAllocations(ctx, models.AllocationFilter{Date: &day, Limit: 1})
	s.Require().NoError(err)
	s.Len(found, 1)
}

// Concurrent inserts for the same employee and date leave exactly one row.
func (s *PostgresStoreSuite) TestConcurrentInsertSameSlot() {
	ctx := context.Background()
	const goroutines = 20

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
	)
	for i := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vehicle := id.VehicleID(i%5 + 1)
			_, err := s.store.InsertAllocation(ctx, &models.Allocation{EmployeeID: 3, VehicleID: vehicle, Date: day})
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			default:
				s.T().Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successes.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())
}
