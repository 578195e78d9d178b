package store

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"fleetbook/internal/allocation/models"
	id "fleetbook/pkg/domain"
)

// DefaultSeedSize is the number of employees and vehicles seeded by default.
const DefaultSeedSize = 1000

// SeedEmployees builds employees 1..n named employee{i}.
func SeedEmployees(n int) []models.Employee {
	out := make([]models.Employee, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, models.Employee{EmployeeID: id.EmployeeID(i), Name: fmt.Sprintf("employee%d", i)})
	}
	return out
}

// SeedVehicles builds vehicles 1..n driven by driver{i}.
func SeedVehicles(n int) []models.Vehicle {
	out := make([]models.Vehicle, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, models.Vehicle{VehicleID: id.VehicleID(i), Driver: fmt.Sprintf("driver%d", i)})
	}
	return out
}

// Seed loads master data into the in-memory store.
func (s *InMemory) Seed(ctx context.Context, employees []models.Employee, vehicles []models.Vehicle) error {
	for _, e := range employees {
		if err := s.PutEmployee(ctx, e); err != nil {
			return err
		}
	}
	for _, v := range vehicles {
		if err := s.PutVehicle(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

// Seed upserts master data with one batch statement per table.
func (s *PostgresStore) Seed(ctx context.Context, employees []models.Employee, vehicles []models.Vehicle) error {
	if len(employees) > 0 {
		ids := make([]int64, len(employees))
		names := make([]string, len(employees))
		for i, e := range employees {
			ids[i] = int64(e.EmployeeID)
			names[i] = e.Name
		}
		_, err := s.q(ctx).ExecContext(ctx, `
			INSERT INTO employees (employee_id, name)
			SELECT * FROM unnest($1::bigint[], $2::text[])
			ON CONFLICT (employee_id) DO UPDATE SET name = EXCLUDED.name
		`, pq.Array(ids), pq.Array(names))
		if err != nil {
			return fmt.Errorf("seed employees: %w", err)
		}
	}
	if len(vehicles) > 0 {
		ids := make([]int64, len(vehicles))
		drivers := make([]string, len(vehicles))
		for i, v := range vehicles {
			ids[i] = int64(v.VehicleID)
			drivers[i] = v.Driver
		}
		_, err := s.q(ctx).ExecContext(ctx, `
			INSERT INTO vehicles (vehicle_id, driver)
			SELECT * FROM unnest($1::bigint[], $2::text[])
			ON CONFLICT (vehicle_id) DO UPDATE SET driver = EXCLUDED.driver
		`, pq.Array(ids), pq.Array(drivers))
		if err != nil {
			return fmt.Errorf("seed vehicles: %w", err)
		}
	}
	return nil
}
