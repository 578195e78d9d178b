package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"fleetbook/internal/allocation/models"
	id "fleetbook/pkg/domain"
	"fleetbook/pkg/platform/sentinel"
	txcontext "fleetbook/pkg/platform/tx"
)

//go:embed schema.sql
var schemaSQL string

const (
	uniqueViolation = "23505"

	constraintEmployeeDate = "allocations_employee_date_unique"
	constraintVehicleDate  = "allocations_vehicle_date_unique"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore persists employees, vehicles and allocations in PostgreSQL.
// Calls made with a transaction in context (pkg/platform/tx) join it.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed record store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies the embedded schema. It is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) q(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) FindEmployee(ctx context.Context, employeeID id.EmployeeID) (*models.Employee, error) {
	var e models.Employee
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT employee_id, name FROM employees WHERE employee_id = $1`, int64(employeeID),
	).Scan(&e.EmployeeID, &e.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, storeError("find employee", err)
	}
	return &e, nil
}

func (s *PostgresStore) FindVehicle(ctx context.Context, vehicleID id.VehicleID) (*models.Vehicle, error) {
	var v models.Vehicle
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT vehicle_id, driver FROM vehicles WHERE vehicle_id = $1`, int64(vehicleID),
	).Scan(&v.VehicleID, &v.Driver)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, storeError("find vehicle", err)
	}
	return &v, nil
}

func (s *PostgresStore) ListEmployees(ctx context.Context) ([]*models.Employee, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `SELECT employee_id, name FROM employees ORDER BY employee_id`)
	if err != nil {
		return nil, storeError("list employees", err)
	}
	defer rows.Close()

	var out []*models.Employee
	for rows.Next() {
		var e models.Employee
		if err := rows.Scan(&e.EmployeeID, &e.Name); err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListVehicles(ctx context.Context) ([]*models.Vehicle, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `SELECT vehicle_id, driver FROM vehicles ORDER BY vehicle_id`)
	if err != nil {
		return nil, storeError("list vehicles", err)
	}
	defer rows.Close()

	var out []*models.Vehicle
	for rows.Next() {
		var v models.Vehicle
		if err := rows.Scan(&v.VehicleID, &v.Driver); err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}

// FindAllocation locks the row FOR UPDATE when called inside a transaction.
func (s *PostgresStore) FindAllocation(ctx context.Context, allocationID id.AllocationID) (*models.Allocation, error) {
	query := `SELECT id, employee_id, vehicle_id, date FROM allocations WHERE id = $1`
	if _, inTx := txcontext.From(ctx); inTx {
		query += ` FOR UPDATE`
	}
	row := s.q(ctx).QueryRowContext(ctx, query, uuid.UUID(allocationID))
	a, err := scanAllocation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, storeError("find allocation", err)
	}
	return a, nil
}

func (s *PostgresStore) FindAllocations(ctx context.Context, filter models.AllocationFilter) ([]*models.Allocation, error) {
	query, args := buildAllocationQuery(filter)
	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("find allocations", err)
	}
	defer rows.Close()

	var out []*models.Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan allocation: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func buildAllocationQuery(filter models.AllocationFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.EmployeeID != nil {
		add("employee_id = $%d", int64(*filter.EmployeeID))
	}
	if filter.VehicleID != nil {
		add("vehicle_id = $%d", int64(*filter.VehicleID))
	}
	if filter.Date != nil {
		add("date = $%d", filter.Date.String())
	}
	if filter.ExcludeID != nil {
		add("id <> $%d", uuid.UUID(*filter.ExcludeID))
	}

	var b strings.Builder
	b.WriteString(`SELECT id, employee_id, vehicle_id, date FROM allocations`)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY date, employee_id, vehicle_id")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}

func (s *PostgresStore) InsertAllocation(ctx context.Context, a *models.Allocation) (*models.Allocation, error) {
	record := *a
	if record.ID.IsNil() {
		record.ID = id.NewAllocationID()
	}
	_, err := s.q(ctx).ExecContext(ctx,
		`INSERT INTO allocations (id, employee_id, vehicle_id, date) VALUES ($1, $2, $3, $4)`,
		uuid.UUID(record.ID), int64(record.EmployeeID), int64(record.VehicleID), record.Date.String(),
	)
	if err != nil {
		return nil, mapWriteError("insert allocation", err)
	}
	return &record, nil
}

func (s *PostgresStore) UpdateAllocation(ctx context.Context, a *models.Allocation) (int64, error) {
	res, err := s.q(ctx).ExecContext(ctx,
		`UPDATE allocations SET employee_id = $2, vehicle_id = $3, date = $4 WHERE id = $1`,
		uuid.UUID(a.ID), int64(a.EmployeeID), int64(a.VehicleID), a.Date.String(),
	)
	if err != nil {
		return 0, mapWriteError("update allocation", err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) DeleteAllocation(ctx context.Context, allocationID id.AllocationID) (int64, error) {
	res, err := s.q(ctx).ExecContext(ctx, `DELETE FROM allocations WHERE id = $1`, uuid.UUID(allocationID))
	if err != nil {
		return 0, storeError("delete allocation", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAllocation(row rowScanner) (*models.Allocation, error) {
	var (
		a       models.Allocation
		allocID uuid.UUID
	)
	if err := row.Scan(&allocID, &a.EmployeeID, &a.VehicleID, &a.Date); err != nil {
		return nil, err
	}
	a.ID = id.AllocationID(allocID)
	return &a, nil
}

// mapWriteError turns unique violations on the date constraints into the
// store's conflict sentinels.
func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case constraintEmployeeDate:
			return ErrEmployeeDateTaken
		case constraintVehicleDate:
			return ErrVehicleDateTaken
		}
		return fmt.Errorf("%s: %w", op, sentinel.ErrConflict)
	}
	return storeError(op, err)
}

// storeError marks connection-level failures with sentinel.ErrUnavailable.
func storeError(op string, err error) error {
	var (
		connectErr *pgconn.ConnectError
		netErr     net.Error
	)
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.As(err, &connectErr) || errors.As(err, &netErr) {
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
