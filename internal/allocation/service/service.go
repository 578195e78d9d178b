package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fleetbook/internal/allocation/conflict"
	"fleetbook/internal/allocation/datepolicy"
	"fleetbook/internal/allocation/metrics"
	"fleetbook/internal/allocation/models"
	"fleetbook/internal/allocation/store"
	id "fleetbook/pkg/domain"
	dErrors "fleetbook/pkg/domain-errors"
	"fleetbook/pkg/platform/audit"
	"fleetbook/pkg/platform/sentinel"
	txcontext "fleetbook/pkg/platform/tx"
	"fleetbook/pkg/requestcontext"
)

const tracerName = "fleetbook/allocation"

// Service is the allocation lifecycle engine. It holds no mutable state
// between calls; all durable state lives in the record store.
type Service struct {
	store          Store
	directory      Directory
	tx             StoreTx
	location       *time.Location
	txTimeout      time.Duration
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTx replaces the default in-memory sharded transaction.
func WithTx(tx StoreTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

// WithDirectory routes employee and vehicle lookups through d, e.g. a cache.
func WithDirectory(d Directory) Option {
	return func(s *Service) {
		s.directory = d
	}
}

// WithTxTimeout bounds the default in-memory transaction.
func WithTxTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.txTimeout = d
	}
}

// WithLocation sets the time zone that decides which calendar day is today.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// New constructs a Service over store.
func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		location: time.UTC,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.directory == nil {
		s.directory = store
	}
	if s.tx == nil {
		s.tx = NewShardedTx(store, s.txTimeout)
	}
	return s
}

// Create books vehicleID for employeeID on a strictly future date.
func (s *Service) Create(ctx context.Context, req *models.CreateAllocationRequest) (result *models.Allocation, err error) {
	ctx, done := s.begin(ctx, metrics.OperationCreate)
	defer func() { done(err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	date, err := datepolicy.ValidateFormat(req.Date)
	if err != nil {
		return nil, err
	}
	if err := s.policy(ctx).CheckCreation(date); err != nil {
		return nil, err
	}
	if err := s.requireEmployee(ctx, req.EmployeeID); err != nil {
		return nil, err
	}
	if err := s.requireVehicle(ctx, req.VehicleID); err != nil {
		return nil, err
	}

	ctx = txcontext.WithLockKeys(ctx, employeeDayKey(req.EmployeeID, date), vehicleDayKey(req.VehicleID, date))
	var created *models.Allocation
	err = s.tx.RunInTx(ctx, func(ctx context.Context, txStore Store) error {
		checker := conflict.New(txStore)
		if err := s.checkEmployeeFree(ctx, checker, req.EmployeeID, date, nil); err != nil {
			return err
		}
		if err := s.checkVehicleFree(ctx, checker, req.VehicleID, date, nil); err != nil {
			return err
		}
		inserted, err := txStore.InsertAllocation(ctx, &models.Allocation{
			ID:         id.NewAllocationID(),
			EmployeeID: req.EmployeeID,
			VehicleID:  req.VehicleID,
			Date:       date,
		})
		if err != nil {
			return translateWriteError(err, req.EmployeeID, req.VehicleID, date, "failed to create allocation")
		}
		created = inserted
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, audit.EventAllocationCreated, created)
	return created, nil
}

// Update rewrites an allocation in place. Only its owner may change it, and
// the owner cannot change. The new date is not checked against today.
func (s *Service) Update(ctx context.Context, allocationID id.AllocationID, req *models.UpdateAllocationRequest) (result *models.Allocation, err error) {
	ctx, done := s.begin(ctx, metrics.OperationUpdate)
	defer func() { done(err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	date, err := datepolicy.ValidateFormat(req.Date)
	if err != nil {
		return nil, err
	}

	ctx = txcontext.WithLockKeys(ctx,
		allocationKey(allocationID),
		employeeDayKey(req.EmployeeID, date),
		vehicleDayKey(req.VehicleID, date),
	)
	var updated *models.Allocation
	err = s.tx.RunInTx(ctx, func(ctx context.Context, txStore Store) error {
		existing, err := findAllocation(ctx, txStore, allocationID)
		if err != nil {
			return err
		}
		if err := s.requireEmployee(ctx, req.EmployeeID); err != nil {
			return err
		}
		if req.EmployeeID != existing.EmployeeID {
			return dErrors.New(dErrors.CodeNotAuthorized,
				"You are not authorized to update this allocation. Only the original employee can update their allocation.")
		}
		if err := s.requireVehicle(ctx, req.VehicleID); err != nil {
			return err
		}

		checker := conflict.New(txStore)
		if date != existing.Date {
			if err := s.checkEmployeeFree(ctx, checker, req.EmployeeID, date, &allocationID); err != nil {
				return err
			}
		}
		if req.VehicleID != existing.VehicleID || date != existing.Date {
			if err := s.checkVehicleFree(ctx, checker, req.VehicleID, date, &allocationID); err != nil {
				return err
			}
		}
		if existing.SameBooking(req.EmployeeID, req.VehicleID, date) {
			return dErrors.New(dErrors.CodeNoChange, "No changes detected.")
		}

		next := &models.Allocation{ID: allocationID, EmployeeID: req.EmployeeID, VehicleID: req.VehicleID, Date: date}
		rows, err := txStore.UpdateAllocation(ctx, next)
		if err != nil {
			return translateWriteError(err, req.EmployeeID, req.VehicleID, date, "failed to update allocation")
		}
		if rows == 0 {
			return dErrors.New(dErrors.CodeStoreFailure, "Failed to update the allocation.")
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, audit.EventAllocationUpdated, updated)
	return updated, nil
}

// Delete cancels an allocation. Only the owner may cancel, and only before
// the allocation date.
func (s *Service) Delete(ctx context.Context, allocationID id.AllocationID, requestingEmployeeID id.EmployeeID) (err error) {
	ctx, done := s.begin(ctx, metrics.OperationDelete)
	defer func() { done(err) }()

	ctx = txcontext.WithLockKeys(ctx, allocationKey(allocationID))
	var removed *models.Allocation
	err = s.tx.RunInTx(ctx, func(ctx context.Context, txStore Store) error {
		existing, err := findAllocation(ctx, txStore, allocationID)
		if err != nil {
			return err
		}
		if requestingEmployeeID != existing.EmployeeID {
			return dErrors.New(dErrors.CodeNotAuthorized, "You are not authorized to delete this allocation.")
		}
		if err := s.policy(ctx).CheckDeletion(existing.Date); err != nil {
			return err
		}
		rows, err := txStore.DeleteAllocation(ctx, allocationID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeStoreFailure, "Failed to delete allocation")
		}
		if rows == 0 {
			return dErrors.New(dErrors.CodeStoreFailure, "Failed to delete allocation")
		}
		removed = existing
		return nil
	})
	if err != nil {
		return err
	}

	s.logAudit(ctx, audit.EventAllocationDeleted, removed)
	return nil
}

// Get returns one allocation by id.
func (s *Service) Get(ctx context.Context, allocationID id.AllocationID) (result *models.Allocation, err error) {
	ctx, done := s.begin(ctx, metrics.OperationGet)
	defer func() { done(err) }()

	return findAllocation(ctx, s.store, allocationID)
}

// ListEmployees returns all employee master data.
func (s *Service) ListEmployees(ctx context.Context) ([]*models.Employee, error) {
	employees, err := s.directory.ListEmployees(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStoreFailure, "failed to list employees")
	}
	return employees, nil
}

// ListVehicles returns all vehicle master data.
func (s *Service) ListVehicles(ctx context.Context) ([]*models.Vehicle, error) {
	vehicles, err := s.directory.ListVehicles(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStoreFailure, "failed to list vehicles")
	}
	return vehicles, nil
}

func (s *Service) policy(ctx context.Context) datepolicy.Policy {
	return datepolicy.ForTime(requestcontext.Now(ctx), s.location)
}

func (s *Service) requireEmployee(ctx context.Context, employeeID id.EmployeeID) error {
	if _, err := s.directory.FindEmployee(ctx, employeeID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeEmployeeNotFound, "Employee not found")
		}
		return dErrors.Wrap(err, dErrors.CodeStoreFailure, "failed to load employee")
	}
	return nil
}

func (s *Service) requireVehicle(ctx context.Context, vehicleID id.VehicleID) error {
	if _, err := s.directory.FindVehicle(ctx, vehicleID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeVehicleNotFound, "Vehicle not found")
		}
		return dErrors.Wrap(err, dErrors.CodeStoreFailure, "failed to load vehicle")
	}
	return nil
}

func (s *Service) checkEmployeeFree(ctx context.Context, checker *conflict.Checker, employeeID id.EmployeeID, date id.Date, exclude *id.AllocationID) error {
	found, err := checker.FindEmployeeConflict(ctx, employeeID, date, exclude)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStoreFailure, "failed to check employee bookings")
	}
	if found != nil {
		return employeeDoubleBooked(employeeID, date)
	}
	return nil
}

func (s *Service) checkVehicleFree(ctx context.Context, checker *conflict.Checker, vehicleID id.VehicleID, date id.Date, exclude *id.AllocationID) error {
	found, err := checker.FindVehicleConflict(ctx, vehicleID, date, exclude)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStoreFailure, "failed to check vehicle bookings")
	}
	if found != nil {
		return vehicleDoubleBooked(vehicleID, date)
	}
	return nil
}

func findAllocation(ctx context.Context, st Store, allocationID id.AllocationID) (*models.Allocation, error) {
	a, err := st.FindAllocation(ctx, allocationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeAllocationNotFound, "Allocation not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStoreFailure, "failed to load allocation")
	}
	return a, nil
}

func employeeDoubleBooked(employeeID id.EmployeeID, date id.Date) error {
	return dErrors.Newf(dErrors.CodeEmployeeDoubleBooked,
		"Employee %s has already booked another vehicle for %s.", employeeID, date)
}

func vehicleDoubleBooked(vehicleID id.VehicleID, date id.Date) error {
	return dErrors.Newf(dErrors.CodeVehicleDoubleBooked,
		"Vehicle %s is already allocated for %s.", vehicleID, date)
}

// translateWriteError maps the store's uniqueness guards onto the same
// rejections the conflict checker produces.
func translateWriteError(err error, employeeID id.EmployeeID, vehicleID id.VehicleID, date id.Date, msg string) error {
	switch {
	case errors.Is(err, store.ErrEmployeeDateTaken):
		return employeeDoubleBooked(employeeID, date)
	case errors.Is(err, store.ErrVehicleDateTaken):
		return vehicleDoubleBooked(vehicleID, date)
	}
	if _, ok := dErrors.As(err); ok {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeStoreFailure, msg)
}

func employeeDayKey(employeeID id.EmployeeID, date id.Date) string {
	return "employee:" + employeeID.String() + ":" + date.String()
}

func vehicleDayKey(vehicleID id.VehicleID, date id.Date) string {
	return "vehicle:" + vehicleID.String() + ":" + date.String()
}

func allocationKey(allocationID id.AllocationID) string {
	return "allocation:" + allocationID.String()
}

// begin opens a span and returns a completion func that records the outcome
// on the span and in metrics.
func (s *Service) begin(ctx context.Context, operation string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "allocation."+operation)
	return ctx, func(err error) {
		if err != nil {
			span.SetAttributes(attribute.String("error.code", string(dErrors.CodeOf(err))))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.metrics.Observe(operation, time.Since(start), err)
	}
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, a *models.Allocation) {
	requestID := requestcontext.RequestID(ctx)
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(event),
			"allocation_id", a.ID.String(),
			"employee_id", int64(a.EmployeeID),
			"vehicle_id", int64(a.VehicleID),
			"date", a.Date.String(),
			"request_id", requestID,
			"event", string(event),
			"log_type", "audit",
		)
	}
	if s.auditPublisher == nil {
		return
	}
	err := s.auditPublisher.Emit(ctx, audit.Event{
		Action:       event,
		EmployeeID:   a.EmployeeID,
		AllocationID: a.ID,
		VehicleID:    a.VehicleID,
		Date:         a.Date,
		RequestID:    requestID,
		Timestamp:    requestcontext.Now(ctx),
	})
	if err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to publish audit event",
			"event", string(event),
			"allocation_id", a.ID.String(),
			"error", err,
		)
	}
}
