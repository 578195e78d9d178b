package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"fleetbook/internal/allocation/models"
	"fleetbook/internal/platform/metrics"
	"fleetbook/internal/platform/middleware"
	id "fleetbook/pkg/domain"
	dErrors "fleetbook/pkg/domain-errors"
	"fleetbook/pkg/platform/httputil"
	"fleetbook/pkg/platform/middleware/metadata"
	"fleetbook/pkg/platform/middleware/requesttime"
)

const (
	welcomeMessage = "Welcome to the Vehicle Allocation System!"
	deletedMessage = "Allocation successfully deleted"

	defaultRequestTimeout = 30 * time.Second
)

// Service defines the interface for allocation operations.
type Service interface {
	Create(ctx context.Context, req *models.CreateAllocationRequest) (*models.Allocation, error)
	Update(ctx context.Context, allocationID id.AllocationID, req *models.UpdateAllocationRequest) (*models.Allocation, error)
	Delete(ctx context.Context, allocationID id.AllocationID, requestingEmployeeID id.EmployeeID) error
	Get(ctx context.Context, allocationID id.AllocationID) (*models.Allocation, error)
	List(ctx context.Context, query models.ListAllocationsQuery) ([]*models.Allocation, error)
	ListEmployees(ctx context.Context) ([]*models.Employee, error)
	ListVehicles(ctx context.Context) ([]*models.Vehicle, error)
}

// Handler serves the allocation HTTP API.
type Handler struct {
	logger         *slog.Logger
	allocations    Service
	metrics        *metrics.Metrics
	clock          requesttime.Clock
	requestTimeout time.Duration
}

type Option func(*Handler)

// WithClock replaces the clock that stamps each request.
func WithClock(clock requesttime.Clock) Option {
	return func(h *Handler) {
		h.clock = clock
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.requestTimeout = d
		}
	}
}

// New creates a new allocation Handler. metrics may be nil.
func New(allocations Service, logger *slog.Logger, metrics *metrics.Metrics, opts ...Option) *Handler {
	h := &Handler{
		logger:         logger,
		allocations:    allocations,
		metrics:        metrics,
		clock:          time.Now,
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the allocation routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(metadata.ClientMetadata)
	router.Use(requesttime.WithClock(h.clock))
	router.Use(middleware.Logger(h.logger))
	router.Use(middleware.Timeout(h.requestTimeout))
	router.Use(middleware.ContentTypeJSON)
	router.Use(middleware.LatencyMiddleware(h.metrics, routePattern))

	router.Get("/", h.handleWelcome)
	router.Get("/employees", h.handleListEmployees)
	router.Get("/vehicles", h.handleListVehicles)
	router.Get("/allocations", h.handleListAllocations)
	router.Post("/allocations", h.handleCreateAllocation)
	router.Get("/allocations/{id}", h.handleGetAllocation)
	router.Put("/allocations/{id}", h.handleUpdateAllocation)
	router.Delete("/allocations/{id}", h.handleDeleteAllocation)

	r.Mount("/", router)
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

func (h *Handler) handleWelcome(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": welcomeMessage})
}

func (h *Handler) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.allocations.ListEmployees(r.Context())
	if err != nil {
		h.writeError(w, r, "failed to list employees", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, employees)
}

func (h *Handler) handleListVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles, err := h.allocations.ListVehicles(r.Context())
	if err != nil {
		h.writeError(w, r, "failed to list vehicles", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, vehicles)
}

func (h *Handler) handleListAllocations(w http.ResponseWriter, r *http.Request) {
	query, err := parseListQuery(r)
	if err != nil {
		h.writeError(w, r, "invalid allocation query", err)
		return
	}
	allocations, err := h.allocations.List(r.Context(), query)
	if err != nil {
		h.writeError(w, r, "failed to list allocations", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, allocations)
}

func (h *Handler) handleCreateAllocation(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAllocationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, "invalid create allocation request", err)
		return
	}
	allocation, err := h.allocations.Create(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, "failed to create allocation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, allocation)
}

func (h *Handler) handleGetAllocation(w http.ResponseWriter, r *http.Request) {
	allocationID, err := id.ParseAllocationID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, "invalid allocation id", err)
		return
	}
	allocation, err := h.allocations.Get(r.Context(), allocationID)
	if err != nil {
		h.writeError(w, r, "failed to get allocation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, allocation)
}

func (h *Handler) handleUpdateAllocation(w http.ResponseWriter, r *http.Request) {
	allocationID, err := id.ParseAllocationID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, "invalid allocation id", err)
		return
	}
	var req models.UpdateAllocationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, "invalid update allocation request", err)
		return
	}
	allocation, err := h.allocations.Update(r.Context(), allocationID, &req)
	if err != nil {
		h.writeError(w, r, "failed to update allocation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, allocation)
}

func (h *Handler) handleDeleteAllocation(w http.ResponseWriter, r *http.Request) {
	allocationID, err := id.ParseAllocationID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, "invalid allocation id", err)
		return
	}
	var req models.DeleteAllocationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, "invalid delete allocation request", err)
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, r, "invalid delete allocation request", err)
		return
	}
	if err := h.allocations.Delete(r.Context(), allocationID, req.EmployeeID); err != nil {
		h.writeError(w, r, "failed to delete allocation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.DeleteAllocationResponse{Message: deletedMessage})
}

// writeError logs client errors at warn and everything else at error, then
// renders the error envelope.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	code := dErrors.CodeOf(err)
	attrs := []any{
		"request_id", middleware.GetRequestID(ctx),
		"code", string(code),
		"error", err.Error(),
	}
	if dErrors.ToHTTPStatus(code) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}

// parseListQuery reads the optional employee_id, vehicle_id and date
// parameters. The date is passed through raw for the date policy.
func parseListQuery(r *http.Request) (models.ListAllocationsQuery, error) {
	var query models.ListAllocationsQuery
	values := r.URL.Query()

	if raw := values.Get("employee_id"); raw != "" {
		n, err := parseCriterion(raw, "employee_id")
		if err != nil {
			return query, err
		}
		employeeID := id.EmployeeID(n)
		query.EmployeeID = &employeeID
	}
	if raw := values.Get("vehicle_id"); raw != "" {
		n, err := parseCriterion(raw, "vehicle_id")
		if err != nil {
			return query, err
		}
		vehicleID := id.VehicleID(n)
		query.VehicleID = &vehicleID
	}
	if values.Has("date") {
		date := values.Get("date")
		query.Date = &date
	}
	return query, nil
}

// parseCriterion accepts any integer. Ids that cannot exist, such as zero
// or negatives, are left for the list filter to report as unmatched.
func parseCriterion(raw, field string) (int64, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, dErrors.Newf(dErrors.CodeBadRequest, "%s must be an integer", field)
	}
	return n, nil
}
