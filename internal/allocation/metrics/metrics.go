package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	dErrors "fleetbook/pkg/domain-errors"
)

const (
	OperationCreate = "create"
	OperationUpdate = "update"
	OperationDelete = "delete"
	OperationGet    = "get"
	OperationList   = "list"

	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics tracks allocation lifecycle outcomes.
type Metrics struct {
	Operations *prometheus.CounterVec
	Rejections *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
}

// New registers the allocation metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetbook_allocation_operations_total",
			Help: "Allocation operations by outcome",
		}, []string{"operation", "outcome"}),
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetbook_allocation_rejections_total",
			Help: "Rejected allocation operations by error code",
		}, []string{"operation", "code"}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fleetbook_allocation_operation_duration_seconds",
			Help:    "Latency of allocation operations",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),
	}
}

// Observe records one finished operation. Internal and store failures count
// as errors; every other domain failure is a rejection.
func (m *Metrics) Observe(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.Duration.WithLabelValues(operation).Observe(d.Seconds())
	if err == nil {
		m.Operations.WithLabelValues(operation, OutcomeSuccess).Inc()
		return
	}
	code := dErrors.CodeOf(err)
	switch code {
	case dErrors.CodeInternal, dErrors.CodeStoreFailure, dErrors.CodeTimeout:
		m.Operations.WithLabelValues(operation, OutcomeError).Inc()
	default:
		m.Operations.WithLabelValues(operation, OutcomeRejected).Inc()
	}
	m.Rejections.WithLabelValues(operation, string(code)).Inc()
}
