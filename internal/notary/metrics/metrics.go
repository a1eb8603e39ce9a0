package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var operationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics provides observability for the notary registrars.
// Tracks record creation counts, rejected operations and operation latency.
type Metrics struct {
	RecordsCreated    *prometheus.CounterVec
	OperationFailures *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
}

// New registers the notary metrics with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		RecordsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "credentia_records_created_total",
			Help: "Total number of notary records created, by record kind",
		}, []string{"kind"}),
		OperationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "credentia_operation_failures_total",
			Help: "Total number of rejected notary operations, by operation and reason",
		}, []string{"operation", "reason"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "credentia_operation_duration_seconds",
			Help:    "Duration of notary operations",
			Buckets: operationBuckets,
		}, []string{"operation"}),
	}
}

// IncrementRecordCreated records a successful create of the given kind.
func (m *Metrics) IncrementRecordCreated(kind string) {
	m.RecordsCreated.WithLabelValues(kind).Inc()
}

// IncrementFailure records an operation rejected for reason.
func (m *Metrics) IncrementFailure(operation, reason string) {
	m.OperationFailures.WithLabelValues(operation, reason).Inc()
}

// ObserveOperation records the duration of an operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
