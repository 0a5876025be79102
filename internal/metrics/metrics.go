// Package metrics holds the prometheus collectors of Mahuta and the
// handler exposing them.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/custodia-labs/mahuta/internal/core/domain"
)

// Registry holds every Mahuta collector. A dedicated registry keeps
// repeated registration in tests away from the global default.
var Registry = prometheus.NewRegistry()

var Operations = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mahuta",
	Subsystem: "service",
	Name:      "operations_total",
}, []string{"operation", "result"})

var OperationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "mahuta",
	Subsystem: "service",
	Name:      "operation_duration_seconds",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
}, []string{"operation"})

var StorageReads = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mahuta",
	Subsystem: "storage",
	Name:      "reads_total",
}, []string{"result"})

var StorageWriteRetries = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "mahuta",
	Subsystem: "storage",
	Name:      "write_retries_total",
})

var CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mahuta",
	Subsystem: "cache",
	Name:      "lookups_total",
}, []string{"result"})

var ReplicaPins = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mahuta",
	Subsystem: "replica",
	Name:      "requests_total",
}, []string{"replica", "action", "result"})

var PinningRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mahuta",
	Subsystem: "pinning",
	Name:      "runs_total",
}, []string{"result"})

var PinningPending = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "mahuta",
	Subsystem: "pinning",
	Name:      "pending_documents",
})

func init() {
	Registry.MustRegister(
		Operations,
		OperationDuration,
		StorageReads,
		StorageWriteRetries,
		CacheLookups,
		ReplicaPins,
		PinningRuns,
		PinningPending,
	)
}

// Register adds a collector, ignoring one that is already registered.
func Register(c prometheus.Collector) error {
	err := Registry.Register(c)
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		return nil
	}
	return err
}

// Handler serves the registry in the prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Result labels the outcome of an operation by its error kind.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNoIndex):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid"
	case errors.Is(err, domain.ErrTimeout):
		return "timeout"
	default:
		return "error"
	}
}

// ObserveOperation records the outcome and latency of a service operation.
func ObserveOperation(operation string, start time.Time, err error) {
	Operations.WithLabelValues(operation, Result(err)).Inc()
	OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
