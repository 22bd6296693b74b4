// Package metrics holds the Prometheus instruments updated by the
// Archiver. All collectors are registered with the global registry, so a
// host process exposing /metrics picks them up by importing attic.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mesh-intelligence/attic/pkg/types"
)

// Outcome label values.
const (
	OutcomeOK      = "ok"
	OutcomeNoop    = "noop"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
)

var (
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "attic",
			Name:      "operations_total",
			Help:      "Archive, unarchive and purge calls by root entity and outcome.",
		}, []string{"op", "entity", "outcome"})

	RowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "attic",
			Name:      "rows_total",
			Help:      "Rows deleted or updated by executed plans.",
		}, []string{"op", "entity", "action"})

	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "attic",
			Name:      "operation_duration_seconds",
			Help:      "Wall time of archive, unarchive and purge calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"})
)

func init() {
	prometheus.MustRegister(
		OperationsTotal,
		RowsTotal,
		OperationDuration,
	)
}

// Observe records one finished call.
func Observe(op, entity, outcome string, started time.Time) {
	OperationsTotal.WithLabelValues(op, entity, outcome).Inc()
	OperationDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// ObserveSummary adds the row counts of an executed plan.
func ObserveSummary(op string, sum types.Summary) {
	for entity, n := range sum.Deleted {
		RowsTotal.WithLabelValues(op, entity, "deleted").Add(float64(n))
	}
	for entity, n := range sum.Updated {
		RowsTotal.WithLabelValues(op, entity, "updated").Add(float64(n))
	}
}
