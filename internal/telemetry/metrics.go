package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Ledger write metrics
	AssignmentsTotal metric.Int64Counter
	VacatesTotal     metric.Int64Counter
	MergesTotal      metric.Int64Counter
	RowsWritten      metric.Int64Counter

	// Failure metrics
	InvariantViolationsTotal metric.Int64Counter
	TransientFailuresTotal   metric.Int64Counter

	// History metrics
	HistoryWarningsTotal metric.Int64Counter

	// Operation timing, by operation name
	OperationDuration metric.Float64Histogram
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := rosterMeter()

	m := &Metrics{}

	m.AssignmentsTotal, _ = meter.Int64Counter(
		"roster.assignments.total",
		metric.WithDescription("Total number of committed assignments"),
		metric.WithUnit("{assignment}"),
	)

	m.VacatesTotal, _ = meter.Int64Counter(
		"roster.vacates.total",
		metric.WithDescription("Total number of committed vacate operations"),
		metric.WithUnit("{vacate}"),
	)

	m.MergesTotal, _ = meter.Int64Counter(
		"roster.merges.total",
		metric.WithDescription("Total number of committed person merges"),
		metric.WithUnit("{merge}"),
	)

	m.RowsWritten, _ = meter.Int64Counter(
		"roster.ledger.rows_written.total",
		metric.WithDescription("Total number of interval rows inserted, closed or rewritten"),
		metric.WithUnit("{row}"),
	)

	m.InvariantViolationsTotal, _ = meter.Int64Counter(
		"roster.invariant_violations.total",
		metric.WithDescription("Total number of operations aborted by an invariant violation"),
		metric.WithUnit("{error}"),
	)

	m.TransientFailuresTotal, _ = meter.Int64Counter(
		"roster.transient_failures.total",
		metric.WithDescription("Total number of operations that could not commit"),
		metric.WithUnit("{error}"),
	)

	m.HistoryWarningsTotal, _ = meter.Int64Counter(
		"roster.history.warnings.total",
		metric.WithDescription("Total number of gaps and overlaps found while reconstructing history"),
		metric.WithUnit("{warning}"),
	)

	m.OperationDuration, _ = meter.Float64Histogram(
		"roster.operation.duration",
		metric.WithDescription("Duration of roster operations"),
		metric.WithUnit("ms"),
	)

	return m
}
