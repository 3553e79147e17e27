package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	readOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckgrid_read_operations_total",
			Help: "Total number of dispatched read operations.",
		},
		[]string{"operation", "format", "outcome"},
	)
	readOperationDurationMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckgrid_read_operation_duration_ms",
			Help:    "Read operation latency in milliseconds, session open to release.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"operation", "format"},
	)
	readRowsReturnedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckgrid_read_rows_returned_total",
			Help: "Total number of rows returned by previews and queries.",
		},
		[]string{"format"},
	)
	sheetListDegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckgrid_sheet_list_degraded_total",
			Help: "Total number of sheet listings that fell back to an empty list or the workbook library.",
		},
		[]string{"source"},
	)
	objectStagedBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "duckgrid_object_staged_bytes_total",
			Help: "Total bytes copied from the object store into local staging files.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		readOperationsTotal,
		readOperationDurationMs,
		readRowsReturnedTotal,
		sheetListDegradedTotal,
		objectStagedBytesTotal,
	)
}

func ObserveReadOperation(operation, format, outcome string, rows int, elapsed time.Duration) {
	readOperationsTotal.WithLabelValues(operation, format, outcome).Inc()
	readOperationDurationMs.WithLabelValues(operation, format).Observe(float64(elapsed.Milliseconds()))
	if rows > 0 {
		readRowsReturnedTotal.WithLabelValues(format).Add(float64(rows))
	}
}

// IncrementSheetListDegraded counts sheet listings that did not come from
// the ZIP extractor. source is "fallback" or "empty".
func IncrementSheetListDegraded(source string) {
	sheetListDegradedTotal.WithLabelValues(source).Inc()
}

func ObserveObjectStaged(bytes int64) {
	if bytes > 0 {
		objectStagedBytesTotal.Add(float64(bytes))
	}
}
