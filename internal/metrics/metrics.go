package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SegmentsFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickvault_segments_fetched_total",
		Help: "Provider segment fetches, by timeframe and load mode.",
	}, []string{"timeframe", "mode"})

	RowsMerged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickvault_rows_merged_total",
		Help: "OHLCV rows upserted into local storage.",
	})

	SegmentRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickvault_segment_retries_total",
		Help: "Per-segment retries, by error kind.",
	}, []string{"kind"})

	OperationsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickvault_operations_finished_total",
		Help: "Operations reaching a terminal state, by type and status.",
	}, []string{"type", "status"})

	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tickvault_operation_duration_seconds",
		Help:    "Wall-clock duration of finished operations.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 14),
	}, []string{"type"})

	CancellationsRequested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickvault_cancellations_requested_total",
		Help: "External cancellation requests accepted by the registry.",
	})
)
