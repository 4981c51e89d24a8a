// Package metrics provides Prometheus metrics for shopbulk extraction runs.
//
// Counters and histograms are registered once at package init via promauto.
// Components record through the exported collectors directly:
//
//	metrics.GraphQLRequests.WithLabelValues("BulkProducts", "ok").Inc()
//	metrics.RowsExported.WithLabelValues("orders").Add(float64(n))
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GraphQLRequests counts GraphQL calls by operation and outcome
	GraphQLRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopbulk_graphql_requests_total",
			Help: "Total GraphQL requests by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	// ThrottleRetries counts throttled responses that triggered a backoff retry
	ThrottleRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopbulk_throttle_retries_total",
			Help: "Total throttled GraphQL requests that were retried",
		},
		[]string{"operation"},
	)

	// BulkPollCycles counts bulk job status polls by entity
	BulkPollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopbulk_bulk_poll_cycles_total",
			Help: "Total bulk operation status polls",
		},
		[]string{"entity"},
	)

	// BulkWaitSeconds observes time spent waiting on bulk job completion
	BulkWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shopbulk_bulk_wait_seconds",
			Help:    "Seconds spent waiting for bulk operations to complete",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"entity"},
	)

	// DownloadBytes counts bytes streamed from result artifacts
	DownloadBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopbulk_download_bytes_total",
			Help: "Total artifact bytes downloaded",
		},
		[]string{"entity"},
	)

	// RowsExported counts rows written per output table
	RowsExported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopbulk_rows_exported_total",
			Help: "Total rows written to output tables",
		},
		[]string{"table"},
	)

	// DecompositionSkips counts compound columns skipped during decomposition
	DecompositionSkips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopbulk_decomposition_skips_total",
			Help: "Total compound columns skipped during decomposition",
		},
		[]string{"table", "column"},
	)
)
