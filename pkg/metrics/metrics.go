package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// StageOutcomes counts terminal stage states; state is COMPLETED, DEFERRED, FAILED or CACHED.
	StageOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stage_outcomes_total",
			Help: "Terminal outcomes per pipeline stage.",
		},
		[]string{"stage", "state"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Duration of pipeline stages.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	QuotaWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quota_wait_seconds",
			Help:    "Time spent waiting for a quota token.",
			Buckets: []float64{0, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"class"},
	)

	QuotaRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_rejections_total",
			Help: "Quota acquisitions rejected because the wait exceeded the limit.",
		},
		[]string{"class"},
	)

	SearchCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_calls_total",
			Help: "Calls made to the search service.",
		},
		[]string{"status"},
	)

	DocumentsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "documents_fetched_total",
			Help: "Fetched documents by detected format.",
		},
		[]string{"format"},
	)

	VersionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "document_versions_created_total",
			Help: "Document versions materialized.",
		},
	)

	UnitsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_units_in_flight",
			Help: "Units currently being processed.",
		},
	)

	DeferredQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_deferred_queue_size",
			Help: "Units waiting in the deferred queue.",
		},
	)
)
