package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Counters
	GenerationResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sciencenova_image_generation_results_total",
			Help: "Generation outcomes by result kind and fallback reason",
		},
		[]string{"kind", "reason"}, // kind: ai-generated, fallback
	)

	BreakerShortCircuitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sciencenova_breaker_short_circuits_total",
			Help: "Prompts answered with a placeholder because their key was blocked",
		},
	)

	ImageCacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sciencenova_image_cache_lookups_total",
			Help: "Image cache lookups by outcome",
		},
		[]string{"outcome"}, // hit, miss, error
	)

	JobTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sciencenova_job_transitions_total",
			Help: "Batch job status transitions",
		},
		[]string{"status"},
	)

	JobPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sciencenova_job_pages_total",
			Help: "Batch pages processed by result kind",
		},
		[]string{"kind"},
	)

	// Gauges
	DispatcherInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sciencenova_dispatcher_in_flight",
			Help: "Remote generation calls currently holding a dispatch slot",
		},
	)

	JobsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sciencenova_jobs_running",
			Help: "Batch jobs currently being driven by this process",
		},
	)

	// Histograms
	DispatcherWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sciencenova_dispatcher_wait_seconds",
			Help:    "Time spent waiting for admission, a slot and the spacing gate",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~82s
		},
	)

	RemoteCallSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sciencenova_remote_call_seconds",
			Help:    "Duration of calls to the remote image generator",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~102s
		},
		[]string{"outcome"}, // ok or a failure kind
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
