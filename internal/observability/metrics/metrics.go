// Package metrics provides Prometheus instrumentation for pns-indexer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled     bool
	serviceName string

	// HTTP metrics
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	// Scan loop metrics
	scanTicksTotal     *prometheus.CounterVec
	scanLagBlocks      *prometheus.GaugeVec
	eventsDecodedTotal *prometheus.CounterVec
	eventsAppliedTotal *prometheus.CounterVec
	staleRecordsTotal  *prometheus.CounterVec

	// Fetcher metrics
	fetchQueriesTotal  *prometheus.CounterVec
	fetchHalvingsTotal *prometheus.CounterVec

	// Sync job metrics
	jobsEnqueuedTotal *prometheus.CounterVec
	jobDispatchTotal  *prometheus.CounterVec
)

// Init initializes the metrics system.
func Init(enabledFlag bool, svcName string) {
	enabled = enabledFlag
	serviceName = svcName

	if !enabled {
		return
	}

	// HTTP request counter
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTP request duration histogram
	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Scan tick counter, per chain and outcome
	scanTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_ticks_total",
			Help: "Total number of scan loop ticks",
		},
		[]string{"chain", "status"},
	)

	// Distance from the chain head to the stored checkpoint
	scanLagBlocks = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scan_lag_blocks",
			Help: "Blocks between chain head and the last processed checkpoint",
		},
		[]string{"chain"},
	)

	// Decoded event counter, per chain and event kind
	eventsDecodedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_decoded_total",
			Help: "Total number of decoded log entries",
		},
		[]string{"chain", "kind"},
	)

	// Applied event counter (fresh applications, replays excluded)
	eventsAppliedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_applied_total",
			Help: "Total number of events applied to the mapping store",
		},
		[]string{"chain"},
	)

	// Stale record write counter
	staleRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stale_records_total",
			Help: "Total number of record writes discarded as stale",
		},
		[]string{"chain"},
	)

	// Log fetch sub-query counter
	fetchQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_queries_total",
			Help: "Total number of ranged log queries issued",
		},
		[]string{"chain", "status"},
	)

	// Adaptive chunk halving counter
	fetchHalvingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_chunk_halvings_total",
			Help: "Total number of adaptive chunk size halvings",
		},
		[]string{"chain"},
	)

	// Sync job enqueue counter
	jobsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_jobs_enqueued_total",
			Help: "Total number of sync jobs enqueued",
		},
		[]string{"target_chain", "job_type"},
	)

	// Job dispatch outcome counter
	jobDispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_job_dispatch_total",
			Help: "Total number of job dispatch attempts",
		},
		[]string{"target_chain", "outcome"},
	)

	// Note: Go runtime metrics (goroutines, memory, GC) are automatically
	// collected by prometheus/client_golang - no custom collector needed
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.Handler()
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	return enabled
}

// ServiceName returns the configured service name for metric labels.
func ServiceName() string {
	return serviceName
}
