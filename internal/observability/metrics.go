package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// Read API request rate. Watch for: sudden drops (renderer gone) or spikes.
	HTTPRequestsTotal *prometheus.CounterVec

	// Read API latency. Handlers only read snapshots, so p99 should stay in the low ms.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent read API requests.
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream fetches by outcome (success, timeout, network, upstream_status, circuit_open).
	FetchRequestsTotal *prometheus.CounterVec

	// Upstream fetch latency. Watch for: p99 near the fetch timeout.
	FetchDuration *prometheus.HistogramVec

	// Cache hits by layer (memory, memcached). Misses = sum(fetchRequestsTotal).
	CacheHitsTotal *prometheus.CounterVec

	// Persistent backing failures. Watch for: disk full, memcached down.
	CacheBackingErrorsTotal *prometheus.CounterVec

	// Entries restored from the backing at startup.
	CacheLoadedEntries prometheus.Gauge

	// Unparsable cache records skipped at startup.
	CacheSkippedRecordsTotal prometheus.Counter

	// Fetches refused by the worker pool (queue_full, closed). Watch for: any sustained rate.
	FetchRejectedTotal *prometheus.CounterVec

	// Misses that overlapped another in-flight miss for the same URL (redundant fetches).
	FetchConcurrentMissesTotal prometheus.Counter

	// Circuit breaker state per upstream host: 0=closed, 1=open, 2=half_open.
	CircuitBreakerState *prometheus.GaugeVec

	// Circuit breaker transitions per upstream host.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Snapshot store updates by store name.
	StoreUpdatesTotal *prometheus.CounterVec

	// Payloads a provider could not parse. Store keeps its previous value.
	ProviderParseErrorsTotal *prometheus.CounterVec

	// Poll cycles started.
	PollRunsTotal prometheus.Counter

	// Time to dispatch one poll cycle (providers complete asynchronously).
	PollDurationSeconds prometheus.Histogram

	// Read API rate limit denials.
	RateLimitDeniedTotal prometheus.Counter

	queueGaugeOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	FetchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchRequestsTotal",
			Help: "Total number of upstream fetches by outcome",
		},
		[]string{"status"},
	)
	FetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fetchDurationSeconds",
			Help:    "Upstream fetch latency in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 15},
		},
		[]string{"status"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of fresh cache hits by layer",
		},
		[]string{"layer"},
	)
	CacheBackingErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheBackingErrorsTotal",
			Help: "Persistent cache failures by backend and operation",
		},
		[]string{"backend", "op"},
	)
	CacheLoadedEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cacheLoadedEntries",
			Help: "Entries restored from the persistent cache at startup",
		},
	)
	CacheSkippedRecordsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheSkippedRecordsTotal",
			Help: "Malformed or unreadable cache records skipped during load",
		},
	)
	FetchRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchRejectedTotal",
			Help: "Fetch tasks refused by the worker pool",
		},
		[]string{"reason"},
	)
	FetchConcurrentMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fetchConcurrentMissesTotal",
			Help: "Cache misses that overlapped an in-flight miss for the same URL",
		},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state per upstream host (0=closed, 1=open, 2=half_open)",
		},
		[]string{"host"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions per upstream host",
		},
		[]string{"host", "from", "to"},
	)
	StoreUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storeUpdatesTotal",
			Help: "Snapshot store updates by store",
		},
		[]string{"store"},
	)
	ProviderParseErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "providerParseErrorsTotal",
			Help: "Payloads a provider failed to parse",
		},
		[]string{"provider"},
	)
	PollRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pollRunsTotal",
			Help: "Total number of provider poll cycles",
		},
	)
	PollDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pollDurationSeconds",
			Help:    "Time to dispatch a poll cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		FetchRequestsTotal, FetchDuration,
		CacheHitsTotal, CacheBackingErrorsTotal, CacheLoadedEntries, CacheSkippedRecordsTotal,
		FetchRejectedTotal, FetchConcurrentMissesTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		StoreUpdatesTotal, ProviderParseErrorsTotal,
		PollRunsTotal, PollDurationSeconds,
		RateLimitDeniedTotal,
	)
}

// RegisterQueueDepthGauge exposes the fetch queue depth. Only the first call registers;
// the process has a single fetch client.
func RegisterQueueDepthGauge(depth func() int) {
	queueGaugeOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "fetchQueueDepth",
					Help: "Fetch tasks waiting for a worker",
				},
				func() float64 { return float64(depth()) },
			),
		)
	})
}

// CircuitBreakerStateValue maps a breaker state name to the gauge value.
func CircuitBreakerStateValue(state string) float64 {
	switch state {
	case "open":
		return 1
	case "half_open":
		return 2
	default:
		return 0
	}
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
