package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (renderer retry loops).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Forced refreshes include upstream time and backoff.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// Ecowitt API call rate per endpoint. Watch for: error vs success ratio.
	WindAPICallsTotal *prometheus.CounterVec

	// Ecowitt API latency per endpoint. Includes retry backoff.
	WindAPIDuration *prometheus.HistogramVec

	// Connection-level retries. Watch for: high retries = unstable network path.
	WindAPIRetriesTotal prometheus.Counter

	// Fetch outcomes by returned status (LIVE, CACHED, STALE, DEMO). Watch for: STALE/DEMO growth.
	WindFetchTotal *prometheus.CounterVec

	// Fetch errors that triggered the fallback chain, by error category.
	WindFetchErrorsTotal *prometheus.CounterVec

	// Fetch latency by returned status.
	WindFetchDuration *prometheus.HistogramVec

	// Store operations by store (credentials, cache), op and result.
	StoreOperationsTotal *prometheus.CounterVec

	// Legacy migrations that copied data into a widget namespace.
	StoreMigrationsTotal *prometheus.CounterVec

	// Whether the secure store runs encrypted (1) or fell back to plain storage (0).
	StoreEncrypted prometheus.Gauge

	// Circuit breaker state per endpoint: 0 closed, 1 half-open, 2 open.
	CircuitBreakerState *prometheus.GaugeVec

	// Periodic refresh runs and their duration.
	RefreshRunsTotal       *prometheus.CounterVec
	RefreshDurationSeconds prometheus.Histogram

	// Manual refresh requests denied by the rate limiter.
	RateLimitDeniedTotal prometheus.Counter
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
	WindAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "windApiCallsTotal",
			Help: "Total number of Ecowitt API calls",
		},
		[]string{"endpoint", "status"},
	)
	WindAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "windApiDurationSeconds",
			Help:    "Ecowitt API latency in seconds including retries",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint", "status"},
	)
	WindAPIRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "windApiRetriesTotal",
			Help: "Total number of retry attempts after connection failures",
		},
	)
	WindFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "windFetchTotal",
			Help: "Total number of wind fetches by returned status",
		},
		[]string{"status"},
	)
	WindFetchErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "windFetchErrorsTotal",
			Help: "Fetch errors resolved by the fallback chain, by category",
		},
		[]string{"category"},
	)
	WindFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "windFetchDurationSeconds",
			Help:    "Wind fetch latency in seconds by returned status",
			Buckets: []float64{.001, .01, .1, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"status"},
	)
	StoreOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storeOperationsTotal",
			Help: "Store operations by store, op and result",
		},
		[]string{"store", "op", "result"},
	)
	StoreMigrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storeMigrationsTotal",
			Help: "Legacy data migrations into widget namespaces",
		},
		[]string{"namespace", "result"},
	)
	StoreEncrypted = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "storeEncrypted",
			Help: "1 when credentials are stored encrypted at rest, 0 on plain fallback",
		},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state per endpoint (0 closed, 1 half-open, 2 open)",
		},
		[]string{"endpoint"},
	)
	RefreshRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refreshRunsTotal",
			Help: "Periodic refresh runs by result",
		},
		[]string{"result"},
	)
	RefreshDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "refreshDurationSeconds",
			Help:    "Duration of a periodic refresh over all widgets",
			Buckets: []float64{.1, .5, 1, 5, 10, 30, 60},
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of manual refreshes denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WindAPICallsTotal, WindAPIDuration, WindAPIRetriesTotal,
		WindFetchTotal, WindFetchErrorsTotal, WindFetchDuration,
		StoreOperationsTotal, StoreMigrationsTotal, StoreEncrypted,
		CircuitBreakerState,
		RefreshRunsTotal, RefreshDurationSeconds,
		RateLimitDeniedTotal,
	)
}

// SetCircuitBreakerState records the breaker state for endpoint. state follows
// gobreaker's numbering (closed, half-open, open).
func SetCircuitBreakerState(endpoint string, state int) {
	CircuitBreakerState.WithLabelValues(endpoint).Set(float64(state))
}

// RecordStoreOp counts one store operation.
func RecordStoreOp(store, op string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	StoreOperationsTotal.WithLabelValues(store, op, result).Inc()
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
