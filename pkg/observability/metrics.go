// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the gateway.
package observability

import "github.com/prometheus/client_golang/prometheus"

// AuthBuckets covers authentication latencies from cache hits (tens of
// microseconds) to cold bcrypt passes (hundreds of milliseconds).
var AuthBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5}

var (
	// RequestsTotal counts HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// AuthTotal counts authentication attempts by credential method and
	// outcome. Outcome is "ok" or the error code.
	AuthTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_auth_total",
			Help: "Authentication attempts",
		},
		[]string{"method", "outcome"},
	)

	// AuthDuration records authentication latency by credential method.
	AuthDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_auth_duration_seconds",
			Help:    "Authentication latency",
			Buckets: AuthBuckets,
		},
		[]string{"method"},
	)

	// CacheLookupsTotal counts identity and API key cache lookups.
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_cache_lookups_total",
			Help: "Cache lookups",
		},
		[]string{"cache", "result"},
	)

	// SecretComparesTotal counts slow one-way secret comparisons.
	SecretComparesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_secret_compares_total",
			Help: "Slow secret comparisons",
		},
	)

	// AdmissionTotal counts admission decisions by policy and decision.
	AdmissionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_admission_total",
			Help: "Admission decisions",
		},
		[]string{"policy", "decision"},
	)

	// UsageEventsTotal counts usage accounting events by result
	// (recorded, dropped, failed).
	UsageEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_usage_events_total",
			Help: "Usage accounting events",
		},
		[]string{"result"},
	)

	// UsageQueueDepth tracks events waiting in the usage queue.
	UsageQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_usage_queue_depth",
			Help: "Queued usage events",
		},
	)

	// UsageResetsTotal counts daily usage reset runs by result.
	UsageResetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_usage_resets_total",
			Help: "Daily usage reset runs",
		},
		[]string{"result"},
	)
)

// Label values shared by callers.
const (
	CacheIdentity = "identity"
	CacheAPIKey   = "api_key"

	ResultHit  = "hit"
	ResultMiss = "miss"

	OutcomeOK = "ok"

	DecisionAllowed = "allowed"
	DecisionDenied  = "denied"
	DecisionBypass  = "bypass"
	DecisionError   = "error"

	UsageRecorded = "recorded"
	UsageDropped  = "dropped"
	UsageFailed   = "failed"
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		AuthTotal,
		AuthDuration,
		CacheLookupsTotal,
		SecretComparesTotal,
		AdmissionTotal,
		UsageEventsTotal,
		UsageQueueDepth,
		UsageResetsTotal,
	)
}
