package observability

import (
	"errors"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var enabled atomic.Bool

func init() {
	enabled.Store(true)
	for _, c := range collectors() {
		prometheus.MustRegister(c)
	}
}

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream"},
	)

	filterRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filter_requests_total",
			Help: "Filter lifecycles by terminal outcome.",
		},
		[]string{"outcome"},
	)

	filterRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filter_request_duration_seconds",
			Help:    "Time from filter start to terminal state.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"outcome"},
	)

	filterStopsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filter_stops_total",
			Help: "Stop requests by result.",
		},
		[]string{"result"},
	)

	propertyCacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "property_cache_results_total",
			Help: "Property cache lookups by outcome (hit, coalesced, fetch).",
		},
		[]string{"op", "outcome"},
	)

	propertyFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "property_fetch_total",
			Help: "Fetch-all-properties calls by result.",
		},
		[]string{"result"},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oaf_filter_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal,
		httpRequestDurationSeconds,
		upstreamLatencySeconds,
		filterRequestsTotal,
		filterRequestDurationSeconds,
		filterStopsTotal,
		propertyCacheResults,
		propertyFetchTotal,
		buildInfo,
	}
}

// Init additionally registers the collectors with reg and toggles recording.
func Init(reg prometheus.Registerer, on bool) {
	enabled.Store(on)
	if reg == nil {
		return
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	upstreamLatencySeconds.WithLabelValues(upstream).Observe(durationSeconds)
}

// ObserveFilter records a lifecycle outcome: delivered, malformed, errored or cancelled.
func ObserveFilter(outcome string, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	filterRequestsTotal.WithLabelValues(outcome).Inc()
	filterRequestDurationSeconds.WithLabelValues(outcome).Observe(durationSeconds)
}

func IncFilterStop(result string) {
	if !enabled.Load() {
		return
	}
	filterStopsTotal.WithLabelValues(result).Inc()
}

func IncPropertyCache(op, outcome string) {
	if !enabled.Load() {
		return
	}
	propertyCacheResults.WithLabelValues(op, outcome).Inc()
}

func IncPropertyFetch(err error) {
	if !enabled.Load() {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	propertyFetchTotal.WithLabelValues(result).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
