package obs

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics groups Prometheus collectors for the development backend.
type HTTPMetrics struct {
	ReqTotal *prometheus.CounterVec
	ReqDur   *prometheus.HistogramVec
	InFlight prometheus.Gauge
}

// NewHTTPMetrics registers and returns HTTP server metrics collectors.
func NewHTTPMetrics(namespace string, buckets []float64, reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &HTTPMetrics{
		ReqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests handled by the server.",
		}, []string{"method", "route", "status"}),
		ReqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency distribution in milliseconds.",
			Buckets:   bucketsOrDefault(buckets),
		}, []string{"method", "route"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
	}
	register(reg, &m.ReqTotal)
	register(reg, &m.ReqDur)
	register(reg, &m.InFlight)
	return m
}

// APIMetrics groups collectors for outbound calls made by the restaurant hooks.
type APIMetrics struct {
	Requests      *prometheus.CounterVec
	Latency       *prometheus.HistogramVec
	Notifications *prometheus.CounterVec
	CacheLookups  *prometheus.CounterVec
}

// NewAPIMetrics registers and returns the client-side collectors.
func NewAPIMetrics(namespace string, reg prometheus.Registerer) *APIMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &APIMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Outbound API requests by operation and result.",
		}, []string{"operation", "result"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_ms",
			Help:      "Outbound API request latency in milliseconds.",
			Buckets:   bucketsOrDefault(nil),
		}, []string{"operation"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "User-facing notifications by kind.",
		}, []string{"kind"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_cache_lookups_total",
			Help:      "Query cache lookups by key and outcome.",
		}, []string{"key", "outcome"}),
	}
	register(reg, &m.Requests)
	register(reg, &m.Latency)
	register(reg, &m.Notifications)
	register(reg, &m.CacheLookups)
	return m
}

// ObserveRequest records one outbound call. Nil receivers are ignored so
// callers can leave metrics unconfigured.
func (m *APIMetrics) ObserveRequest(operation, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(operation, result).Inc()
	m.Latency.WithLabelValues(operation).Observe(DurationMillis(d))
}

// ObserveNotification counts a notification of the given kind.
func (m *APIMetrics) ObserveNotification(kind string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(kind).Inc()
}

// ObserveCacheLookup counts a query cache hit or miss.
func (m *APIMetrics) ObserveCacheLookup(key, outcome string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(key, outcome).Inc()
}

// ParseBucketsCSV converts a comma-separated list of bucket boundaries (milliseconds) into floats.
func ParseBucketsCSV(csv string) []float64 {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]float64, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || v <= 0 {
			continue
		}
		out = append(out, v)
	}
	return out
}

// DurationMillis converts a duration to milliseconds for metric observation.
func DurationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func bucketsOrDefault(buckets []float64) []float64 {
	if len(buckets) == 0 {
		return []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500}
	}
	sorted := append([]float64(nil), buckets...)
	sort.Float64s(sorted)
	return sorted
}

// register adds the collector to reg, swapping in the existing collector when
// an identical one was registered earlier.
func register[T prometheus.Collector](reg prometheus.Registerer, c *T) {
	if err := reg.Register(*c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				*c = existing
			}
			return
		}
		panic(fmt.Errorf("register collector: %w", err))
	}
}
