package transport

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records per-endpoint request counts and latencies.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "labtrack",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "API calls by method, route and outcome.",
		}, []string{"method", "route", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "labtrack",
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "API call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration)
	}
	return m
}

// Requests exposes the request counter (tests read it with testutil.ToFloat64).
func (m *Metrics) Requests() *prometheus.CounterVec {
	return m.requests
}

func (m *Metrics) observe(method, path, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	route := RouteLabel(path)
	m.requests.WithLabelValues(method, route, outcome).Inc()
	m.duration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RouteLabel collapses numeric path segments so ids don't explode label
// cardinality: /api/v1/inventory/12 -> /api/v1/inventory/:id.
func RouteLabel(path string) string {
	segs := strings.Split(path, "/")
	for i, s := range segs {
		if s != "" && isDigits(s) {
			segs[i] = ":id"
		}
	}
	return strings.Join(segs, "/")
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
