// Package metrics exposes Prometheus counters for share link traffic.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "arshare"

type Metrics struct {
	registry       *prometheus.Registry
	requests       *prometheus.HistogramVec
	previews       *prometheus.CounterVec
	launches       *prometheus.CounterVec
	accessAttempts *prometheus.CounterVec
	grantErrors    *prometheus.CounterVec
}

// New registers the collectors on a registry of their own.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		previews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "previews_total",
			Help:      "Preview responses by gate state and unlock path.",
		}, []string{"state", "via"}),
		launches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "launch_descriptors_total",
			Help:      "Launch descriptors handed out by kind.",
		}, []string{"kind"}),
		accessAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_code_attempts_total",
			Help:      "Manual access code submissions by result.",
		}, []string{"result"}),
		grantErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grant_store_errors_total",
			Help:      "Grant storage failures by operation.",
		}, []string{"op"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.previews, m.launches, m.accessAttempts, m.grantErrors,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

func (m *Metrics) PreviewServed(state, via string) {
	if m == nil {
		return
	}
	m.previews.WithLabelValues(state, via).Inc()
}

func (m *Metrics) LaunchBuilt(kind string) {
	if m == nil {
		return
	}
	m.launches.WithLabelValues(kind).Inc()
}

func (m *Metrics) AccessAttempt(accepted bool) {
	if m == nil {
		return
	}
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	m.accessAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) GrantStoreError(op string) {
	if m == nil {
		return
	}
	m.grantErrors.WithLabelValues(op).Inc()
}
