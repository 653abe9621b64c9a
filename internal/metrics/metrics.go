// Package metrics holds the Prometheus instruments of the workbench server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all the Prometheus metrics for the workbench server
type Metrics struct {
	BackendRequests *prometheus.CounterVec
	BackendDuration *prometheus.HistogramVec
	CacheLookups    *prometheus.CounterVec
	Recomputes      *prometheus.CounterVec
	InvalidPayloads *prometheus.CounterVec
	Sessions        prometheus.Gauge
	RunsRecorded    prometheus.Counter
}

// New registers the metrics with reg. A nil reg uses a private registry,
// which keeps tests free of duplicate registration panics.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		BackendRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oxminer_backend_requests_total",
			Help: "Requests sent to the mining backend, by operation and result",
		}, []string{"op", "result"}),
		BackendDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "oxminer_backend_request_duration_seconds",
			Help:    "Latency of mining backend requests",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"op"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oxminer_model_cache_lookups_total",
			Help: "Filtered model cache lookups, by result",
		}, []string{"result"}),
		Recomputes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oxminer_recomputes_total",
			Help: "Graph content recomputations, by status",
		}, []string{"status"}),
		InvalidPayloads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oxminer_invalid_payloads_total",
			Help: "Backend payloads rejected by schema validation",
		}, []string{"schema"}),
		Sessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "oxminer_workbench_sessions",
			Help: "Live workbench sessions",
		}),
		RunsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "oxminer_runs_recorded_total",
			Help: "Completed mining runs written to the run history",
		}),
	}
}

// ObserveBackend counts one backend call. Safe on a nil receiver.
func (m *Metrics) ObserveBackend(op string, started time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.BackendRequests.WithLabelValues(op, result).Inc()
	m.BackendDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// ObserveCache counts a cache hit or miss.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.CacheLookups.WithLabelValues("miss").Inc()
}

// ObserveRecompute counts a recomputation outcome.
func (m *Metrics) ObserveRecompute(status string) {
	if m == nil {
		return
	}
	m.Recomputes.WithLabelValues(status).Inc()
}

// ObserveInvalid counts a payload that failed validation.
func (m *Metrics) ObserveInvalid(schema string) {
	if m == nil {
		return
	}
	m.InvalidPayloads.WithLabelValues(schema).Inc()
}

// SetSessions reports the number of live sessions.
func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.Sessions.Set(float64(n))
}

// IncRuns counts a recorded run.
func (m *Metrics) IncRuns() {
	if m == nil {
		return
	}
	m.RunsRecorded.Inc()
}
