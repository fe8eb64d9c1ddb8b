package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for access control
type Metrics struct {
	AuthzDecisionsTotal  *prometheus.CounterVec
	ContextBuildDuration *prometheus.HistogramVec
	RoleCacheTotal       *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors on registry
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orthodesk_authz_decisions_total",
				Help: "Total number of authorization decisions",
			},
			[]string{"gate", "decision"},
		),
		ContextBuildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orthodesk_request_context_build_seconds",
				Help:    "Time spent authenticating a request and loading its principal",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		RoleCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orthodesk_role_cache_total",
				Help: "Role catalog cache lookups",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		m.AuthzDecisionsTotal,
		m.ContextBuildDuration,
		m.RoleCacheTotal,
	)
	return m
}

// RecordDecision counts an allow/deny outcome of a gate. Safe on a nil receiver.
func (m *Metrics) RecordDecision(gate string, allowed bool) {
	if m == nil {
		return
	}
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.AuthzDecisionsTotal.WithLabelValues(gate, decision).Inc()
}

// ObserveContextBuild records how long building a request context took
func (m *Metrics) ObserveContextBuild(outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.ContextBuildDuration.WithLabelValues(outcome).Observe(time.Since(started).Seconds())
}

// RecordCache counts a role cache hit or miss
func (m *Metrics) RecordCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.RoleCacheTotal.WithLabelValues(result).Inc()
}
