package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordDecision(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordDecision("permission", true)
	m.RecordDecision("permission", false)
	m.RecordDecision("permission", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthzDecisionsTotal.WithLabelValues("permission", "allow")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AuthzDecisionsTotal.WithLabelValues("permission", "deny")))
}

func TestRecordCache(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordCache(true)
	m.RecordCache(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RoleCacheTotal.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RoleCacheTotal.WithLabelValues("miss")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordDecision("app", true)
		m.ObserveContextBuild("ok", time.Now())
		m.RecordCache(false)
	})
}
