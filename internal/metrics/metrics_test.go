package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegisterAndRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveInvocation("ACCEPTED", 2, 3*time.Second)
	m.IncIteration()
	m.IncIteration()
	m.IncVerdict(true)
	m.IncVerdict(false)
	m.ObserveRequest("/api/v1/assist", 200, 150*time.Millisecond)
	m.IncCacheHit()
	m.IncCacheMiss()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.invocationsTotal.WithLabelValues("ACCEPTED")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.iterationsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.verdictsTotal.WithLabelValues("pass")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.verdictsTotal.WithLabelValues("needs_improvement")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.cacheHitsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.cacheMissesTotal))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetricsDoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
