package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncScan("allowed")
	m.IncScan("denied")
	m.IncScan("denied")
	m.IncTeam("create", "ok")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EntryScans.WithLabelValues("allowed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EntryScans.WithLabelValues("denied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TeamOperations.WithLabelValues("create", "ok")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncRegistration("free")
		m.IncPayment("paid")
		m.IncTeam("add", "ok")
		m.IncScan("allowed")
	})
}
