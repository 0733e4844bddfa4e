package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func familyNames(fams []*dto.MetricFamily) []string {
	names := make([]string, 0, len(fams))
	for _, f := range fams {
		names = append(names, f.GetName())
	}
	return names
}

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Rolls.WithLabelValues("task").Inc()
	m.Rejected.WithLabelValues("Reveal", "precondition").Add(2)
	m.ActiveConnections.Inc()

	fams, err := reg.Gather()
	require.NoError(t, err)
	names := familyNames(fams)
	assert.Contains(t, names, "darkmoon_rolls_total")
	assert.Contains(t, names, "darkmoon_rejected_requests_total")
	assert.Contains(t, names, "darkmoon_ws_active_connections")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Rejected.WithLabelValues("Reveal", "precondition")))
}

func TestNew_DoubleRegisterPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}

func TestNewUnregistered_Independent(t *testing.T) {
	a, b := NewUnregistered(), NewUnregistered()
	a.DroppedClients.Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.DroppedClients))
}
