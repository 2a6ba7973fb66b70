package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("clinic", reg)

	m.BookingsTotal.WithLabelValues("scheduled", "success").Inc()
	m.TokenConflicts.Inc()
	m.TokenConflicts.Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.BookingsTotal.WithLabelValues("scheduled", "success")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.TokenConflicts))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "clinic_token_conflicts_total")
}

func TestNewNoopIsolated(t *testing.T) {
	// two instances must not collide on registration
	assert.NotPanics(t, func() {
		NewNoop()
		NewNoop()
	})
}
