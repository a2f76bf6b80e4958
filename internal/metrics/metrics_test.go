package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilRegistryIsNoop(t *testing.T) {
	var r *Registry
	r.ObserveStage("rollup", time.Second, nil)
	r.AddRollupRows("acme", 3)
	r.IncEvaluation("acme", "at_risk")
	r.IncFailure("acme", "evaluate")
	r.IncCycle(errors.New("boom"))
	r.SetRiskLevels("acme", map[string]int{"at_risk": 1})
	assert.NotNil(t, r.Handler())
}

func TestRegistryRecords(t *testing.T) {
	r := New()
	r.AddRollupRows("acme", 3)
	r.AddRollupRows("acme", 0)
	r.IncEvaluation("acme", "at_risk")
	r.IncEvaluation("acme", "at_risk")
	r.IncCycle(nil)
	r.IncCycle(errors.New("boom"))
	r.SetRiskLevels("acme", map[string]int{"off_track": 2})

	assert.Equal(t, 3.0, testutil.ToFloat64(r.RollupRows.WithLabelValues("acme")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.Evaluations.WithLabelValues("acme", "at_risk")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Cycles.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Cycles.WithLabelValues("error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.EpicsByRiskLevel.WithLabelValues("acme", "off_track")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.EpicsByRiskLevel.WithLabelValues("acme", "on_track")))

	families, err := r.Gatherer().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["epicrisk_cycles_total"])
	assert.True(t, names["go_goroutines"])
}
