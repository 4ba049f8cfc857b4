package metrics_test

import (
	"strings"
	"testing"

	"github.com/delaneyj/rekoil/extrema"
	"github.com/delaneyj/rekoil/graphable"
	"github.com/delaneyj/rekoil/pkg/metrics"
	"github.com/delaneyj/rekoil/rekoil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	c := metrics.New(reg)

	s := rekoil.NewScope(rekoil.WithObserver(c))
	defer s.Release()

	q, err := extrema.New(s, graphable.Point{}, 2, extrema.WithName("prices"), extrema.WithObserver(c))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Push(graphable.Point{PX: float64(i), PY: float64(i)}))
	}
	require.NoError(t, q.SetAll([]graphable.Point{{PY: 1}, {PY: 2}, {PY: 3}, {PY: 4}}))

	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP rekoil_queue_pushes_total Samples pushed into a queue
# TYPE rekoil_queue_pushes_total counter
rekoil_queue_pushes_total{evicted="false",queue="prices"} 2
rekoil_queue_pushes_total{evicted="true",queue="prices"} 1
# HELP rekoil_queue_reset_size Size of a queue after its last reset
# TYPE rekoil_queue_reset_size gauge
rekoil_queue_reset_size{queue="prices"} 4
`), "rekoil_queue_pushes_total", "rekoil_queue_reset_size"))

	passes, err := testutil.GatherAndCount(reg, "rekoil_graph_passes_total", "rekoil_graph_changed_total")
	require.NoError(t, err)
	assert.Equal(t, 2, passes)
}

func TestNilRegisterer(t *testing.T) {
	c := metrics.New(nil)
	assert.NotPanics(t, func() {
		c.ObservePass(rekoil.PassStats{Evaluations: 3})
		c.ObservePush("q", false)
		c.ObserveReset("q", 0)
	})
}

func TestObservePass(t *testing.T) {
	c := metrics.New(prometheus.NewRegistry())
	c.ObservePass(rekoil.PassStats{Evaluations: 3, Changed: 2})
	c.ObservePass(rekoil.PassStats{Evaluations: 1})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Passes()))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.Evaluations()))
}
