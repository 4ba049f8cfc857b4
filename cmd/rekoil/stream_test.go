package main

import (
	"context"
	"testing"

	"github.com/delaneyj/rekoil/aggregate"
	"github.com/delaneyj/rekoil/internal/config"
	"github.com/delaneyj/rekoil/pkg/metrics"
	"github.com/delaneyj/rekoil/rekoil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducers(t *testing.T) {
	root := rekoil.NewScope()
	defer root.Release()
	g := aggregate.NewGlobals(root)
	collector := metrics.New(nil)

	cfg := config.Default()
	var rows []string
	for _, sc := range cfg.Series {
		sc.Points, sc.Capacity = 50, 20
		p, err := newProducer(g, sc, collector)
		require.NoError(t, err)
		require.NoError(t, p.run(context.Background()))

		row := p.row()
		assert.Equal(t, int64(50), row.Pushed)
		assert.Equal(t, 20, row.Len)
		assert.LessOrEqual(t, row.Min, row.Max)
		rows = append(rows, row.Mode)
	}
	assert.Equal(t, []string{aggregate.Global.String(), aggregate.AlignEnd.String()}, rows)
	assert.False(t, g.AxisRange().IsUnset())
}

func TestProducerStopsOnCancel(t *testing.T) {
	root := rekoil.NewScope()
	defer root.Release()
	g := aggregate.NewGlobals(root)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p, err := newProducer(g, config.Series{Name: "x", Capacity: 4, Points: 10, Rate: 5, Step: 1, Mode: "fit"}, metrics.New(nil))
	require.NoError(t, err)
	assert.ErrorIs(t, p.run(ctx), context.Canceled)
	assert.Zero(t, p.row().Pushed)
}
