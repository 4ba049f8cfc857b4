package aggregate

import (
	"github.com/cespare/xxhash/v2"
	"github.com/delaneyj/rekoil/extrema"
	"github.com/delaneyj/rekoil/graphable"
	"github.com/delaneyj/rekoil/rekoil"
)

// Series is one stream of samples contributing to Globals.
type Series[T graphable.Graphable] struct {
	ID    uint64
	scope *rekoil.Scope

	Queue *extrema.Queue[T]
	Mode  *rekoil.Atom[Mode]
	// Alignment is the distance from the anchor sample to the window's max
	// (Above) and min (Below). Zero outside the align modes.
	Alignment *rekoil.Selector[graphable.Guideline]

	link  *rekoil.Selector[Mode]
	nodes nodes
}

// NewSeries creates a series in a child scope of the globals' scope, so the
// heaps stay on one dispatcher.
func NewSeries[T graphable.Graphable](g *Globals, name string, initial T, capacity int, mode Mode, opts ...extrema.Option) (*Series[T], error) {
	scope := g.scope.Child()
	q, err := extrema.New(scope, initial, capacity, append([]extrema.Option{extrema.WithName(name)}, opts...)...)
	if err != nil {
		scope.Release()
		return nil, err
	}

	s := &Series[T]{
		ID:    xxhash.Sum64String(name),
		scope: scope,
		Queue: q,
		Mode:  rekoil.NewAtom(scope, mode, rekoil.Named[Mode](name+".mode")),
	}
	s.Alignment = rekoil.NewSelector(scope, func(t *rekoil.Tracker) graphable.Guideline {
		var anchor T
		switch rekoil.Get(t, s.Mode) {
		case AlignStart:
			anchor = rekoil.Get(t, q.Start)
		case AlignEnd:
			anchor = rekoil.Get(t, q.End)
		default:
			return graphable.Guideline{}
		}
		y := anchor.Y()
		return graphable.Guideline{
			Above: rekoil.Get(t, q.Max) - y,
			Below: y - rekoil.Get(t, q.Min),
		}
	}, rekoil.Named[graphable.Guideline](name+".alignment"))

	// Every read happens before the heaps are touched; an evaluation that
	// gets requeued mid-body leaves them alone.
	s.link = rekoil.NewSelectorE(scope, func(t *rekoil.Tracker) (Mode, error) {
		m := rekoil.Get(t, s.Mode)
		var (
			lo, hi float64
			guide  graphable.Guideline
		)
		switch {
		case m == Global:
			lo, hi = rekoil.Get(t, q.Min), rekoil.Get(t, q.Max)
		case m.aligned():
			guide = rekoil.Get(t, s.Alignment)
		}
		return m, g.apply(s.ID, &s.nodes, m, lo, hi, guide)
	}, rekoil.Named[Mode](name+".link"))

	scope.OnRelease(func() {
		if err := g.unlink(&s.nodes); err != nil {
			scope.Logger().Warn("unlinking series", "series", name, "error", err)
		}
	})
	return s, nil
}

func (s *Series[T]) Name() string {
	return s.Queue.Name()
}

func (s *Series[T]) Scope() *rekoil.Scope {
	return s.scope
}

// Err reports the last failure moving the series' heap nodes.
func (s *Series[T]) Err() error {
	return s.link.Err()
}

// Release removes the series from the shared axis.
func (s *Series[T]) Release() {
	s.scope.Release()
}
