// Package aggregate combines many series into one shared vertical axis.
//
// Each series keeps its contribution in four Fibonacci heaps owned by
// Globals: the global min and max in Global mode, and the largest distance
// above and below the anchor sample in the align modes. A per-series link
// selector moves its heap nodes whenever the series or its mode changes, and
// the series' release hook removes them.
package aggregate

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/delaneyj/rekoil/fibheap"
	"github.com/delaneyj/rekoil/graphable"
	"github.com/delaneyj/rekoil/rekoil"
)

type sizeKey struct {
	size float64
	id   uint64
}

func (k sizeKey) String() string {
	return fmt.Sprintf("%g [%04x]", k.size, k.id&0xffff)
}

func compareSize(a, b sizeKey) int {
	if c := cmp.Compare(a.size, b.size); c != 0 {
		return c
	}
	return cmp.Compare(a.id, b.id)
}

// Globals owns the shared axis. The heaps are only touched on the scope's
// dispatcher: by link selectors and release hooks of series created through
// NewSeries.
type Globals struct {
	scope *rekoil.Scope

	AxisMin        *rekoil.Atom[float64]
	AxisMax        *rekoil.Atom[float64]
	AlignGuideline *rekoil.Atom[graphable.Guideline]

	minHeap   *fibheap.Heap[sizeKey]
	maxHeap   *fibheap.Heap[sizeKey]
	aboveHeap *fibheap.Heap[sizeKey]
	belowHeap *fibheap.Heap[sizeKey]
}

func NewGlobals(s *rekoil.Scope) *Globals {
	return &Globals{
		scope:          s,
		AxisMin:        rekoil.NewAtom(s, 0.0, rekoil.Named[float64]("axis.min")),
		AxisMax:        rekoil.NewAtom(s, 0.0, rekoil.Named[float64]("axis.max")),
		AlignGuideline: rekoil.NewAtom(s, graphable.Guideline{}, rekoil.Named[graphable.Guideline]("axis.align")),
		minHeap:        fibheap.New(compareSize, fibheap.Min),
		maxHeap:        fibheap.New(compareSize, fibheap.Max),
		aboveHeap:      fibheap.New(compareSize, fibheap.Max),
		belowHeap:      fibheap.New(compareSize, fibheap.Max),
	}
}

func (g *Globals) Scope() *rekoil.Scope {
	return g.scope
}

// AxisRange reads the shared axis as a range.
func (g *Globals) AxisRange() graphable.DataRange {
	return graphable.DataRange{Min: g.AxisMin.Value(), Max: g.AxisMax.Value()}
}

// Render draws the four heaps for debugging.
func (g *Globals) Render() string {
	var sb strings.Builder
	err := g.scope.Dispatcher().Dispatch(context.Background(), func() {
		for _, h := range []struct {
			name string
			heap *fibheap.Heap[sizeKey]
		}{
			{"global min", g.minHeap},
			{"global max", g.maxHeap},
			{"align above", g.aboveHeap},
			{"align below", g.belowHeap},
		} {
			fmt.Fprintf(&sb, "%s (%d)\n", h.name, h.heap.Len())
			if out := h.heap.Render(); out != "" {
				sb.WriteString(out)
				sb.WriteByte('\n')
			}
		}
	})
	if err != nil {
		return err.Error()
	}
	return sb.String()
}

func top(h *fibheap.Heap[sizeKey]) float64 {
	if k, ok := h.Peek(); ok {
		return k.size
	}
	return 0
}

func (g *Globals) publishAxis() error {
	return errors.Join(
		g.AxisMin.Set(top(g.minHeap)),
		g.AxisMax.Set(top(g.maxHeap)),
	)
}

func (g *Globals) publishAlign() error {
	return g.AlignGuideline.Set(graphable.Guideline{
		Above: top(g.aboveHeap),
		Below: top(g.belowHeap),
	})
}

// nodes are one series' handles into the four heaps; zero means absent.
type nodes struct {
	min, max, above, below fibheap.Handle
}

func upsert(h *fibheap.Heap[sizeKey], hd *fibheap.Handle, k sizeKey) error {
	if hd.IsZero() {
		*hd = h.Insert(k)
		return nil
	}
	return h.UpdateKey(*hd, k)
}

func remove(h *fibheap.Heap[sizeKey], hd *fibheap.Handle) error {
	if hd.IsZero() {
		return nil
	}
	err := h.Delete(*hd)
	*hd = fibheap.Handle{}
	return err
}

func (g *Globals) dropGlobal(n *nodes) (bool, error) {
	if n.min.IsZero() && n.max.IsZero() {
		return false, nil
	}
	return true, errors.Join(remove(g.minHeap, &n.min), remove(g.maxHeap, &n.max))
}

func (g *Globals) dropAlign(n *nodes) (bool, error) {
	if n.above.IsZero() && n.below.IsZero() {
		return false, nil
	}
	return true, errors.Join(remove(g.aboveHeap, &n.above), remove(g.belowHeap, &n.below))
}

// apply moves a series' nodes to match mode and returns the write errors of
// the atoms it republished.
func (g *Globals) apply(id uint64, n *nodes, mode Mode, lo, hi float64, guide graphable.Guideline) error {
	var errs []error

	if mode != Global {
		dropped, err := g.dropGlobal(n)
		errs = append(errs, err)
		if dropped {
			errs = append(errs, g.publishAxis())
		}
	}
	if !mode.aligned() {
		dropped, err := g.dropAlign(n)
		errs = append(errs, err)
		if dropped {
			errs = append(errs, g.publishAlign())
		}
	}

	switch {
	case mode == Global:
		errs = append(errs,
			upsert(g.minHeap, &n.min, sizeKey{size: lo, id: id}),
			upsert(g.maxHeap, &n.max, sizeKey{size: hi, id: id}),
			g.publishAxis(),
		)
	case mode.aligned():
		errs = append(errs,
			upsert(g.aboveHeap, &n.above, sizeKey{size: guide.Above, id: id}),
			upsert(g.belowHeap, &n.below, sizeKey{size: guide.Below, id: id}),
			g.publishAlign(),
		)
	}
	return errors.Join(errs...)
}

func (g *Globals) unlink(n *nodes) error {
	var errs []error
	if dropped, err := g.dropGlobal(n); dropped {
		errs = append(errs, err, g.publishAxis())
	}
	if dropped, err := g.dropAlign(n); dropped {
		errs = append(errs, err, g.publishAlign())
	}
	return errors.Join(errs...)
}
