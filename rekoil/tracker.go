package rekoil

import (
	"errors"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
)

var errRequeue = errors.New("rekoil: evaluation requeued")

type requeueSignal struct{}

type abortSignal struct {
	err error
}

// Tracker is handed to every selector body. Reads made through Get become
// the selector's dependencies for its next evaluation.
type Tracker struct {
	g        *graph
	id       cellID
	name     string
	frontier bool
	deps     []cellID
	seen     mapset.Set[cellID]
	err      error
	closed   bool
}

func newTracker(g *graph, id cellID, name string, frontier bool) *Tracker {
	return &Tracker{
		g:        g,
		id:       id,
		name:     name,
		frontier: frontier,
		seen:     mapset.NewThreadUnsafeSet[cellID](),
	}
}

// Get reads c and records it as a dependency of the evaluating selector.
func Get[T any](t *Tracker, c Cell[T]) T {
	t.track(c.core())
	return c.load()
}

// Peek reads c without recording a dependency.
func Peek[T any](t *Tracker, c Cell[T]) T {
	if cc := c.core(); cc.g != t.g && !cc.isReleased() {
		t.abort(fmt.Errorf("%w: %s", ErrForeignCell, cc.name))
	}
	return c.load()
}

func (t *Tracker) fail(err error) {
	if t.err == nil {
		t.err = err
	}
}

func (t *Tracker) abort(err error) {
	panic(abortSignal{err: err})
}

func (t *Tracker) track(c *cell) {
	if t.closed || c.isReleased() {
		return
	}
	g := t.g
	if c.g != g {
		t.abort(fmt.Errorf("%w: %s; use ReadAcross or Bridge", ErrForeignCell, c.name))
	}
	if c.id == t.id {
		t.abort(&CyclicDependencyError{Cells: []string{t.name, t.name}})
	}

	dep, sub := g.node(c.id), g.node(t.id)
	if dep == nil || sub == nil {
		return
	}
	if t.seen.Add(c.id) {
		t.deps = append(t.deps, c.id)
	}
	if dep.state == stateEvaluating {
		t.abort(&CyclicDependencyError{Cells: []string{t.name, c.name, t.name}})
	}
	if !t.frontier {
		return
	}

	if dep.height >= sub.height {
		if cells := g.path(t.id, c.id); cells != nil {
			t.abort(&CyclicDependencyError{Cells: cells})
		}
		g.raise(t.id, dep.height+1)
	}
	if dep.state == statePending || (dep.state == stateClean && g.unsettledBelow(dep.height)) {
		panic(requeueSignal{})
	}
}
