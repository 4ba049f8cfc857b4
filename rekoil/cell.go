package rekoil

import (
	"errors"
	"sync/atomic"
)

// Cell is the read side shared by atoms and selectors.
type Cell[T any] interface {
	Source
	Scope() *Scope
	// Value returns the current value. Inside a selector body use Get or
	// Peek instead; Value there fails the evaluation with ErrStaleRead.
	Value() T
	Subscribe(fn func(T)) *Subscription

	core() *cell
	load() T
}

type cell struct {
	g        *graph
	id       cellID
	scope    *Scope
	name     string
	released atomic.Bool
}

func (c *cell) Name() string {
	return c.name
}

func (c *cell) Scope() *Scope {
	return c.scope
}

func (c *cell) core() *cell {
	return c
}

func (c *cell) isReleased() bool {
	return c.released.Load()
}

type base[T any] struct {
	cell
	value T
	eq    func(a, b T) bool
	final atomic.Pointer[T]
}

func (b *base[T]) configure(s *Scope, opts []CellOption[T]) {
	cfg := cellConfig[T]{}
	for _, opt := range opts {
		opt(&cfg)
	}
	b.g = s.g
	b.scope = s
	b.name = cfg.name
	b.eq = cfg.equal
	if b.eq == nil {
		b.eq = defaultEqual[T]()
	}
}

// register allocates the node and hands the cell to its scope. It reports
// false, leaving the cell released, when the scope is already gone.
func (b *base[T]) register(kind string, eval evalFunc) bool {
	g := b.g
	if b.name == "" {
		b.name = g.nextName(kind)
	}
	if b.scope.released.Load() {
		b.seal()
		return false
	}
	height := 0
	if eval != nil {
		height = 1
	}
	b.id = g.alloc(b, height, eval)
	b.scope.cells = append(b.scope.cells, b)
	return true
}

func (b *base[T]) seal() {
	v := b.value
	b.final.Store(&v)
	b.released.Store(true)
}

func (b *base[T]) release() {
	if b.released.Load() {
		return
	}
	b.seal()
	b.g.release(b.id)
}

func (b *base[T]) load() T {
	if p := b.final.Load(); p != nil {
		return *p
	}
	return b.value
}

// Value reads the cell on its dispatcher. Called from work running on a
// different dispatcher it waits at most the cross-scope timeout; on timeout
// the error is reported and the zero value returned.
func (b *base[T]) Value() T {
	if p := b.final.Load(); p != nil {
		return *p
	}

	for _, o := range b.g.foreign() {
		if t := o.current(); t != nil {
			t.fail(&StaleReadError{Reader: t.name, Cell: b.name})
		}
	}

	var v T
	err := b.g.call("reading", b.name, func() {
		if t := b.g.current(); t != nil {
			t.fail(&StaleReadError{Reader: t.name, Cell: b.name})
		}
		v = b.load()
	})
	if errors.Is(err, ErrCrossScopeTimeout) {
		b.g.report(b, err)
		var zero T
		return zero
	}
	if err != nil {
		b.g.report(b, err)
		return b.load()
	}
	return v
}

// Subscribe registers fn to receive the value each time a pass changes it.
// Subscribing to a released cell returns a cancelled subscription.
func (b *base[T]) Subscribe(fn func(T)) *Subscription {
	sub := &Subscription{cell: &b.cell}
	sub.deliver = func() {
		fn(b.value)
	}
	err := b.g.call("subscribing to", b.name, func() {
		b.subscribe(sub)
	})
	if err != nil {
		sub.cancelled.Store(true)
		b.g.report(b, err)
	}
	return sub
}

func (b *base[T]) subscribe(sub *Subscription) {
	n := b.g.node(b.id)
	if n == nil || b.released.Load() {
		sub.cancelled.Store(true)
		return
	}
	n.subs = append(n.subs, sub)
	b.scope.subs.Add(sub)
}
