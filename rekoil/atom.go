package rekoil

import "context"

// Atom is a writable cell.
type Atom[T any] struct {
	base[T]
}

func NewAtom[T any](s *Scope, initial T, opts ...CellOption[T]) *Atom[T] {
	a := &Atom[T]{}
	a.configure(s, opts)
	a.value = initial
	if err := s.g.run(context.Background(), func() {
		a.register("atom", nil)
	}); err != nil {
		a.seal()
		s.g.report(a, err)
	}
	return a
}

// NewAtomFunc creates an atom whose initial value comes from factory.
func NewAtomFunc[T any](s *Scope, factory func() T, opts ...CellOption[T]) *Atom[T] {
	return NewAtom(s, factory(), opts...)
}

// Set stores v and propagates it. Writing a value equal to the current one
// does nothing. Writes made from subscribers or selector bodies run after the
// current pass, and their errors are returned by the outermost Set.
func (a *Atom[T]) Set(v T) error {
	if a.isReleased() {
		return nil
	}
	var err error
	if dErr := a.g.call("writing", a.name, func() {
		err = a.set(v)
	}); dErr != nil {
		return dErr
	}
	return err
}

func (a *Atom[T]) Update(fn func(old T) T) error {
	if a.isReleased() {
		return nil
	}
	var err error
	if dErr := a.g.call("writing", a.name, func() {
		err = a.set(fn(a.value))
	}); dErr != nil {
		return dErr
	}
	return err
}

func (a *Atom[T]) set(v T) error {
	g := a.g
	if a.isReleased() {
		return nil
	}
	if g.busy() {
		g.deferred = append(g.deferred, func() error {
			return a.set(v)
		})
		return nil
	}
	if a.eq(a.value, v) {
		return nil
	}

	if g.batchDepth > 0 {
		prev := a.value
		g.addBatchRoot(a.id, func() bool {
			return !a.eq(prev, a.value)
		})
		a.value = v
		return nil
	}

	a.value = v
	return g.commit([]cellID{a.id})
}
