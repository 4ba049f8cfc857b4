package rekoil

import (
	"context"
	"errors"
)

// Selector is a derived cell. Its body runs once at creation and again
// whenever a cell it read through Get changes.
type Selector[T any] struct {
	base[T]
	body  func(t *Tracker) (T, error)
	err   error
	ready bool
}

func NewSelector[T any](s *Scope, body func(t *Tracker) T, opts ...CellOption[T]) *Selector[T] {
	return NewSelectorE(s, func(t *Tracker) (T, error) {
		return body(t), nil
	}, opts...)
}

// NewSelectorE is NewSelector for bodies that can fail. A failed evaluation
// keeps the previous value and is reported through Err, the write that
// caused it and the scope's error hook.
func NewSelectorE[T any](s *Scope, body func(t *Tracker) (T, error), opts ...CellOption[T]) *Selector[T] {
	sel := &Selector[T]{body: body}
	sel.configure(s, opts)

	g := s.g
	if err := g.run(context.Background(), func() {
		if !sel.register("selector", sel.evaluate) {
			return
		}
		g.evaluate(sel.id, g.node(sel.id), false)
		if err := g.flush(); err != nil {
			g.report(sel, err)
		}
	}); err != nil {
		sel.seal()
		g.report(sel, err)
	}
	return sel
}

// Err returns the error of the most recent evaluation, nil after a success.
func (s *Selector[T]) Err() error {
	if s.isReleased() {
		return nil
	}
	var err error
	if cErr := s.g.call("checking", s.name, func() {
		err = s.err
	}); cErr != nil {
		return cErr
	}
	return err
}

func (s *Selector[T]) evaluate(t *Tracker) (bool, error) {
	v, err := s.compute(t)
	if errors.Is(err, errRequeue) {
		return false, err
	}
	if err != nil {
		s.err = err
		return false, err
	}

	s.err = nil
	if s.ready && s.eq(s.value, v) {
		return false, nil
	}
	s.value = v
	s.ready = true
	return true, nil
}

func (s *Selector[T]) compute(t *Tracker) (v T, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		switch sig := r.(type) {
		case requeueSignal:
			err = errRequeue
		case abortSignal:
			err = &EvaluationError{Cell: s.name, Err: sig.err}
		default:
			err = &EvaluationError{Cell: s.name, Panic: r}
		}
	}()

	v, err = s.body(t)
	if err == nil {
		err = t.err
	}
	if err != nil {
		err = &EvaluationError{Cell: s.name, Err: err}
	}
	return v, err
}
