package rekoil

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrStaleRead          = errors.New("rekoil: untracked read inside a selector body")
	ErrCyclicDependency   = errors.New("rekoil: cyclic dependency")
	ErrEvaluation         = errors.New("rekoil: selector evaluation failed")
	ErrCrossScopeTimeout  = errors.New("rekoil: cross-scope access timed out")
	ErrDispatcherClosed   = errors.New("rekoil: dispatcher closed")
	ErrForeignCell        = errors.New("rekoil: cell belongs to another context")
	ErrDeferredWriteLimit = errors.New("rekoil: deferred write limit reached")
)

// StaleReadError is recorded when a selector body calls Value instead of
// Get or Peek. The evaluation that made the read fails.
type StaleReadError struct {
	Reader string
	Cell   string
}

func (e *StaleReadError) Error() string {
	return fmt.Sprintf("rekoil: %s read %s with Value; use Get or Peek", e.Reader, e.Cell)
}

func (e *StaleReadError) Unwrap() error {
	return ErrStaleRead
}

// CyclicDependencyError lists the cells of the cycle starting and ending at
// the reader whose evaluation closed it.
type CyclicDependencyError struct {
	Cells []string
}

func (e *CyclicDependencyError) Error() string {
	return "rekoil: cyclic dependency: " + strings.Join(e.Cells, " -> ")
}

func (e *CyclicDependencyError) Unwrap() error {
	return ErrCyclicDependency
}

// EvaluationError wraps whatever stopped a selector body: a returned error,
// a recorded misuse or a recovered panic. The selector keeps its previous
// value.
type EvaluationError struct {
	Cell  string
	Err   error
	Panic any
}

func (e *EvaluationError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("rekoil: evaluating %s: panic: %v", e.Cell, e.Panic)
	}
	return fmt.Sprintf("rekoil: evaluating %s: %v", e.Cell, e.Err)
}

func (e *EvaluationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrEvaluation}
	}
	return []error{ErrEvaluation, e.Err}
}
