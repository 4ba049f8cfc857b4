package rekoil_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/delaneyj/rekoil/rekoil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDependencyTightening(t *testing.T) {
	s := newTestScope(t)

	//  flag   A   B
	//     \   |  /
	//       C      reads A or B depending on flag
	flag := rekoil.NewAtom(s, true)
	a := rekoil.NewAtom(s, 1)
	b := rekoil.NewAtom(s, 10)
	callCount := 0
	c := rekoil.NewSelector(s, func(t *rekoil.Tracker) int {
		callCount++
		if rekoil.Get(t, flag) {
			return rekoil.Get(t, a)
		}
		return rekoil.Get(t, b)
	})
	assert.Equal(t, 1, c.Value())
	assert.Equal(t, 1, callCount)

	require.NoError(t, flag.Set(false))
	assert.Equal(t, 10, c.Value())
	assert.Equal(t, 2, callCount)

	require.NoError(t, a.Set(2))
	assert.Equal(t, 2, callCount, "A is no longer a dependency")

	require.NoError(t, b.Set(20))
	assert.Equal(t, 20, c.Value())
	assert.Equal(t, 3, callCount)
}

func TestDiamondEvaluatesOnce(t *testing.T) {
	s := newTestScope(t)

	//     A
	//   /   \
	//  B     C
	//   \   /
	//     D
	a := rekoil.NewAtom(s, 1)
	b := rekoil.NewSelector(s, func(t *rekoil.Tracker) int {
		return rekoil.Get(t, a) + 1
	})
	c := rekoil.NewSelector(s, func(t *rekoil.Tracker) int {
		return rekoil.Get(t, a) * 2
	})
	callCount := 0
	d := rekoil.NewSelector(s, func(t *rekoil.Tracker) string {
		callCount++
		return fmt.Sprintf("%d %d", rekoil.Get(t, b), rekoil.Get(t, c))
	})

	var seen []string
	d.Subscribe(func(v string) {
		seen = append(seen, v)
	})
	assert.Equal(t, "2 2", d.Value())
	callCount = 0

	require.NoError(t, a.Set(5))
	assert.Equal(t, 1, callCount)
	assert.Equal(t, []string{"6 10"}, seen)
}

func TestUnchangedSelectorStopsPropagation(t *testing.T) {
	s := newTestScope(t)

	//  A -> parity -> label
	a := rekoil.NewAtom(s, 2)
	parity := rekoil.NewSelector(s, func(t *rekoil.Tracker) bool {
		return rekoil.Get(t, a)%2 == 0
	})
	callCount := 0
	rekoil.NewSelector(s, func(t *rekoil.Tracker) string {
		callCount++
		if rekoil.Get(t, parity) {
			return "even"
		}
		return "odd"
	})

	require.NoError(t, a.Set(4))
	assert.Equal(t, 1, callCount)
	require.NoError(t, a.Set(5))
	assert.Equal(t, 2, callCount)
}

func TestCycleDetection(t *testing.T) {
	var errs []error
	s := newTestScope(t, rekoil.WithOnError(func(from rekoil.Source, err error) {
		errs = append(errs, err)
	}))

	//  flag -> X <-> Y   once flag is set
	flag := rekoil.NewAtom(s, false)
	var y *rekoil.Selector[int]
	x := rekoil.NewSelector(s, func(t *rekoil.Tracker) int {
		if rekoil.Get(t, flag) {
			return rekoil.Get(t, y) + 1
		}
		return 0
	}, rekoil.Named[int]("x"))
	y = rekoil.NewSelector(s, func(t *rekoil.Tracker) int {
		return rekoil.Get(t, x) + 1
	}, rekoil.Named[int]("y"))

	err := flag.Set(true)
	require.Error(t, err)
	assert.ErrorIs(t, err, rekoil.ErrCyclicDependency)
	assert.ErrorIs(t, err, rekoil.ErrEvaluation)
	var cyc *rekoil.CyclicDependencyError
	require.True(t, errors.As(err, &cyc))
	assert.Equal(t, []string{"x", "y", "x"}, cyc.Cells)
	assert.Len(t, errs, 1)

	assert.Equal(t, 0, x.Value())
	assert.Equal(t, 1, y.Value())
	assert.Error(t, x.Err())

	// nothing is left mid-evaluation: the graph keeps working
	require.NoError(t, flag.Set(false))
	assert.NoError(t, x.Err())
	assert.ErrorIs(t, flag.Set(true), rekoil.ErrCyclicDependency)
}

func TestSelfCycle(t *testing.T) {
	s := newTestScope(t)

	flag := rekoil.NewAtom(s, false)
	var self *rekoil.Selector[int]
	self = rekoil.NewSelector(s, func(t *rekoil.Tracker) int {
		if rekoil.Get(t, flag) {
			return rekoil.Get(t, self) + 1
		}
		return 1
	})

	err := flag.Set(true)
	assert.ErrorIs(t, err, rekoil.ErrCyclicDependency)
	assert.Equal(t, 1, self.Value())
}

func TestFailStatic(t *testing.T) {
	var errs []error
	s := newTestScope(t, rekoil.WithOnError(func(from rekoil.Source, err error) {
		errs = append(errs, err)
	}))

	a := rekoil.NewAtom(s, 1)
	checked := rekoil.NewSelectorE(s, func(t *rekoil.Tracker) (int, error) {
		v := rekoil.Get(t, a)
		if v < 0 {
			return 0, fmt.Errorf("negative: %d", v)
		}
		return v, nil
	})
	panicky := rekoil.NewSelector(s, func(t *rekoil.Tracker) int {
		v := rekoil.Get(t, a)
		if v > 100 {
			panic("too big")
		}
		return v
	})
	downstream := 0
	rekoil.NewSelector(s, func(t *rekoil.Tracker) int {
		downstream++
		return rekoil.Get(t, checked)
	})

	err := a.Set(-1)
	require.Error(t, err)
	var evalErr *rekoil.EvaluationError
	require.True(t, errors.As(err, &evalErr))
	assert.Contains(t, evalErr.Error(), "negative: -1")
	assert.Equal(t, 1, checked.Value())
	assert.Equal(t, 1, downstream, "a failed selector does not propagate")
	assert.Len(t, errs, 1)

	err = a.Set(101)
	require.Error(t, err)
	require.True(t, errors.As(err, &evalErr))
	assert.Equal(t, "too big", evalErr.Panic)
	assert.Equal(t, -1, panicky.Value())
	assert.Equal(t, 101, checked.Value())
	assert.NoError(t, checked.Err())
}

func TestFailedFirstEvaluationRecovers(t *testing.T) {
	var errs []error
	s := newTestScope(t, rekoil.WithOnError(func(from rekoil.Source, err error) {
		errs = append(errs, err)
	}))

	a := rekoil.NewAtom(s, -1)
	callCount := 0
	scaled := rekoil.NewSelectorE(s, func(t *rekoil.Tracker) (int, error) {
		callCount++
		v := rekoil.Get(t, a)
		if v < 0 {
			return 0, fmt.Errorf("negative: %d", v)
		}
		return v * 10, nil
	})
	require.Error(t, scaled.Err())
	assert.Equal(t, 0, scaled.Value())
	assert.Len(t, errs, 1)

	require.NoError(t, a.Set(5))
	assert.Equal(t, 2, callCount)
	assert.Equal(t, 50, scaled.Value())
	assert.NoError(t, scaled.Err())
}

func TestFailureLinksNewlyReadCells(t *testing.T) {
	s := newTestScope(t)

	//  flag -> sel       b is read for the first time by a failing run
	//          b --^
	flag := rekoil.NewAtom(s, false)
	b := rekoil.NewAtom(s, -1)
	callCount := 0
	sel := rekoil.NewSelectorE(s, func(t *rekoil.Tracker) (int, error) {
		callCount++
		if !rekoil.Get(t, flag) {
			return 0, nil
		}
		v := rekoil.Get(t, b)
		if v < 0 {
			return 0, fmt.Errorf("negative: %d", v)
		}
		return v, nil
	})
	assert.Equal(t, 0, sel.Value())

	assert.Error(t, flag.Set(true))
	assert.Equal(t, 0, sel.Value())
	assert.Equal(t, 2, callCount)

	require.NoError(t, b.Set(7))
	assert.Equal(t, 3, callCount)
	assert.Equal(t, 7, sel.Value())
	assert.NoError(t, sel.Err())
}

func TestStaleRead(t *testing.T) {
	s := newTestScope(t)

	a := rekoil.NewAtom(s, 1)
	bad := rekoil.NewSelector(s, func(t *rekoil.Tracker) int {
		return a.Value() + 1
	})
	assert.ErrorIs(t, bad.Err(), rekoil.ErrStaleRead)
	var stale *rekoil.StaleReadError
	require.True(t, errors.As(bad.Err(), &stale))
	assert.Equal(t, bad.Name(), stale.Reader)

	callCount := 0
	peeked := rekoil.NewSelector(s, func(t *rekoil.Tracker) int {
		callCount++
		return rekoil.Peek(t, a) + 1
	})
	assert.Equal(t, 2, peeked.Value())
	require.NoError(t, a.Set(5))
	assert.Equal(t, 1, callCount, "peek does not track")
	assert.Equal(t, 2, peeked.Value())
}

func TestRequeueOnDeeperDependency(t *testing.T) {
	s := newTestScope(t)

	//  A -> S1 -> S2 -> S3
	//  |                 :
	//  +------ R  <......+  once flag is set R reads S3 and moves above it
	a := rekoil.NewAtom(s, 1)
	s1 := rekoil.NewSelector(s, func(t *rekoil.Tracker) int { return rekoil.Get(t, a) + 1 })
	s2 := rekoil.NewSelector(s, func(t *rekoil.Tracker) int { return rekoil.Get(t, s1) + 1 })
	s3 := rekoil.NewSelector(s, func(t *rekoil.Tracker) int { return rekoil.Get(t, s2) + 1 })
	flag := rekoil.NewAtom(s, false)
	r := rekoil.NewSelector(s, func(t *rekoil.Tracker) int {
		if rekoil.Get(t, flag) {
			return rekoil.Get(t, s3)
		}
		return rekoil.Get(t, a)
	})

	var seen []int
	r.Subscribe(func(v int) {
		seen = append(seen, v)
	})

	require.NoError(t, s.Batch(func() error {
		if err := flag.Set(true); err != nil {
			return err
		}
		return a.Set(10)
	}))
	assert.Equal(t, 13, r.Value())
	assert.Equal(t, []int{13}, seen, "R never publishes a value computed from stale S3")

	require.NoError(t, a.Set(20))
	assert.Equal(t, []int{13, 23}, seen)
}

func TestWritesFromSubscribersAreDeferred(t *testing.T) {
	s := newTestScope(t)

	//  A -> double --+
	//  |             +-> sum
	//  +-(sub)-> B --+
	a := rekoil.NewAtom(s, 1)
	b := rekoil.NewAtom(s, 0)
	double := rekoil.NewSelector(s, func(t *rekoil.Tracker) int {
		return rekoil.Get(t, a) * 2
	})
	a.Subscribe(func(v int) {
		assert.NoError(t, b.Set(v*10))
	})
	sum := rekoil.NewSelector(s, func(t *rekoil.Tracker) int {
		return rekoil.Get(t, b) + rekoil.Get(t, double)
	})
	var seen []int
	sum.Subscribe(func(v int) {
		seen = append(seen, v)
	})

	require.NoError(t, a.Set(2))
	assert.Equal(t, 24, sum.Value())
	assert.Equal(t, []int{4, 24}, seen)
}

func TestWritesFromSelectorBodiesAreDeferred(t *testing.T) {
	s := newTestScope(t)

	a := rekoil.NewAtom(s, 1)
	last := rekoil.NewAtom(s, 0)
	rekoil.NewSelector(s, func(t *rekoil.Tracker) int {
		v := rekoil.Get(t, a)
		if err := last.Set(v); err != nil {
			panic(err)
		}
		return v
	})
	assert.Equal(t, 1, last.Value())

	require.NoError(t, a.Set(7))
	assert.Equal(t, 7, last.Value())
}

func TestDeferredWriteLimit(t *testing.T) {
	s := newTestScope(t, rekoil.WithMaxDeferredWrites(10))

	a := rekoil.NewAtom(s, 0)
	a.Subscribe(func(v int) {
		_ = a.Set(v + 1)
	})

	err := a.Set(1)
	assert.ErrorIs(t, err, rekoil.ErrDeferredWriteLimit)
	assert.Equal(t, 11, a.Value())
}

func TestSelectorCreatedInsideSubscriber(t *testing.T) {
	s := newTestScope(t)

	a := rekoil.NewAtom(s, 1)
	var late *rekoil.Selector[int]
	a.Subscribe(func(int) {
		if late == nil {
			late = rekoil.NewSelector(s, func(t *rekoil.Tracker) int {
				return rekoil.Get(t, a) * 100
			})
		}
	})

	require.NoError(t, a.Set(2))
	require.NotNil(t, late)
	assert.Equal(t, 200, late.Value())

	require.NoError(t, a.Set(3))
	assert.Equal(t, 300, late.Value())
}

type passCounter struct {
	passes []rekoil.PassStats
}

func (p *passCounter) ObservePass(stats rekoil.PassStats) {
	p.passes = append(p.passes, stats)
}

func TestObserver(t *testing.T) {
	obs := &passCounter{}
	s := newTestScope(t, rekoil.WithObserver(obs))

	a := rekoil.NewAtom(s, 1)
	b := rekoil.NewSelector(s, func(t *rekoil.Tracker) int { return rekoil.Get(t, a) + 1 })
	b.Subscribe(func(int) {})

	require.NoError(t, a.Set(2))
	require.Len(t, obs.passes, 1)
	stats := obs.passes[0]
	assert.Equal(t, 1, stats.Roots)
	assert.Equal(t, 1, stats.Evaluations)
	assert.Equal(t, 1, stats.Changed)
	assert.Equal(t, 1, stats.Notifications)
}
