package rekoil

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"
)

// Dispatcher is the concurrency context a graph runs on. Every graph
// operation is executed through Dispatch, so at most one runs at a time.
type Dispatcher interface {
	// Dispatch runs fn on the context and waits for it. Calls made from
	// inside fn run inline.
	Dispatch(ctx context.Context, fn func()) error
	// Owns reports whether the calling goroutine is currently inside
	// Dispatch.
	Owns() bool
}

// dispatching maps a goroutine id to the graphs it is running work for,
// outermost first. Only the goroutine itself touches its entry.
var dispatching sync.Map

func enter(g *graph) (leave func()) {
	id := goid.Get()
	v, _ := dispatching.LoadOrStore(id, new([]*graph))
	stack := v.(*[]*graph)
	*stack = append(*stack, g)
	return func() {
		*stack = (*stack)[:len(*stack)-1]
		if len(*stack) == 0 {
			dispatching.Delete(id)
		}
	}
}

func entered() []*graph {
	if v, ok := dispatching.Load(goid.Get()); ok {
		return *v.(*[]*graph)
	}
	return nil
}

// SerialDispatcher runs work on the calling goroutine, one caller at a time.
type SerialDispatcher struct {
	sem   chan struct{}
	owner atomic.Int64
}

func NewSerialDispatcher() *SerialDispatcher {
	return &SerialDispatcher{sem: make(chan struct{}, 1)}
}

func (d *SerialDispatcher) Owns() bool {
	return d.owner.Load() == goid.Get()
}

func (d *SerialDispatcher) Dispatch(ctx context.Context, fn func()) error {
	if d.Owns() {
		fn()
		return nil
	}

	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	d.owner.Store(goid.Get())
	defer func() {
		d.owner.Store(0)
		<-d.sem
	}()

	fn()
	return nil
}

type loopTask struct {
	fn     func()
	result chan any
}

// LoopDispatcher owns a goroutine that executes all posted work, like a UI
// thread.
type LoopDispatcher struct {
	tasks     chan loopTask
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	gid       atomic.Int64
}

func NewLoopDispatcher() *LoopDispatcher {
	d := &LoopDispatcher{
		tasks:   make(chan loopTask),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	ready := make(chan struct{})
	go d.loop(ready)
	<-ready
	return d
}

func (d *LoopDispatcher) loop(ready chan struct{}) {
	defer close(d.stopped)
	d.gid.Store(goid.Get())
	close(ready)

	for {
		select {
		case t := <-d.tasks:
			t.result <- runRecovered(t.fn)
		case <-d.done:
			return
		}
	}
}

func runRecovered(fn func()) (p any) {
	defer func() {
		p = recover()
	}()
	fn()
	return nil
}

func (d *LoopDispatcher) Owns() bool {
	return d.gid.Load() == goid.Get()
}

// Dispatch posts fn to the loop. A panic in fn is re-raised on the caller.
// If ctx ends after the loop accepted fn, fn still runs to completion.
func (d *LoopDispatcher) Dispatch(ctx context.Context, fn func()) error {
	if d.Owns() {
		fn()
		return nil
	}

	t := loopTask{fn: fn, result: make(chan any, 1)}
	select {
	case d.tasks <- t:
	case <-d.done:
		return ErrDispatcherClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case p := <-t.result:
		if p != nil {
			panic(p)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the loop after the task in progress, if any.
func (d *LoopDispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.done)
	})
	if !d.Owns() {
		<-d.stopped
	}
}
