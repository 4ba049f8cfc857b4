package rekoil

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ReadAcross reads c on the dispatcher that owns it, waiting at most until
// ctx ends or the graph's cross-scope timeout passes. The read is not
// tracked.
func ReadAcross[T any](ctx context.Context, c Cell[T]) (T, error) {
	cc := c.core()
	if cc.isReleased() {
		return c.load(), nil
	}
	if d := cc.g.cfg.crossTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	var v T
	err := cc.g.run(ctx, func() {
		v = c.load()
	})
	if errors.Is(err, context.DeadlineExceeded) {
		return v, fmt.Errorf("%w: reading %s: %w", ErrCrossScopeTimeout, cc.name, err)
	}
	return v, err
}

// Bridge mirrors src, usually living on another dispatcher, into a new atom
// of dst. One goroutine per bridge forwards updates onto dst's dispatcher in
// the order src produced them; an update overtaken by a newer one before it
// is forwarded is dropped. The goroutine and the mirror stop when either side
// is released.
func Bridge[T any](ctx context.Context, src Cell[T], dst *Scope, opts ...CellOption[T]) (*Atom[T], error) {
	sc := src.core()
	if d := sc.g.cfg.crossTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	var zero T
	mirror := NewAtom(dst, zero, opts...)
	f := &forwarder[T]{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	f.stop = sync.OnceFunc(func() { close(f.done) })
	apply := func(n uint64, v T) error {
		var err error
		dErr := dst.g.run(context.Background(), func() {
			if n <= f.applied {
				return
			}
			f.applied = n
			err = mirror.set(v)
		})
		if dErr != nil && mirror.isReleased() {
			return nil
		}
		return errors.Join(dErr, err)
	}

	var (
		initial T
		first   uint64
		sub     *Subscription
	)
	err := sc.g.run(ctx, func() {
		initial = src.load()
		first = f.next()
		sub = &Subscription{cell: sc}
		sub.deliver = func() {
			f.post(src.load())
		}
		if sc.isReleased() {
			sub.cancelled.Store(true)
			return
		}
		if n := sc.g.node(sc.id); n != nil {
			n.subs = append(n.subs, sub)
			sc.scope.subs.Add(sub)
		}
	})
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: bridging %s: %w", ErrCrossScopeTimeout, sc.name, err)
	}
	if err != nil {
		_ = dst.g.run(context.Background(), mirror.release)
		return nil, err
	}

	dst.OnRelease(func() {
		sub.stop()
		f.stop()
	})
	sc.scope.OnRelease(f.stop)
	err = apply(first, initial)
	go f.forward(func(n uint64, v T) {
		if err := apply(n, v); err != nil {
			dst.g.report(mirror, err)
		}
	})
	return mirror, err
}

// forwarder carries the newest source value to a bridge's goroutine.
type forwarder[T any] struct {
	mu      sync.Mutex
	seq     uint64
	latest  T
	wake    chan struct{}
	done    chan struct{}
	stop    func()
	applied uint64 // owned by the destination dispatcher
}

func (f *forwarder[T]) next() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return f.seq
}

func (f *forwarder[T]) post(v T) {
	f.mu.Lock()
	f.seq++
	f.latest = v
	f.mu.Unlock()
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *forwarder[T]) forward(apply func(n uint64, v T)) {
	for {
		select {
		case <-f.done:
			return
		case <-f.wake:
		}
		f.mu.Lock()
		n, v := f.seq, f.latest
		f.mu.Unlock()
		apply(n, v)
	}
}
