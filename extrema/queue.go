// Package extrema keeps a bounded FIFO window of graphable samples together
// with its running minimum and maximum.
//
// The window is a ring buffer. Every sample is also inserted into two
// Fibonacci heaps, a min-heap over Bottom and a max-heap over Top, so the
// extremes are O(1) reads and evicting the oldest sample is a handle delete.
package extrema

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/delaneyj/rekoil/fibheap"
	"github.com/delaneyj/rekoil/graphable"
	"github.com/delaneyj/rekoil/rekoil"
)

var ErrCapacity = errors.New("extrema: capacity must not be negative")

// Observer receives queue activity. It is called without the queue lock held.
type Observer interface {
	ObservePush(queue string, evicted bool)
	ObserveReset(queue string, size int)
}

type config struct {
	name     string
	observer Observer
	logger   *slog.Logger
}

type Option func(*config)

func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

func WithObserver(o Observer) Option {
	return func(c *config) {
		c.observer = o
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// key orders heap entries by scalar, then by arrival so equal scalars from
// different samples never collide.
type key struct {
	v   float64
	seq uint64
}

func (k key) String() string {
	return strconv.FormatFloat(k.v, 'g', -1, 64)
}

func compareKeys(a, b key) int {
	if c := cmp.Compare(a.v, b.v); c != 0 {
		return c
	}
	return cmp.Compare(a.seq, b.seq)
}

type entry[T graphable.Graphable] struct {
	value T
	seq   uint64
	low   fibheap.Handle
	high  fibheap.Handle
}

// Queue is safe for concurrent use. Mutations are serialized by one mutex;
// the atoms are updated afterwards on the scope's dispatcher, one batch per
// mutation, newest state wins.
type Queue[T graphable.Graphable] struct {
	cfg     config
	scope   *rekoil.Scope
	initial T

	mu      sync.Mutex
	ring    []entry[T]
	head    int
	size    int
	seq     uint64
	version uint64
	bottoms *fibheap.Heap[key]
	tops    *fibheap.Heap[key]
	applied uint64 // owned by the scope's dispatcher

	// Added is the most recently pushed sample, Removed the most recently
	// evicted one. Start and End are the oldest and newest samples in the
	// window; Min and Max its extremes, 0 when empty, including right after
	// New whatever the initial sample is.
	Added   *rekoil.Atom[T]
	Removed *rekoil.Atom[T]
	Start   *rekoil.Atom[T]
	End     *rekoil.Atom[T]
	Min     *rekoil.Atom[float64]
	Max     *rekoil.Atom[float64]
}

func New[T graphable.Graphable](s *rekoil.Scope, initial T, capacity int, opts ...Option) (*Queue[T], error) {
	if capacity < 0 {
		return nil, fmt.Errorf("%w: %d", ErrCapacity, capacity)
	}
	cfg := config{name: "queue", logger: s.Logger()}
	for _, opt := range opts {
		opt(&cfg)
	}

	always := rekoil.WithEqual(func(a, b T) bool { return false })
	q := &Queue[T]{
		cfg:     cfg,
		scope:   s,
		initial: initial,
		ring:    make([]entry[T], capacity),
		bottoms: fibheap.New(compareKeys, fibheap.Min),
		tops:    fibheap.New(compareKeys, fibheap.Max),
		Added:   rekoil.NewAtom(s, initial, always, rekoil.Named[T](cfg.name+".added")),
		Removed: rekoil.NewAtom(s, initial, always, rekoil.Named[T](cfg.name+".removed")),
		Start:   rekoil.NewAtom(s, initial, rekoil.Named[T](cfg.name+".start")),
		End:     rekoil.NewAtom(s, initial, rekoil.Named[T](cfg.name+".end")),
		Min:     rekoil.NewAtom(s, 0.0, rekoil.Named[float64](cfg.name+".min")),
		Max:     rekoil.NewAtom(s, 0.0, rekoil.Named[float64](cfg.name+".max")),
	}
	return q, nil
}

func (q *Queue[T]) Name() string {
	return q.cfg.name
}

// Push appends e, evicting the oldest sample when the window is full. With a
// capacity of zero it does nothing.
func (q *Queue[T]) Push(e T) error {
	q.mu.Lock()
	if len(q.ring) == 0 {
		q.mu.Unlock()
		return nil
	}

	var (
		removed T
		evicted bool
		err     error
	)
	if q.size == len(q.ring) {
		removed, err = q.evictLocked()
		evicted = true
	}
	q.appendLocked(e)
	st := q.stateLocked()
	st.added = &e
	if evicted {
		st.removed = &removed
	}
	q.mu.Unlock()

	if err != nil {
		q.cfg.logger.Error("extrema: heap out of sync", "queue", q.cfg.name, "error", err)
	}
	if o := q.cfg.observer; o != nil {
		o.ObservePush(q.cfg.name, evicted)
	}
	return errors.Join(err, q.publish(st))
}

// SetAll replaces the window with list and sets the capacity to len(list).
func (q *Queue[T]) SetAll(list []T) error {
	q.mu.Lock()
	q.resetLocked(len(list))
	for _, e := range list {
		q.appendLocked(e)
	}
	st := q.stateLocked()
	if n := len(list); n > 0 {
		st.added = &list[n-1]
	}
	q.mu.Unlock()

	if o := q.cfg.observer; o != nil {
		o.ObserveReset(q.cfg.name, len(list))
	}
	return q.publish(st)
}

// Clear empties the window and keeps the capacity.
func (q *Queue[T]) Clear() error {
	q.mu.Lock()
	q.resetLocked(len(q.ring))
	st := q.stateLocked()
	q.mu.Unlock()

	if o := q.cfg.observer; o != nil {
		o.ObserveReset(q.cfg.name, 0)
	}
	return q.publish(st)
}

// SetCapacity resizes the window, evicting the oldest samples that no longer
// fit.
func (q *Queue[T]) SetCapacity(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: %d", ErrCapacity, n)
	}

	q.mu.Lock()
	var (
		removed *T
		errs    []error
	)
	for q.size > n {
		e, err := q.evictLocked()
		errs = append(errs, err)
		removed = &e
	}
	ring := make([]entry[T], n)
	for i := 0; i < q.size; i++ {
		ring[i] = q.ring[(q.head+i)%len(q.ring)]
	}
	q.ring, q.head = ring, 0
	st := q.stateLocked()
	st.removed = removed
	q.mu.Unlock()

	errs = append(errs, q.publish(st))
	return errors.Join(errs...)
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

func (q *Queue[T]) Cap() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ring)
}

// CurrentMin is the lowest Bottom in the window, 0 when empty.
func (q *Queue[T]) CurrentMin() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.minLocked()
}

// CurrentMax is the highest Top in the window, 0 when empty.
func (q *Queue[T]) CurrentMax() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.maxLocked()
}

// Snapshot copies the window, oldest first.
func (q *Queue[T]) Snapshot() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]T, q.size)
	for i := range out {
		out[i] = q.ring[(q.head+i)%len(q.ring)].value
	}
	return out
}

// At returns the i-th oldest sample.
func (q *Queue[T]) At(i int) (v T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i < 0 || i >= q.size {
		return v, false
	}
	return q.ring[(q.head+i)%len(q.ring)].value, true
}

// Render draws both heaps; see fibheap.Heap.Render.
func (q *Queue[T]) Render() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return "bottoms\n" + q.bottoms.Render() + "\ntops\n" + q.tops.Render()
}

func (q *Queue[T]) minLocked() float64 {
	k, ok := q.bottoms.Peek()
	if !ok {
		return 0
	}
	return k.v
}

func (q *Queue[T]) maxLocked() float64 {
	k, ok := q.tops.Peek()
	if !ok {
		return 0
	}
	return k.v
}

func (q *Queue[T]) appendLocked(e T) {
	q.seq++
	ent := entry[T]{
		value: e,
		seq:   q.seq,
		low:   q.bottoms.Insert(key{v: e.Bottom(), seq: q.seq}),
		high:  q.tops.Insert(key{v: e.Top(), seq: q.seq}),
	}
	q.ring[(q.head+q.size)%len(q.ring)] = ent
	q.size++
}

func (q *Queue[T]) evictLocked() (T, error) {
	ent := q.ring[q.head]
	q.ring[q.head] = entry[T]{}
	q.head = (q.head + 1) % len(q.ring)
	q.size--

	err := errors.Join(q.bottoms.Delete(ent.low), q.tops.Delete(ent.high))
	if err != nil {
		err = fmt.Errorf("extrema: evicting sample %d: %w", ent.seq, err)
	}
	return ent.value, err
}

func (q *Queue[T]) resetLocked(capacity int) {
	q.bottoms.Clear()
	q.tops.Clear()
	q.ring = make([]entry[T], capacity)
	q.head, q.size = 0, 0
}

type state[T any] struct {
	version    uint64
	added      *T
	removed    *T
	start, end T
	min, max   float64
}

func (q *Queue[T]) stateLocked() state[T] {
	q.version++
	st := state[T]{
		version: q.version,
		start:   q.initial,
		end:     q.initial,
		min:     q.minLocked(),
		max:     q.maxLocked(),
	}
	if q.size > 0 {
		st.start = q.ring[q.head].value
		st.end = q.ring[(q.head+q.size-1)%len(q.ring)].value
	}
	return st
}

// publish applies st to the atoms in one batch unless a newer state already
// landed.
func (q *Queue[T]) publish(st state[T]) error {
	return q.scope.Batch(func() error {
		if st.version <= q.applied {
			return nil
		}
		q.applied = st.version

		var errs []error
		if st.removed != nil {
			errs = append(errs, q.Removed.Set(*st.removed))
		}
		if st.added != nil {
			errs = append(errs, q.Added.Set(*st.added))
		}
		errs = append(errs,
			q.Start.Set(st.start),
			q.End.Set(st.end),
			q.Min.Set(st.min),
			q.Max.Set(st.max),
		)
		return errors.Join(errs...)
	})
}
