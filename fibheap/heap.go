// Package fibheap is a Fibonacci heap stored in a slice arena.
//
// Nodes are addressed by Handle. A handle stays valid until its node is
// deleted or extracted, including across UpdateKey calls in either direction.
// A Heap is not safe for concurrent use.
package fibheap

import (
	"cmp"
	"errors"
	"sync/atomic"
)

type Direction uint8

const (
	Min Direction = iota
	Max
)

func (d Direction) String() string {
	if d == Max {
		return "max"
	}
	return "min"
}

var (
	ErrForeignHandle = errors.New("fibheap: handle belongs to another heap")
	ErrStaleHandle   = errors.New("fibheap: handle refers to a removed node")
)

// Handle identifies a node in the heap that created it. The zero Handle is
// never valid.
type Handle struct {
	heap uint64
	slot int32
	gen  uint32
}

func (h Handle) IsZero() bool {
	return h.heap == 0
}

const none int32 = -1

var heapIDs atomic.Uint64

type node[T any] struct {
	value                     T
	parent, child, prev, next int32
	rank                      int32
	gen                       uint32
	marked                    bool
	live                      bool
}

type Heap[T any] struct {
	id    uint64
	cmp   func(a, b T) int
	dir   Direction
	nodes []node[T]
	free  []int32
	top   int32
	size  int

	roots []int32
	ranks []int32
}

func New[T any](cmp func(a, b T) int, dir Direction) *Heap[T] {
	return &Heap[T]{
		id:  heapIDs.Add(1),
		cmp: cmp,
		dir: dir,
		top: none,
	}
}

func NewOrdered[T cmp.Ordered](dir Direction) *Heap[T] {
	return New(cmp.Compare[T], dir)
}

func (h *Heap[T]) Direction() Direction {
	return h.dir
}

func (h *Heap[T]) Len() int {
	return h.size
}

// Peek returns the most extreme value without removing it.
func (h *Heap[T]) Peek() (v T, ok bool) {
	if h.top == none {
		return v, false
	}
	return h.nodes[h.top].value, true
}

func (h *Heap[T]) Insert(v T) Handle {
	i := h.alloc(v)
	h.addRoot(i)
	h.size++
	return Handle{heap: h.id, slot: i, gen: h.nodes[i].gen}
}

// Value returns the current value stored under hd.
func (h *Heap[T]) Value(hd Handle) (v T, err error) {
	i, err := h.resolve(hd)
	if err != nil {
		return v, err
	}
	return h.nodes[i].value, nil
}

func (h *Heap[T]) Contains(hd Handle) bool {
	_, err := h.resolve(hd)
	return err == nil
}

// UpdateKey replaces the value under hd. Moving the value toward the extreme
// is a cut with cascading cuts; moving it away removes and reinserts the
// node in place, so hd remains valid either way.
func (h *Heap[T]) UpdateKey(hd Handle, v T) error {
	i, err := h.resolve(hd)
	if err != nil {
		return err
	}

	n := &h.nodes[i]
	if h.before(n.value, v) {
		h.detach(i)
		n = &h.nodes[i]
		n.value = v
		n.parent, n.child, n.rank, n.marked = none, none, 0, false
		n.prev, n.next = i, i
		h.addRoot(i)
		h.size++
		return nil
	}

	n.value = v
	if p := n.parent; p != none && h.before(v, h.nodes[p].value) {
		h.cut(i, p)
		h.cascadingCut(p)
	}
	if h.before(v, h.nodes[h.top].value) {
		h.top = i
	}
	return nil
}

func (h *Heap[T]) Delete(hd Handle) error {
	i, err := h.resolve(hd)
	if err != nil {
		return err
	}
	h.detach(i)
	h.release(i)
	return nil
}

// ExtractExtreme removes and returns the most extreme value.
func (h *Heap[T]) ExtractExtreme() (v T, ok bool) {
	if h.top == none {
		return v, false
	}
	i := h.top
	v = h.nodes[i].value
	h.detach(i)
	h.release(i)
	return v, true
}

// Clear removes every node; all outstanding handles become stale.
func (h *Heap[T]) Clear() {
	for i := range h.nodes {
		if h.nodes[i].live {
			h.release(int32(i))
		}
	}
	h.top = none
	h.size = 0
}

// before reports whether a is strictly more extreme than b.
func (h *Heap[T]) before(a, b T) bool {
	c := h.cmp(a, b)
	if h.dir == Max {
		return c > 0
	}
	return c < 0
}

func (h *Heap[T]) resolve(hd Handle) (int32, error) {
	if hd.heap != h.id {
		return none, ErrForeignHandle
	}
	if hd.slot < 0 || int(hd.slot) >= len(h.nodes) {
		return none, ErrStaleHandle
	}
	n := &h.nodes[hd.slot]
	if !n.live || n.gen != hd.gen {
		return none, ErrStaleHandle
	}
	return hd.slot, nil
}

func (h *Heap[T]) alloc(v T) int32 {
	var i int32
	if last := len(h.free) - 1; last >= 0 {
		i = h.free[last]
		h.free = h.free[:last]
	} else {
		h.nodes = append(h.nodes, node[T]{gen: 1})
		i = int32(len(h.nodes) - 1)
	}
	n := &h.nodes[i]
	n.value = v
	n.parent, n.child, n.rank, n.marked = none, none, 0, false
	n.prev, n.next = i, i
	n.live = true
	return i
}

func (h *Heap[T]) release(i int32) {
	var zero T
	n := &h.nodes[i]
	n.value = zero
	n.live = false
	n.gen++
	h.free = append(h.free, i)
}

func (h *Heap[T]) insertAfter(anchor, i int32) {
	next := h.nodes[anchor].next
	h.nodes[i].prev = anchor
	h.nodes[i].next = next
	h.nodes[next].prev = i
	h.nodes[anchor].next = i
}

func (h *Heap[T]) unlink(i int32) {
	n := &h.nodes[i]
	h.nodes[n.prev].next = n.next
	h.nodes[n.next].prev = n.prev
	n.prev, n.next = i, i
}

func (h *Heap[T]) addRoot(i int32) {
	n := &h.nodes[i]
	n.parent = none
	n.marked = false
	if h.top == none {
		n.prev, n.next = i, i
		h.top = i
		return
	}
	h.insertAfter(h.top, i)
	if h.before(n.value, h.nodes[h.top].value) {
		h.top = i
	}
}

// detach takes i out of the forest, promoting its children to roots.
// Consolidation only happens when i was the extreme root.
func (h *Heap[T]) detach(i int32) {
	if p := h.nodes[i].parent; p != none {
		h.cut(i, p)
		h.cascadingCut(p)
	}

	for c := h.nodes[i].child; c != none; c = h.nodes[i].child {
		h.removeChild(i, c)
		h.nodes[c].parent = none
		h.nodes[c].marked = false
		h.insertAfter(i, c)
	}

	next := h.nodes[i].next
	h.unlink(i)
	h.size--

	if i != h.top {
		return
	}
	if next == i {
		h.top = none
		return
	}
	h.top = next
	h.consolidate()
}

func (h *Heap[T]) removeChild(p, c int32) {
	if h.nodes[c].next == c {
		h.nodes[p].child = none
	} else {
		if h.nodes[p].child == c {
			h.nodes[p].child = h.nodes[c].next
		}
		h.unlink(c)
	}
	h.nodes[p].rank--
}

// cut moves x from its parent p into the root list.
func (h *Heap[T]) cut(x, p int32) {
	h.removeChild(p, x)
	h.nodes[x].parent = none
	h.nodes[x].marked = false
	h.insertAfter(h.top, x)
}

func (h *Heap[T]) cascadingCut(y int32) {
	for {
		p := h.nodes[y].parent
		if p == none {
			return
		}
		if !h.nodes[y].marked {
			h.nodes[y].marked = true
			return
		}
		h.cut(y, p)
		y = p
	}
}

// link makes root y a child of root x.
func (h *Heap[T]) link(y, x int32) {
	h.unlink(y)
	h.nodes[y].parent = x
	h.nodes[y].marked = false
	if c := h.nodes[x].child; c == none {
		h.nodes[x].child = y
	} else {
		h.insertAfter(c, y)
	}
	h.nodes[x].rank++
}

func (h *Heap[T]) consolidate() {
	roots := h.roots[:0]
	for i := h.top; ; {
		roots = append(roots, i)
		i = h.nodes[i].next
		if i == h.top {
			break
		}
	}

	ranks := h.ranks[:0]
	for _, x := range roots {
		r := h.nodes[x].rank
		for {
			for int(r) >= len(ranks) {
				ranks = append(ranks, none)
			}
			y := ranks[r]
			if y == none {
				break
			}
			if h.before(h.nodes[y].value, h.nodes[x].value) {
				x, y = y, x
			}
			h.link(y, x)
			ranks[r] = none
			r++
		}
		ranks[r] = x
	}

	h.top = none
	for _, x := range ranks {
		if x == none {
			continue
		}
		if h.top == none || h.before(h.nodes[x].value, h.nodes[h.top].value) {
			h.top = x
		}
	}

	h.roots = roots[:0]
	h.ranks = ranks[:0]
}
