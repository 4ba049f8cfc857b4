package rekoil

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/delaneyj/rekoil/fibheap"
)

type cellID struct {
	slot int32
	gen  uint32
}

type cellState uint8

const (
	stateClean cellState = iota
	statePending
	stateEvaluating
	stateDone
)

type evalFunc func(t *Tracker) (changed bool, err error)

type node struct {
	gen        uint32
	live       bool
	src        Source
	height     int
	state      cellState
	eval       evalFunc
	deps       mapset.Set[cellID]
	dependents mapset.Set[cellID]
	subs       []*Subscription
	queued     bool
	frontier   fibheap.Handle
}

type frontierKey struct {
	height int
	id     cellID
}

func compareFrontier(a, b frontierKey) int {
	if c := cmp.Compare(a.height, b.height); c != 0 {
		return c
	}
	return cmp.Compare(a.id.slot, b.id.slot)
}

type batchRoot struct {
	id      cellID
	changed func() bool
}

// graph is the arena of cells shared by a root scope and its Child scopes.
// All fields are owned by the dispatcher.
type graph struct {
	cfg        config
	logger     *slog.Logger
	dispatcher Dispatcher

	nodes []*node
	free  []int32
	seq   int

	frontier   *fibheap.Heap[frontierKey]
	inPass     bool
	draining   bool
	stack      []*Tracker
	touched    []cellID
	finalized  []cellID
	deferred   []func() error
	batchDepth int
	batchRoots []batchRoot

	stats PassStats
	errs  []error
}

func newGraph(cfg config) *graph {
	if cfg.dispatcher == nil {
		cfg.dispatcher = NewSerialDispatcher()
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	return &graph{
		cfg:        cfg,
		logger:     cfg.logger,
		dispatcher: cfg.dispatcher,
		frontier:   fibheap.New(compareFrontier, fibheap.Min),
	}
}

func (g *graph) run(ctx context.Context, fn func()) error {
	return g.dispatcher.Dispatch(ctx, func() {
		defer enter(g)()
		fn()
	})
}

// call runs fn for a public entry point. From inside another graph's
// dispatch the wait is bounded by the cross-scope timeout, so two loops
// reaching into each other fail with ErrCrossScopeTimeout instead of
// blocking forever.
func (g *graph) call(op, name string, fn func()) error {
	ctx := context.Background()
	if d := g.cfg.crossTimeout; d > 0 && !g.dispatcher.Owns() && len(g.foreign()) > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	err := g.run(ctx, fn)
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %s %s: %w", ErrCrossScopeTimeout, op, name, err)
	}
	return err
}

// foreign lists the other graphs the calling goroutine is dispatching for,
// innermost first.
func (g *graph) foreign() []*graph {
	var out []*graph
	for _, o := range slices.Backward(entered()) {
		if o != g && !slices.Contains(out, o) {
			out = append(out, o)
		}
	}
	return out
}

// busy is true while a pass or an evaluation is on the stack; writes made
// then are deferred.
func (g *graph) busy() bool {
	return g.inPass || len(g.stack) > 0
}

func (g *graph) current() *Tracker {
	if len(g.stack) == 0 {
		return nil
	}
	return g.stack[len(g.stack)-1]
}

func (g *graph) report(from Source, err error) {
	if err == nil {
		return
	}
	if g.cfg.onError != nil {
		g.cfg.onError(from, err)
		return
	}
	g.logger.Warn("rekoil error", "source", from.Name(), "error", err)
}

func (g *graph) nextName(kind string) string {
	g.seq++
	return fmt.Sprintf("%s#%d", kind, g.seq)
}

func (g *graph) node(id cellID) *node {
	if id.slot < 0 || int(id.slot) >= len(g.nodes) {
		return nil
	}
	n := g.nodes[id.slot]
	if n == nil || !n.live || n.gen != id.gen {
		return nil
	}
	return n
}

func (g *graph) alloc(src Source, height int, eval evalFunc) cellID {
	var slot int32
	var gen uint32 = 1
	if last := len(g.free) - 1; last >= 0 {
		slot = g.free[last]
		g.free = g.free[:last]
		gen = g.nodes[slot].gen + 1
	} else {
		g.nodes = append(g.nodes, nil)
		slot = int32(len(g.nodes) - 1)
	}

	// a fresh node so evaluations holding the old pointer never see the reuse
	g.nodes[slot] = &node{
		gen:        gen,
		live:       true,
		src:        src,
		height:     height,
		eval:       eval,
		deps:       mapset.NewThreadUnsafeSet[cellID](),
		dependents: mapset.NewThreadUnsafeSet[cellID](),
	}
	return cellID{slot: slot, gen: gen}
}

func (g *graph) release(id cellID) {
	n := g.node(id)
	if n == nil {
		return
	}
	if n.queued {
		_ = g.frontier.Delete(n.frontier)
		n.queued = false
	}
	n.deps.Each(func(d cellID) bool {
		if dn := g.node(d); dn != nil {
			dn.dependents.Remove(id)
		}
		return false
	})
	n.dependents.Each(func(d cellID) bool {
		if dn := g.node(d); dn != nil {
			dn.deps.Remove(id)
		}
		return false
	})
	for _, s := range n.subs {
		s.cancelled.Store(true)
	}

	n.live = false
	n.subs = nil
	n.eval = nil
	n.src = nil
	g.free = append(g.free, id.slot)
}

func (g *graph) unsubscribe(s *Subscription) {
	if n := g.node(s.cell.id); n != nil {
		n.subs = slices.DeleteFunc(n.subs, func(o *Subscription) bool {
			return o == s
		})
	}
	s.cell.scope.subs.Remove(s)
}

func (g *graph) enqueue(id cellID, n *node) {
	n.queued = true
	n.frontier = g.frontier.Insert(frontierKey{height: n.height, id: id})
	g.touched = append(g.touched, id)
}

// raise lifts id to at least h and pushes its dependents above it.
func (g *graph) raise(id cellID, h int) {
	type item struct {
		id cellID
		h  int
	}
	stack := []item{{id, h}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := g.node(it.id)
		if n == nil || n.height >= it.h {
			continue
		}
		n.height = it.h
		if n.queued {
			_ = g.frontier.UpdateKey(n.frontier, frontierKey{height: it.h, id: it.id})
		}
		n.dependents.Each(func(d cellID) bool {
			stack = append(stack, item{d, it.h + 1})
			return false
		})
	}
}

// unsettledBelow reports whether cells under height h may still change in
// the running pass.
func (g *graph) unsettledBelow(h int) bool {
	k, ok := g.frontier.Peek()
	return ok && k.height < h
}

// path searches from through its transitive dependents for to and returns
// the names along the way, closed back to from. nil means to does not
// depend on from.
func (g *graph) path(from, to cellID) []string {
	prev := map[cellID]cellID{from: from}
	queue := []cellID{from}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if id == to {
			var names []string
			for at := to; ; at = prev[at] {
				names = append(names, g.name(at))
				if at == from {
					break
				}
			}
			slices.Reverse(names)
			return append(names, g.name(from))
		}
		if n := g.node(id); n != nil {
			n.dependents.Each(func(d cellID) bool {
				if _, seen := prev[d]; !seen {
					prev[d] = id
					queue = append(queue, d)
				}
				return false
			})
		}
	}
	return nil
}

func (g *graph) name(id cellID) string {
	if n := g.node(id); n != nil && n.src != nil {
		return n.src.Name()
	}
	return "released"
}

// link replaces the dependency set of id with deps, in read order.
func (g *graph) link(id cellID, n *node, deps []cellID) {
	next := mapset.NewThreadUnsafeSet[cellID]()
	height := 1
	for _, d := range deps {
		dn := g.node(d)
		if dn == nil {
			continue
		}
		next.Add(d)
		dn.dependents.Add(id)
		height = max(height, dn.height+1)
	}
	n.deps.Difference(next).Each(func(d cellID) bool {
		if dn := g.node(d); dn != nil {
			dn.dependents.Remove(id)
		}
		return false
	})
	n.deps = next
	g.raise(id, height)
}

// extend adds the edges a failed evaluation read up to its failure, keeping
// the old ones, so a later write to any of them retries the body. Edges that
// would close a cycle are left out.
func (g *graph) extend(id cellID, n *node, deps []cellID) {
	height := n.height
	for _, d := range deps {
		dn := g.node(d)
		if dn == nil || n.deps.Contains(d) || g.path(id, d) != nil {
			continue
		}
		n.deps.Add(d)
		dn.dependents.Add(id)
		height = max(height, dn.height+1)
	}
	g.raise(id, height)
}

func (g *graph) evaluate(id cellID, n *node, fromFrontier bool) bool {
	t := newTracker(g, id, n.src.Name(), fromFrontier)
	prev := n.state
	n.state = stateEvaluating
	g.stack = append(g.stack, t)
	changed, err := n.eval(t)
	g.stack = g.stack[:len(g.stack)-1]
	t.closed = true
	g.stats.Evaluations++

	if errors.Is(err, errRequeue) {
		g.stats.Requeues++
		n.state = statePending
		if g.node(id) != nil {
			g.enqueue(id, n)
		}
		return false
	}

	if fromFrontier {
		n.state = stateDone
	} else {
		n.state = prev
	}

	if err != nil {
		g.stats.Failures++
		if errors.Is(err, ErrCyclicDependency) {
			g.stats.Cycles++
		}
		if g.inPass {
			g.errs = append(g.errs, err)
		}
		g.report(n.src, err)
		if g.node(id) != nil {
			g.extend(id, n, t.deps)
		}
		return false
	}
	if g.node(id) == nil {
		return false
	}

	g.link(id, n, t.deps)
	if changed {
		g.stats.Changed++
	}
	return changed
}

func (g *graph) markDependents(id cellID) {
	n := g.node(id)
	if n == nil {
		return
	}
	n.dependents.Each(func(d cellID) bool {
		dn := g.node(d)
		if dn == nil {
			return false
		}
		switch dn.state {
		case stateClean:
			dn.state = statePending
			g.enqueue(d, dn)
		case stateDone:
			if cells := g.path(d, id); cells != nil {
				g.stats.Cycles++
				g.errs = append(g.errs, &CyclicDependencyError{Cells: cells})
				return false
			}
			dn.state = statePending
			g.enqueue(d, dn)
		case stateEvaluating:
			g.stats.Cycles++
			g.errs = append(g.errs, &CyclicDependencyError{Cells: []string{g.name(d), g.name(id), g.name(d)}})
		}
		return false
	})
}

// pass propagates the change of roots to a fixed point, then notifies.
func (g *graph) pass(roots []cellID) error {
	if len(roots) == 0 {
		return nil
	}
	start := time.Now()
	g.inPass = true
	g.stats = PassStats{Roots: len(roots)}

	for _, id := range roots {
		n := g.node(id)
		if n == nil || n.state != stateClean {
			continue
		}
		n.state = stateDone
		g.touched = append(g.touched, id)
		g.finalized = append(g.finalized, id)
	}
	for _, id := range roots {
		g.markDependents(id)
	}

	for g.frontier.Len() > 0 {
		k, _ := g.frontier.ExtractExtreme()
		n := g.node(k.id)
		if n == nil {
			continue
		}
		n.queued = false
		changed := g.evaluate(k.id, n, true)
		if !changed || g.node(k.id) == nil {
			continue
		}
		g.finalized = append(g.finalized, k.id)
		g.markDependents(k.id)
	}

	for _, id := range g.touched {
		if n := g.node(id); n != nil {
			n.state = stateClean
		}
	}
	g.touched = g.touched[:0]

	g.notify()
	g.inPass = false

	g.stats.Duration = time.Since(start)
	if g.cfg.observer != nil {
		g.cfg.observer.ObservePass(g.stats)
	}
	g.logger.Debug("pass complete",
		"roots", g.stats.Roots,
		"evaluations", g.stats.Evaluations,
		"changed", g.stats.Changed,
		"notifications", g.stats.Notifications,
		"duration", g.stats.Duration,
	)

	err := errors.Join(g.errs...)
	g.errs = nil
	return err
}

func (g *graph) notify() {
	seen := mapset.NewThreadUnsafeSet[cellID]()
	for _, id := range g.finalized {
		if !seen.Add(id) {
			continue
		}
		n := g.node(id)
		if n == nil {
			continue
		}
		stale := false
		for _, s := range slices.Clone(n.subs) {
			if s.cancelled.Load() {
				stale = true
				continue
			}
			g.stats.Notifications++
			g.deliver(s)
		}
		if stale {
			g.prune(id)
		}
	}
	g.finalized = g.finalized[:0]
}

// prune drops subscriptions that were stopped without the dispatcher.
func (g *graph) prune(id cellID) {
	n := g.node(id)
	if n == nil {
		return
	}
	n.subs = slices.DeleteFunc(n.subs, func(s *Subscription) bool {
		if !s.cancelled.Load() {
			return false
		}
		s.cell.scope.subs.Remove(s)
		return true
	})
}

func (g *graph) deliver(s *Subscription) {
	defer func() {
		if r := recover(); r != nil {
			g.report(s, fmt.Errorf("subscriber panic: %v", r))
		}
	}()
	s.deliver()
}

// commit runs a pass for roots and then every write it deferred.
func (g *graph) commit(roots []cellID) error {
	err := g.pass(roots)
	return errors.Join(err, g.flush())
}

func (g *graph) flush() error {
	if g.draining || g.busy() || g.batchDepth > 0 {
		return nil
	}
	g.draining = true
	defer func() {
		g.draining = false
	}()

	var errs []error
	for n := 0; len(g.deferred) > 0; n++ {
		if n >= g.cfg.maxDeferred {
			errs = append(errs, fmt.Errorf("%w: dropped %d writes", ErrDeferredWriteLimit, len(g.deferred)))
			g.deferred = nil
			break
		}
		w := g.deferred[0]
		g.deferred = g.deferred[1:]
		errs = append(errs, w())
	}
	return errors.Join(errs...)
}

func (g *graph) batch(fn func() error) error {
	if g.busy() {
		g.deferred = append(g.deferred, func() error {
			return g.batch(fn)
		})
		return nil
	}

	g.batchDepth++
	err := func() error {
		defer func() {
			g.batchDepth--
		}()
		return fn()
	}()
	if g.batchDepth > 0 {
		return err
	}

	roots := make([]cellID, 0, len(g.batchRoots))
	for _, r := range g.batchRoots {
		if r.changed() {
			roots = append(roots, r.id)
		}
	}
	g.batchRoots = nil
	return errors.Join(err, g.commit(roots))
}

func (g *graph) addBatchRoot(id cellID, changed func() bool) {
	for _, r := range g.batchRoots {
		if r.id == id {
			return
		}
	}
	g.batchRoots = append(g.batchRoots, batchRoot{id: id, changed: changed})
}
