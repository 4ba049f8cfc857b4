package rekoil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
)

type releaser interface {
	release()
}

// Scope owns cells, subscriptions, child scopes and release hooks, and
// releases them as a unit.
type Scope struct {
	id     uuid.UUID
	name   string
	g      *graph
	parent *Scope
	logger *slog.Logger

	// owned by the graph's dispatcher
	cells []releaser
	subs  mapset.Set[*Subscription]

	mu       sync.Mutex
	children []*Scope
	cleanups []func()
	released atomic.Bool
}

// NewScope creates a root scope with its own graph.
func NewScope(opts ...Option) *Scope {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return newScope(newGraph(cfg), nil, cfg.name)
}

func newScope(g *graph, parent *Scope, name string) *Scope {
	s := &Scope{
		id:   uuid.New(),
		g:    g,
		subs: mapset.NewThreadUnsafeSet[*Subscription](),
	}
	s.name = name
	if s.name == "" {
		s.name = s.id.String()[:8]
	}
	s.logger = g.logger.With("scope", s.name)

	if parent != nil {
		s.parent = parent
		s.name = parent.name + "/" + s.name
		parent.mu.Lock()
		parent.children = append(parent.children, s)
		parent.mu.Unlock()
		if parent.released.Load() {
			s.Release()
		}
	}
	return s
}

func (s *Scope) ID() uuid.UUID {
	return s.id
}

func (s *Scope) Name() string {
	return s.name
}

func (s *Scope) Released() bool {
	return s.released.Load()
}

func (s *Scope) Logger() *slog.Logger {
	return s.logger
}

func (s *Scope) Dispatcher() Dispatcher {
	return s.g.dispatcher
}

// Child creates a scope on the same graph and dispatcher. Selectors in it may
// Get cells of s and the other way round.
func (s *Scope) Child() *Scope {
	return newScope(s.g, s, "")
}

// ChildOn creates a scope with its own graph bound to d. Its cells are read
// from other contexts with ReadAcross or mirrored with Bridge.
func (s *Scope) ChildOn(d Dispatcher) *Scope {
	cfg := s.g.cfg
	cfg.dispatcher = d
	cfg.name = ""
	return newScope(newGraph(cfg), s, "")
}

// OnRelease registers fn to run when s is released, most recent first. On an
// already released scope fn runs immediately.
func (s *Scope) OnRelease(fn func()) {
	s.mu.Lock()
	if !s.released.Load() {
		s.cleanups = append(s.cleanups, fn)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.runCleanup(fn)
}

// Batch runs fn and propagates every write it made in a single pass.
func (s *Scope) Batch(fn func() error) error {
	var err error
	dErr := s.g.run(context.Background(), func() {
		err = s.g.batch(fn)
	})
	return errors.Join(dErr, err)
}

// Release cancels the scope's subscriptions, runs its release hooks and
// releases its cells, after doing the same for every child. Released cells
// keep answering Value with their last value and ignore writes. Release is
// idempotent.
func (s *Scope) Release() {
	s.mu.Lock()
	if !s.released.CompareAndSwap(false, true) {
		s.mu.Unlock()
		return
	}
	children := slices.Clone(s.children)
	cleanups := s.cleanups
	s.cleanups = nil
	s.mu.Unlock()

	for i := len(children) - 1; i >= 0; i-- {
		children[i].Release()
	}

	teardown := func() {
		for _, sub := range s.subs.ToSlice() {
			sub.cancelled.Store(true)
			s.g.unsubscribe(sub)
		}
		for i := len(cleanups) - 1; i >= 0; i-- {
			s.runCleanup(cleanups[i])
		}
		for i := len(s.cells) - 1; i >= 0; i-- {
			s.cells[i].release()
		}
		s.cells = nil
	}
	if err := s.g.run(context.Background(), teardown); errors.Is(err, ErrDispatcherClosed) {
		teardown()
	}

	if p := s.parent; p != nil {
		p.mu.Lock()
		p.children = slices.DeleteFunc(p.children, func(c *Scope) bool {
			return c == s
		})
		p.mu.Unlock()
	}
	s.logger.Debug("scope released")
}

func (s *Scope) runCleanup(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.g.report(s, fmt.Errorf("release hook panic: %v", r))
		}
	}()
	fn()
}
