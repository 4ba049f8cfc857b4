package rekoil

import (
	"log/slog"
	"time"
)

// Source is anything that can report an error to a scope: cells, scopes
// and subscriptions.
type Source interface {
	Name() string
}

type OnErrorFunc func(from Source, err error)

// PassStats describes one propagation pass.
type PassStats struct {
	Roots         int
	Evaluations   int
	Changed       int
	Failures      int
	Cycles        int
	Requeues      int
	Notifications int
	Duration      time.Duration
}

// Observer receives pass statistics. It is called on the graph's dispatcher
// and must not block.
type Observer interface {
	ObservePass(stats PassStats)
}

type config struct {
	name         string
	logger       *slog.Logger
	dispatcher   Dispatcher
	onError      OnErrorFunc
	observer     Observer
	crossTimeout time.Duration
	maxDeferred  int
}

type Option func(*config)

func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithDispatcher binds the root scope's graph to d. Defaults to a new
// SerialDispatcher.
func WithDispatcher(d Dispatcher) Option {
	return func(c *config) {
		c.dispatcher = d
	}
}

// WithOnError installs the hook that receives evaluation failures, subscriber
// panics and failed bridge updates. Without it errors are logged at Warn.
func WithOnError(fn OnErrorFunc) Option {
	return func(c *config) {
		c.onError = fn
	}
}

func WithObserver(o Observer) Option {
	return func(c *config) {
		c.observer = o
	}
}

// WithCrossScopeTimeout bounds ReadAcross and Bridge when the caller's
// context has no earlier deadline. Zero disables the bound.
func WithCrossScopeTimeout(d time.Duration) Option {
	return func(c *config) {
		c.crossTimeout = d
	}
}

// WithMaxDeferredWrites caps how many writes queued by subscribers and
// selector bodies may run after a single top-level write.
func WithMaxDeferredWrites(n int) Option {
	return func(c *config) {
		c.maxDeferred = n
	}
}

func defaultConfig() config {
	return config{
		logger:       slog.Default(),
		crossTimeout: 5 * time.Second,
		maxDeferred:  10_000,
	}
}

type cellConfig[T any] struct {
	name  string
	equal func(a, b T) bool
}

type CellOption[T any] func(*cellConfig[T])

// Named sets the name used in errors and logs.
func Named[T any](name string) CellOption[T] {
	return func(c *cellConfig[T]) {
		c.name = name
	}
}

// WithEqual overrides the equality used to suppress unchanged values.
func WithEqual[T any](eq func(a, b T) bool) CellOption[T] {
	return func(c *cellConfig[T]) {
		c.equal = eq
	}
}
