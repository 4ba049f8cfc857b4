// Package metrics exports graph and queue activity as Prometheus metrics.
package metrics

import (
	"strconv"

	"github.com/delaneyj/rekoil/extrema"
	"github.com/delaneyj/rekoil/rekoil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rekoil"

// Collector implements rekoil.Observer and extrema.Observer.
type Collector struct {
	passes        prometheus.Counter
	passDuration  prometheus.Histogram
	evaluations   prometheus.Counter
	changed       prometheus.Counter
	failures      prometheus.Counter
	cycles        prometheus.Counter
	requeues      prometheus.Counter
	notifications prometheus.Counter

	pushes *prometheus.CounterVec
	resets *prometheus.CounterVec
	sizes  *prometheus.GaugeVec
}

var (
	_ rekoil.Observer  = (*Collector)(nil)
	_ extrema.Observer = (*Collector)(nil)
)

// New registers the collector's metrics on reg. A nil reg registers nowhere.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	counter := func(subsystem, name, help string) prometheus.Counter {
		return f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		})
	}

	return &Collector{
		passes: counter("graph", "passes_total", "Propagation passes run"),
		passDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "pass_duration_seconds",
			Help:      "Time spent in one propagation pass",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		evaluations:   counter("graph", "evaluations_total", "Selector evaluations"),
		changed:       counter("graph", "changed_total", "Cells whose value changed"),
		failures:      counter("graph", "failures_total", "Selector evaluations that failed"),
		cycles:        counter("graph", "cycles_total", "Cyclic dependencies detected"),
		requeues:      counter("graph", "requeues_total", "Evaluations aborted to wait for a deeper dependency"),
		notifications: counter("graph", "notifications_total", "Subscriber callbacks delivered"),

		pushes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "pushes_total",
			Help:      "Samples pushed into a queue",
		}, []string{"queue", "evicted"}),
		resets: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "resets_total",
			Help:      "Queue contents replaced or cleared",
		}, []string{"queue"}),
		sizes: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "reset_size",
			Help:      "Size of a queue after its last reset",
		}, []string{"queue"}),
	}
}

func (c *Collector) ObservePass(stats rekoil.PassStats) {
	c.passes.Inc()
	c.passDuration.Observe(stats.Duration.Seconds())
	c.evaluations.Add(float64(stats.Evaluations))
	c.changed.Add(float64(stats.Changed))
	c.failures.Add(float64(stats.Failures))
	c.cycles.Add(float64(stats.Cycles))
	c.requeues.Add(float64(stats.Requeues))
	c.notifications.Add(float64(stats.Notifications))
}

func (c *Collector) ObservePush(queue string, evicted bool) {
	c.pushes.WithLabelValues(queue, strconv.FormatBool(evicted)).Inc()
}

func (c *Collector) ObserveReset(queue string, size int) {
	c.resets.WithLabelValues(queue).Inc()
	c.sizes.WithLabelValues(queue).Set(float64(size))
}

func (c *Collector) Passes() prometheus.Counter {
	return c.passes
}

func (c *Collector) Evaluations() prometheus.Counter {
	return c.evaluations
}
