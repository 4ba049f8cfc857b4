package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/delaneyj/rekoil/aggregate"
	"github.com/delaneyj/rekoil/extrema"
	"github.com/delaneyj/rekoil/graphable"
	"github.com/delaneyj/rekoil/internal/config"
	"github.com/delaneyj/rekoil/internal/report"
	"github.com/delaneyj/rekoil/pkg/metrics"
	"github.com/delaneyj/rekoil/rekoil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// producer feeds one series.
type producer interface {
	run(ctx context.Context) error
	row() report.SeriesRow
}

type series[T graphable.Graphable] struct {
	cfg    config.Series
	s      *aggregate.Series[T]
	next   func() T
	pushed atomic.Int64
}

func (p *series[T]) run(ctx context.Context) error {
	var limiter *rate.Limiter
	if p.cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(p.cfg.Rate), 1)
	}
	for i := 0; i < p.cfg.Points; i++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.s.Queue.Push(p.next()); err != nil {
			return fmt.Errorf("%s: %w", p.cfg.Name, err)
		}
		p.pushed.Add(1)
	}
	return nil
}

func (p *series[T]) row() report.SeriesRow {
	q := p.s.Queue
	return report.SeriesRow{
		Name:      p.cfg.Name,
		Mode:      p.s.Mode.Value().String(),
		Pushed:    p.pushed.Load(),
		Len:       q.Len(),
		Cap:       q.Cap(),
		Min:       q.Min.Value(),
		Max:       q.Max.Value(),
		Alignment: p.s.Alignment.Value(),
	}
}

func newProducer(g *aggregate.Globals, cfg config.Series, collector *metrics.Collector) (producer, error) {
	walk := graphable.NewWalk(cfg.Seed, cfg.Step)
	if cfg.Candles {
		s, err := aggregate.NewSeries(g, cfg.Name, graphable.Candle{}, cfg.Capacity, cfg.ParsedMode(), extrema.WithObserver(collector))
		if err != nil {
			return nil, err
		}
		return &series[graphable.Candle]{cfg: cfg, s: s, next: func() graphable.Candle { return walk.NextCandle(4) }}, nil
	}
	s, err := aggregate.NewSeries(g, cfg.Name, graphable.Point{}, cfg.Capacity, cfg.ParsedMode(), extrema.WithObserver(collector))
	if err != nil {
		return nil, err
	}
	return &series[graphable.Point]{cfg: cfg, s: s, next: walk.Next}, nil
}

// tally counts passes and forwards them to the collector.
type tally struct {
	next   rekoil.Observer
	passes atomic.Int64
}

func (t *tally) ObservePass(stats rekoil.PassStats) {
	t.passes.Add(1)
	t.next.ObservePass(stats)
}

func stream(ctx context.Context, cmd *cli.Command) error {
	start := time.Now()
	log.Printf("stream started")
	defer func() {
		log.Printf("stream finished in %v", time.Since(start))
	}()

	cfg := config.Default()
	if path := cmd.String(configKey); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return err
		}
	}
	showHeaps := cfg.ShowHeaps || cmd.Bool(heapsKey)

	reg := prometheus.NewRegistry()
	collector := metrics.New(reg)
	passes := &tally{next: collector}

	level := slog.LevelInfo
	if cmd.Bool(verboseKey) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	root := rekoil.NewScope(
		rekoil.WithName("stream"),
		rekoil.WithLogger(logger),
		rekoil.WithObserver(passes),
		rekoil.WithOnError(func(from rekoil.Source, err error) {
			log.Printf("%s: %v", from.Name(), err)
		}),
	)
	defer root.Release()

	globals := aggregate.NewGlobals(root)
	var axisChanges atomic.Int64
	globals.AxisMin.Subscribe(func(float64) { axisChanges.Add(1) })
	globals.AxisMax.Subscribe(func(float64) { axisChanges.Add(1) })
	globals.AlignGuideline.Subscribe(func(graphable.Guideline) { axisChanges.Add(1) })

	producers := make([]producer, 0, len(cfg.Series))
	for _, sc := range cfg.Series {
		p, err := newProducer(globals, sc, collector)
		if err != nil {
			return err
		}
		producers = append(producers, p)
	}

	if addr := cmd.String(metricsAddrKey); addr != "" {
		srv := &http.Server{Addr: addr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("metrics server: %v", err)
			}
		}()
		defer srv.Close()
		log.Printf("serving metrics on %s/metrics", addr)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for _, p := range producers {
		eg.Go(func() error {
			return p.run(egCtx)
		})
	}
	err := eg.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	summary := &report.Summary{
		Title:     "stream",
		Elapsed:   time.Since(start),
		Passes:    passes.passes.Load(),
		Axis:      globals.AxisRange(),
		Guideline: globals.AlignGuideline.Value(),
	}
	for _, p := range producers {
		summary.Series = append(summary.Series, p.row())
	}

	report.Table(os.Stdout, summary)
	report.WriteText(os.Stdout, summary)
	log.Printf("axis changed %d times", axisChanges.Load())
	if showHeaps {
		fmt.Println(globals.Render())
	}
	return nil
}
