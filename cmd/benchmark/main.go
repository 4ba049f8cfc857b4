package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime/pprof"
	"time"

	"github.com/delaneyj/rekoil/extrema"
	"github.com/delaneyj/rekoil/fibheap"
	"github.com/delaneyj/rekoil/graphable"
	"github.com/delaneyj/rekoil/rekoil"
	"github.com/jamiealquiza/tachymeter"
	"github.com/jedib0t/go-pretty/v6/table"
)

var (
	ww    = []int{1, 10, 100, 1_000}
	hh    = []int{1, 10, 100, 1_000}
	iters = flag.Int("iters", 100, "timed iterations per benchmark")
	pgo   = flag.String("pgo", "", "write a CPU profile to this file")
	only  = flag.String("only", "", "run a single suite: propagate, dynamic, extrema or heap")
)

func main() {
	flag.Parse()

	if *pgo != "" {
		f, err := os.Create(*pgo)
		if err != nil {
			log.Fatal(err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal(err)
		}
		defer pprof.StopCPUProfile()
	}

	suites := []struct {
		name string
		run  func()
	}{
		{"propagate", benchmarkPropagate},
		{"dynamic", benchmarkDynamic},
		{"extrema", benchmarkExtrema},
		{"heap", benchmarkHeap},
	}
	for _, s := range suites {
		if *only != "" && *only != s.name {
			continue
		}
		log.Printf("running %s", s.name)
		s.run()
	}
}

func newTable(title string) table.Writer {
	tbl := table.NewWriter()
	tbl.SetTitle(title)
	tbl.SetOutputMirror(os.Stdout)
	tbl.AppendHeader(table.Row{"benchmark", "avg", "min", "p75", "p99", "max"})
	return tbl
}

func appendCalc(tbl table.Writer, name string, tach *tachymeter.Tachymeter) {
	calc := tach.Calc()
	tbl.AppendRow(table.Row{
		name,
		calc.Time.Avg,
		calc.Time.Min,
		calc.Time.P75,
		calc.Time.P99,
		calc.Time.Max,
	})
}

func newScope() *rekoil.Scope {
	return rekoil.NewScope(rekoil.WithOnError(func(from rekoil.Source, err error) {
		log.Panicf("%s: %v", from.Name(), err)
	}))
}

func addOne(t *rekoil.Tracker, c rekoil.Cell[int]) int {
	return rekoil.Get(t, c) + 1
}

// benchmarkPropagate times one write through w chains of h selectors, each
// ending in a subscription.
func benchmarkPropagate() {
	tbl := newTable("rekoil propagate")

	for _, w := range ww {
		for _, h := range hh {
			tach := tachymeter.New(&tachymeter.Config{Size: *iters})

			s := newScope()
			src := rekoil.NewAtom(s, 1)
			for i := 0; i < w; i++ {
				var last rekoil.Cell[int] = src
				for j := 0; j < h; j++ {
					prev := last
					last = rekoil.NewSelector(s, func(t *rekoil.Tracker) int {
						return addOne(t, prev)
					})
				}
				last.Subscribe(func(int) {})
			}

			for i := 0; i < *iters; i++ {
				start := time.Now()
				if err := src.Update(func(old int) int { return old + 1 }); err != nil {
					log.Panic(err)
				}
				tach.AddTime(time.Since(start))
			}
			s.Release()

			appendCalc(tbl, fmt.Sprintf("propagate: %d * %d", w, h), tach)
		}
	}

	tbl.Render()
}

func benchmarkExtrema() {
	tbl := newTable("extrema push")

	for _, capacity := range []int{10, 1_000, 100_000} {
		tach := tachymeter.New(&tachymeter.Config{Size: *iters})

		s := newScope()
		q, err := extrema.New(s, graphable.Point{}, capacity)
		if err != nil {
			log.Fatal(err)
		}
		q.Max.Subscribe(func(float64) {})
		walk := graphable.NewWalk(1, 1)
		for _, p := range walk.Take(capacity) {
			if err := q.Push(p); err != nil {
				log.Panic(err)
			}
		}

		for i := 0; i < *iters; i++ {
			p := walk.Next()
			start := time.Now()
			if err := q.Push(p); err != nil {
				log.Panic(err)
			}
			tach.AddTime(time.Since(start))
		}
		s.Release()

		appendCalc(tbl, fmt.Sprintf("push: capacity %d", capacity), tach)
	}

	tbl.Render()
}

func benchmarkHeap() {
	tbl := newTable("fibonacci heap")

	for _, n := range []int{1_000, 100_000} {
		insert := tachymeter.New(&tachymeter.Config{Size: n})
		update := tachymeter.New(&tachymeter.Config{Size: n})
		extract := tachymeter.New(&tachymeter.Config{Size: n})

		h := fibheap.NewOrdered[float64](fibheap.Min)
		walk := graphable.NewWalk(2, 10)
		handles := make([]fibheap.Handle, 0, n)
		for i := 0; i < n; i++ {
			v := walk.Next().Y()
			start := time.Now()
			handles = append(handles, h.Insert(v))
			insert.AddTime(time.Since(start))
		}
		for _, hd := range handles {
			v, _ := h.Value(hd)
			start := time.Now()
			if err := h.UpdateKey(hd, v-1); err != nil {
				log.Panic(err)
			}
			update.AddTime(time.Since(start))
		}
		for h.Len() > 0 {
			start := time.Now()
			h.ExtractExtreme()
			extract.AddTime(time.Since(start))
		}

		appendCalc(tbl, fmt.Sprintf("insert: %d", n), insert)
		appendCalc(tbl, fmt.Sprintf("decrease: %d", n), update)
		appendCalc(tbl, fmt.Sprintf("extract: %d", n), extract)
	}

	tbl.Render()
}
