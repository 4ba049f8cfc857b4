package graphable

import "math/rand"

// Walk produces a gaussian random walk of points with increasing X.
type Walk struct {
	rnd    *rand.Rand
	x      float64
	y      float64
	factor float64
}

// NewWalk starts at a random base in [0, 10000) and scales each gaussian
// step by factor.
func NewWalk(seed int64, factor float64) *Walk {
	rnd := rand.New(rand.NewSource(seed))
	return &Walk{
		rnd:    rnd,
		y:      float64(rnd.Intn(10000)),
		factor: factor,
	}
}

func (w *Walk) Next() Point {
	w.y += w.rnd.NormFloat64() * w.factor
	p := Point{PX: w.x, PY: w.y}
	w.x++
	return p
}

func (w *Walk) Take(n int) []Point {
	out := make([]Point, n)
	for i := range out {
		out[i] = w.Next()
	}
	return out
}

// NextCandle folds the next steps points into one candle positioned at the
// first point's X. Volume is the count of steps.
func (w *Walk) NextCandle(steps int) Candle {
	steps = max(steps, 1)
	first := w.Next()
	c := Candle{PX: first.PX, Open: first.PY, Close: first.PY, High: first.PY, Low: first.PY, Volume: steps}
	for i := 1; i < steps; i++ {
		p := w.Next()
		c.Close = p.PY
		c.High = max(c.High, p.PY)
		c.Low = min(c.Low, p.PY)
	}
	return c
}
