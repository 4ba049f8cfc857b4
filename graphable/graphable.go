// Package graphable holds the sample shapes that flow through extrema
// queues and the guideline and range values derived from them.
package graphable

// Graphable is a sample with a vertical extent and a center.
type Graphable interface {
	Top() float64
	Bottom() float64
	X() float64
	Y() float64
}

type Point struct {
	PX, PY float64
}

func (p Point) Top() float64    { return p.PY }
func (p Point) Bottom() float64 { return p.PY }
func (p Point) X() float64      { return p.PX }
func (p Point) Y() float64      { return p.PY }

type Candle struct {
	PX     float64
	Open   float64
	Close  float64
	High   float64
	Low    float64
	Volume int
}

func (c Candle) Top() float64    { return c.High }
func (c Candle) Bottom() float64 { return c.Low }
func (c Candle) X() float64      { return c.PX }
func (c Candle) Y() float64      { return c.Low + c.Height()/2 }

func (c Candle) Height() float64 {
	return c.High - c.Low
}

// Rising reports whether the candle closed above its open.
func (c Candle) Rising() bool {
	return c.Close > c.Open
}

// Null is the placeholder sample used before any data arrives.
type Null struct{}

func (Null) Top() float64    { return 0 }
func (Null) Bottom() float64 { return 0 }
func (Null) X() float64      { return 0 }
func (Null) Y() float64      { return 0 }
