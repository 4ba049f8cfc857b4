package graphable

import "math"

// Guideline is the distance from a series' first sample to its highest
// (Above) and lowest (Below) values.
type Guideline struct {
	Above float64
	Below float64
}

func (g Guideline) Equal(o Guideline) bool {
	return g.Above == o.Above && g.Below == o.Below
}

func (g Guideline) Range() float64 {
	return g.Above + g.Below
}

func (g Guideline) Scale(f float64) Guideline {
	return Guideline{Above: g.Above * f, Below: g.Below * f}
}

type DataRange struct {
	Min float64
	Max float64
}

// UnsetRange starts at +Inf/-Inf so the first Include always wins.
func UnsetRange() DataRange {
	return DataRange{Min: math.Inf(1), Max: math.Inf(-1)}
}

func (r DataRange) IsUnset() bool {
	return r.Min > r.Max
}

func (r DataRange) Equal(o DataRange) bool {
	return r.Min == o.Min && r.Max == o.Max
}

func (r DataRange) Range() float64 {
	return r.Max - r.Min
}

func (r DataRange) Scale(f float64) DataRange {
	return DataRange{Min: r.Min * f, Max: r.Max * f}
}

func (r DataRange) Include(g Graphable) DataRange {
	return DataRange{Min: math.Min(r.Min, g.Bottom()), Max: math.Max(r.Max, g.Top())}
}
