// Package report renders the stream demo's results.
package report

import (
	"io"
	"strconv"
	"time"

	"github.com/delaneyj/rekoil/graphable"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
)

type SeriesRow struct {
	Name      string
	Mode      string
	Pushed    int64
	Len, Cap  int
	Min, Max  float64
	Alignment graphable.Guideline
}

type Summary struct {
	Title     string
	Elapsed   time.Duration
	Passes    int64
	Axis      graphable.DataRange
	Guideline graphable.Guideline
	Series    []SeriesRow
}

func (s *Summary) Pushed() (n int64) {
	for _, r := range s.Series {
		n += r.Pushed
	}
	return n
}

// Rate is the overall push rate in samples per second.
func (s *Summary) Rate() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Pushed()) / s.Elapsed.Seconds()
}

func num(f float64) string {
	return humanize.FormatFloat("#,###.##", f)
}

func count(n int64) string {
	return humanize.Comma(n)
}

func rate(f float64) string {
	return humanize.SIWithDigits(f, 1, "samples/s")
}

// Table writes one row per series.
func Table(w io.Writer, s *Summary) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"series", "mode", "pushed", "window", "min", "max", "above", "below"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, r := range s.Series {
		table.Append([]string{
			r.Name,
			r.Mode,
			count(r.Pushed),
			strconv.Itoa(r.Len) + "/" + strconv.Itoa(r.Cap),
			num(r.Min),
			num(r.Max),
			num(r.Alignment.Above),
			num(r.Alignment.Below),
		})
	}
	table.SetFooter([]string{"", "", count(s.Pushed()), "", num(s.Axis.Min), num(s.Axis.Max), num(s.Guideline.Above), num(s.Guideline.Below)})
	table.Render()
}
