package render

import (
	"errors"
	"fmt"
	"io"

	chart "github.com/wcharczuk/go-chart/v2"

	"itn-reports/internal/report"
)

const (
	barWidth   = 20
	barSpacing = 10
	chartPad   = 120
)

// ErrNothingToChart is returned when a report has no participants.
var ErrNothingToChart = errors.New("report has no participants to chart")

// ChartOptions size the PNG. Width grows to fit every bar.
type ChartOptions struct {
	Width  int
	Height int
}

// ReportPNG draws each participant's coverage percentage as a bar chart.
func ReportPNG(w io.Writer, r *report.Report, opts ChartOptions) error {
	addrs := r.Addresses()
	if len(addrs) == 0 {
		return ErrNothingToChart
	}

	bars := make([]chart.Value, 0, len(addrs))
	for _, addr := range addrs {
		bars = append(bars, chart.Value{
			Label: barLabel(addr, r.Data[addr]),
			Value: r.CoveragePct(addr),
		})
	}

	width := opts.Width
	if width <= 0 {
		width = 1280
	}
	if need := chartPad + len(bars)*(barWidth+barSpacing); need > width {
		width = need
	}
	height := opts.Height
	if height <= 0 {
		height = 720
	}

	graph := chart.BarChart{
		Title:      fmt.Sprintf("Coverage %s to %s", r.Start, r.End),
		Width:      width,
		Height:     height,
		BarWidth:   barWidth,
		BarSpacing: barSpacing,
		Background: chart.Style{
			Padding: chart.Box{Top: 40},
		},
		YAxis: chart.YAxis{
			Name: "Coverage (%)",
			Range: &chart.ContinuousRange{
				Min: 0,
				Max: 100,
			},
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		Bars: bars,
	}

	return graph.Render(chart.PNG, w)
}

func barLabel(addr string, row report.ParticipantStats) string {
	if row.License != nil && *row.License != "" {
		return *row.License
	}
	if len(addr) > 12 {
		return "..." + addr[len(addr)-10:]
	}
	return addr
}
