package render

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/shaunagostinho/sensordash/internal/acquire"
	"github.com/shaunagostinho/sensordash/internal/calib"
)

func traceChart(s *acquire.Snapshot, ch calib.Channel, ax Axis) *charts.Line {
	win := s.Window(ch)
	x := make([]int, len(win))
	data := make([]opts.LineData, len(win))
	for i, v := range win {
		x[i] = i
		data[i] = opts.LineData{Value: v}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "240px"}),
		charts.WithTitleOpts(opts.Title{Title: Title(ch, s.Value(ch))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: ax.Min, Max: ax.Max}),
	)
	line.SetXAxis(x).AddSeries(ch.String(), data)
	return line
}

func bankChart(s *acquire.Snapshot, ax Axis) *charts.Bar {
	data := make([]opts.BarData, len(s.RawBank))
	for i, b := range s.RawBank {
		data[i] = opts.BarData{Value: b}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "240px"}),
		charts.WithTitleOpts(opts.Title{Title: "Raw bank", Subtitle: fmt.Sprintf("tick %d", s.Tick)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: ax.Min, Max: ax.Max}),
	)
	bar.SetXAxis(BankLabels()).
		AddSeries("raw", data,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

// ChartsHTML writes an HTML page with one line chart per channel window and
// a bar chart of the raw bank.
func ChartsHTML(w io.Writer, s *acquire.Snapshot, l Layout) error {
	l = l.withDefaults()
	page := components.NewPage()
	for _, ch := range calib.Channels {
		page.AddCharts(traceChart(s, ch, l.axis(ch)))
	}
	page.AddCharts(bankChart(s, l.Bank))

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render: charts: %w", err)
	}
	return nil
}
