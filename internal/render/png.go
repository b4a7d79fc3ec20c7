// Package render draws acquisition snapshots for the dashboard: a static
// PNG figure (three rolling traces over the raw bank bars) and an
// interactive go-echarts page.
package render

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/shaunagostinho/sensordash/internal/acquire"
	"github.com/shaunagostinho/sensordash/internal/calib"
	"github.com/shaunagostinho/sensordash/internal/frame"
)

// Axis is a fixed plot range.
type Axis struct {
	Min, Max float64
}

// Layout fixes the axes of every panel so the figure does not rescale
// from frame to frame.
type Layout struct {
	Distance Axis
	Yaw      Axis
	Pitch    Axis
	Bank     Axis

	Width, Height vg.Length
}

// DefaultLayout matches the sensor's useful ranges.
func DefaultLayout() Layout {
	return Layout{
		Distance: Axis{-1, 24},
		Yaw:      Axis{-24, 24},
		Pitch:    Axis{-24, 24},
		Bank:     Axis{0, 255},
		Width:    8 * vg.Inch,
		Height:   10 * vg.Inch,
	}
}

// withDefaults fills unset axes and size from DefaultLayout.
func (l Layout) withDefaults() Layout {
	d := DefaultLayout()
	for _, pair := range []struct{ dst, def *Axis }{
		{&l.Distance, &d.Distance}, {&l.Yaw, &d.Yaw}, {&l.Pitch, &d.Pitch}, {&l.Bank, &d.Bank},
	} {
		if pair.dst.Min >= pair.dst.Max {
			*pair.dst = *pair.def
		}
	}
	if l.Width <= 0 || l.Height <= 0 {
		l.Width, l.Height = d.Width, d.Height
	}
	return l
}

func (l Layout) axis(ch calib.Channel) Axis {
	switch ch {
	case calib.Yaw:
		return l.Yaw
	case calib.Pitch:
		return l.Pitch
	}
	return l.Distance
}

var traceColors = [calib.NumChannels]color.Color{
	color.RGBA{R: 31, G: 119, B: 180, A: 255},
	color.RGBA{R: 255, G: 127, B: 14, A: 255},
	color.RGBA{R: 44, G: 160, B: 44, A: 255},
}

// BankLabels names the raw bank bars.
func BankLabels() []string {
	labels := make([]string, frame.BankSize)
	for i := range labels {
		labels[i] = fmt.Sprintf("S%d", i)
	}
	return labels
}

// Title is the text heading a channel panel, e.g. "Distance: 12.30".
func Title(ch calib.Channel, v float64) string {
	return fmt.Sprintf("%s: %.2f", ch.Label(), v)
}

func tracePlot(s *acquire.Snapshot, ch calib.Channel, ax Axis) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = Title(ch, s.Value(ch))
	p.Add(plotter.NewGrid())

	win := s.Window(ch)
	if len(win) > 0 {
		pts := make(plotter.XYs, len(win))
		for i, v := range win {
			pts[i] = plotter.XY{X: float64(i), Y: v}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("render: %s trace: %w", ch, err)
		}
		line.Color = traceColors[ch]
		line.Width = vg.Points(1)
		p.Add(line)
	}

	// Fixed axes; Add would otherwise stretch them to the data.
	p.X.Min, p.X.Max = 0, float64(max(len(win)-1, 1))
	p.Y.Min, p.Y.Max = ax.Min, ax.Max
	return p, nil
}

func bankPlot(s *acquire.Snapshot, ax Axis) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Raw bank"

	vals := make(plotter.Values, len(s.RawBank))
	for i, b := range s.RawBank {
		vals[i] = float64(b)
	}
	bars, err := plotter.NewBarChart(vals, vg.Points(20))
	if err != nil {
		return nil, fmt.Errorf("render: bank: %w", err)
	}
	bars.Color = color.RGBA{R: 148, G: 103, B: 189, A: 255}
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.NominalX(BankLabels()...)
	p.Y.Min, p.Y.Max = ax.Min, ax.Max
	return p, nil
}

// PNG writes the snapshot as a four-panel PNG: distance, yaw and pitch
// traces followed by the raw bank bar chart.
func PNG(w io.Writer, s *acquire.Snapshot, l Layout) error {
	l = l.withDefaults()

	plots := make([][]*plot.Plot, 0, calib.NumChannels+1)
	for _, ch := range calib.Channels {
		p, err := tracePlot(s, ch, l.axis(ch))
		if err != nil {
			return err
		}
		plots = append(plots, []*plot.Plot{p})
	}
	bp, err := bankPlot(s, l.Bank)
	if err != nil {
		return err
	}
	plots = append(plots, []*plot.Plot{bp})

	img := vgimg.New(l.Width, l.Height)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: len(plots),
		Cols: 1,
		PadX: vg.Millimeter,
		PadY: 3 * vg.Millimeter,

		PadTop:    vg.Points(4),
		PadBottom: vg.Points(4),
		PadLeft:   vg.Points(4),
		PadRight:  vg.Points(8),
	}
	canvases := plot.Align(plots, tiles, dc)
	for i := range plots {
		plots[i][0].Draw(canvases[i][0])
	}

	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(w); err != nil {
		return fmt.Errorf("render: write png: %w", err)
	}
	return nil
}
