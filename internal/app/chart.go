// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"image/color"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/relabs-tech/motion_monitor/internal/motion"
	"github.com/relabs-tech/motion_monitor/internal/pipeline"
)

// sensorSeries is one sensor's history as drawn on a chart.
type sensorSeries struct {
	Sensor int         `json:"sensor"`
	Port   int         `json:"port"`
	Band   motion.Band `json:"band"` // band of the latest sample
	Values []float64   `json:"values"`
}

func (s sensorSeries) label() string {
	return fmt.Sprintf("sensor %d (port %d)", s.Sensor, s.Port)
}

func collectSeries(p *pipeline.Pipeline) []sensorSeries {
	out := make([]sensorSeries, 0, p.Len())
	for i := 0; i < p.Len(); i++ {
		ep, err := p.Endpoint(i)
		if err != nil {
			continue
		}
		values, err := p.Snapshot(i)
		if err != nil {
			continue
		}
		sample, _, _ := p.Latest(i)
		out = append(out, sensorSeries{Sensor: i, Port: ep.Port, Band: sample.Band(), Values: values})
	}
	return out
}

var (
	stillColor  = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
	movingColor = color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff}
)

// bandColor is the line colour for a band: red while still, green while moving.
func bandColor(b motion.Band) color.RGBA {
	if b == motion.BandMoving {
		return movingColor
	}
	return stillColor
}

func bandHex(b motion.Band) string {
	c := bandColor(b)
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// chartRange returns the fixed y-axis range for a derivation mode.
func chartRange(d motion.Deriver) (float64, float64) {
	if d.Mode == motion.Binary {
		return -0.1, 1.1
	}
	return -100, 600
}

// bandLevel is the buffered value above which a sample counts as moving.
func bandLevel(d motion.Deriver) float64 {
	if d.Mode == motion.Binary {
		return 0
	}
	return d.Threshold
}

// Summary describes one snapshot.
type Summary struct {
	Mean          float64 `json:"mean"`
	Min           float64 `json:"min"`
	Max           float64 `json:"max"`
	FractionAbove float64 `json:"fraction_above"`
}

func summarize(values []float64, level float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	above := 0
	for _, v := range values {
		if v > level {
			above++
		}
	}
	return Summary{
		Mean:          stat.Mean(values, nil),
		Min:           floats.Min(values),
		Max:           floats.Max(values),
		FractionAbove: float64(above) / float64(len(values)),
	}
}

// renderLineChart writes an HTML page with one line per sensor.
func renderLineChart(w io.Writer, series []sensorSeries, d motion.Deriver, subtitle string) error {
	yMin, yMax := chartRange(d)

	capacity := 0
	if len(series) > 0 {
		capacity = len(series[0].Values)
	}
	x := make([]int, capacity)
	for i := range x {
		x[i] = i
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Motion Monitor", Width: "100%", Height: "640px"}),
		charts.WithTitleOpts(opts.Title{Title: "Motion", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "sample", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: yMin, Max: yMax, Name: d.Mode.String()}),
	)
	line.SetXAxis(x)

	for _, s := range series {
		data := make([]opts.LineData, len(s.Values))
		for i, v := range s.Values {
			data[i] = opts.LineData{Value: v}
		}
		hex := bandHex(s.Band)
		line.AddSeries(s.label(), data,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
			charts.WithLineStyleOpts(opts.LineStyle{Color: hex}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: hex}),
			charts.WithMarkLineNameYAxisItemOpts(opts.MarkLineNameYAxisItem{Name: "threshold", YAxis: bandLevel(d)}),
		)
	}

	return line.Render(w)
}

// seriesLines builds one plot line per series, coloured by its band.
func seriesLines(series []sensorSeries) ([]*plotter.Line, error) {
	lines := make([]*plotter.Line, 0, len(series))
	for _, s := range series {
		pts := make(plotter.XYs, len(s.Values))
		for j, v := range s.Values {
			pts[j] = plotter.XY{X: float64(j), Y: v}
		}
		l, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		l.Color = bandColor(s.Band)
		l.Width = vg.Points(1)
		lines = append(lines, l)
	}
	return lines, nil
}

// renderPNG writes the same chart as a PNG image.
func renderPNG(w io.Writer, series []sensorSeries, d motion.Deriver, width, height vg.Length) error {
	p := plot.New()
	p.Title.Text = "Motion"
	p.X.Label.Text = "Sample"
	p.Y.Label.Text = d.Mode.String()
	p.Y.Min, p.Y.Max = chartRange(d)
	p.Add(plotter.NewGrid())

	lines, err := seriesLines(series)
	if err != nil {
		return err
	}
	for i, l := range lines {
		p.Add(l)
		p.Legend.Add(series[i].label(), l)
	}

	if len(series) > 0 {
		p.X.Min = 0
		p.X.Max = float64(len(series[0].Values) - 1)
	}
	level := bandLevel(d)
	thr := plotter.NewFunction(func(float64) float64 { return level })
	thr.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(thr)

	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
