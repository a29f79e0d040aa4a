package profile

import (
	"fmt"
	"image/color"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
)

const (
	// HistogramBins is the bin count of numeric distribution charts.
	HistogramBins = 30

	kdePoints   = 200
	chartWidth  = 10 * vg.Inch
	chartHeight = 6 * vg.Inch
)

var kdeColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}

// ScottBandwidth is the Gaussian kernel bandwidth sd * n^(-1/5). It is 0
// when fewer than two values or no spread.
func ScottBandwidth(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	sd := stat.StdDev(xs, nil)
	if sd == 0 || math.IsNaN(sd) {
		return 0
	}
	return sd * math.Pow(float64(len(xs)), -0.2)
}

// KDE evaluates a Gaussian kernel density estimate of xs at n evenly spaced
// points over [min(xs), max(xs)], scaled by scale (1 gives a density).
func KDE(xs []float64, n int, scale float64) plotter.XYs {
	h := ScottBandwidth(xs)
	if h == 0 || n < 2 {
		return nil
	}
	lo, hi := floats.Min(xs), floats.Max(xs)
	grid := make([]float64, n)
	floats.Span(grid, lo, hi)

	inv := 1 / (float64(len(xs)) * h)
	out := make(plotter.XYs, n)
	for i, x := range grid {
		var sum float64
		for _, xi := range xs {
			sum += distuv.UnitNormal.Prob((x - xi) / h)
		}
		out[i].X = x
		out[i].Y = sum * inv * scale
	}
	return out
}

// drawBar saves a value-count bar chart of c to path.
func drawBar(c column, path string) error {
	counts := c.counts()
	vals := make(plotter.Values, len(counts))
	labels := make([]string, len(counts))
	for i, vc := range counts {
		vals[i] = float64(vc.n)
		labels[i] = vc.label
	}

	p := plot.New()
	p.Title.Text = "Value Counts: " + c.name
	p.X.Label.Text = c.name
	p.Y.Label.Text = "Count"

	width := vg.Points(20)
	if len(counts) > 30 {
		width = vg.Points(math.Max(2, 600/float64(len(counts))))
	}
	bars, err := plotter.NewBarChart(vals, width)
	if err != nil {
		return fmt.Errorf("bar chart %s: %w", c.name, err)
	}
	bars.Color = kdeColor
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.NominalX(labels...)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = text.XRight
	p.X.Tick.Label.YAlign = text.YCenter

	return p.Save(chartWidth, chartHeight, path)
}

// drawHistogram saves a 30-bin histogram of c with a KDE curve scaled to
// bin counts.
func drawHistogram(c column, path string) error {
	xs := append([]float64(nil), c.nums...)
	sort.Float64s(xs)

	p := plot.New()
	p.Title.Text = "Distribution: " + c.name
	p.X.Label.Text = c.name
	p.Y.Label.Text = "Frequency"

	h, err := plotter.NewHist(plotter.Values(xs), HistogramBins)
	if err != nil {
		return fmt.Errorf("histogram %s: %w", c.name, err)
	}
	h.FillColor = color.RGBA{R: 31, G: 119, B: 180, A: 128}
	p.Add(h)

	if curve := KDE(xs, kdePoints, float64(len(xs))*h.Width); len(curve) > 0 {
		line, err := plotter.NewLine(curve)
		if err != nil {
			return fmt.Errorf("kde %s: %w", c.name, err)
		}
		line.LineStyle.Color = kdeColor
		line.LineStyle.Width = vg.Points(2)
		p.Add(line)
	}

	return p.Save(chartWidth, chartHeight, path)
}
