// Package chart renders the churn report's static charts with gonum/plot.
package chart

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"customer-churn-analysis/internal/churn"
)

const (
	FileCountry     = "churn_by_country"
	FileTenure      = "churn_by_tenure"
	FileCharges     = "monthly_charges_by_churn"
	FileCorrelation = "correlation_heatmap"
)

var formats = map[string]bool{"png": true, "svg": true, "pdf": true}

// Input carries the aggregates each chart is drawn from.
type Input struct {
	Country     []churn.GroupRate
	Tenure      []churn.GroupRate
	Charges     [2][]float64
	Correlation churn.Correlation
}

// RenderAll writes the four charts into dir and returns their paths.
func RenderAll(dir string, format string, in Input) ([]string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "png"
	}
	if !formats[format] {
		return nil, fmt.Errorf("unsupported chart format: %s", format)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	steps := []struct {
		name   string
		width  vg.Length
		height vg.Length
		build  func() (*plot.Plot, error)
	}{
		{FileCountry, 10 * vg.Inch, 6 * vg.Inch, func() (*plot.Plot, error) { return CountryBar(in.Country) }},
		{FileTenure, 10 * vg.Inch, 6 * vg.Inch, func() (*plot.Plot, error) { return TenureLine(in.Tenure) }},
		{FileCharges, 8 * vg.Inch, 6 * vg.Inch, func() (*plot.Plot, error) { return ChargesBox(in.Charges) }},
		{FileCorrelation, 8 * vg.Inch, 6 * vg.Inch, func() (*plot.Plot, error) { return CorrelationHeatmap(in.Correlation) }},
	}

	paths := make([]string, 0, len(steps))
	for _, step := range steps {
		p, err := step.build()
		if err != nil {
			return paths, fmt.Errorf("%s: %w", step.name, err)
		}
		path := filepath.Join(dir, step.name+"."+format)
		if err := p.Save(step.width, step.height, path); err != nil {
			return paths, fmt.Errorf("save %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func newPlot(title, xLabel, yLabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.Title.TextStyle.Font.Size = vg.Points(16)
	p.X.Label.Text = xLabel
	p.X.Label.TextStyle.Font.Size = vg.Points(14)
	p.Y.Label.Text = yLabel
	p.Y.Label.TextStyle.Font.Size = vg.Points(14)
	return p
}

// CountryBar draws churn rate per country in the order given.
func CountryBar(rates []churn.GroupRate) (*plot.Plot, error) {
	p := newPlot("Churn Rate by Country", "Country", "Churn Rate")
	if len(rates) == 0 {
		return p, nil
	}

	values := make(plotter.Values, len(rates))
	names := make([]string, len(rates))
	for i, rate := range rates {
		values[i] = rate.Rate
		names[i] = rate.Key
	}
	bars, err := plotter.NewBarChart(values, vg.Points(40))
	if err != nil {
		return nil, err
	}
	bars.Color = color.RGBA{R: 76, G: 114, B: 176, A: 255}
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.NominalX(names...)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = draw.XRight
	p.Y.Min = 0
	return p, nil
}

// TenureLine draws churn rate against tenure with point markers.
func TenureLine(rates []churn.GroupRate) (*plot.Plot, error) {
	p := newPlot("Churn Rate by Tenure (months)", "Tenure (Months)", "Churn Rate")
	if len(rates) == 0 {
		return p, nil
	}

	points := make(plotter.XYs, 0, len(rates))
	for _, rate := range rates {
		x, err := churn.KeyValue(rate)
		if err != nil {
			return nil, fmt.Errorf("tenure key %q: %w", rate.Key, err)
		}
		points = append(points, plotter.XY{X: x, Y: rate.Rate})
	}
	line, markers, err := plotter.NewLinePoints(points)
	if err != nil {
		return nil, err
	}
	markers.GlyphStyle.Shape = draw.CircleGlyph{}
	markers.GlyphStyle.Radius = vg.Points(2.5)
	p.Add(line, markers)
	p.X.Tick.Label.Rotation = math.Pi / 6
	p.X.Tick.Label.XAlign = draw.XRight
	return p, nil
}

// ChargesBox draws MonthlyCharges split by churn outcome. An empty outcome is
// left out.
func ChargesBox(charges [2][]float64) (*plot.Plot, error) {
	p := newPlot("Monthly Charges vs Churn", "Churn (0=No, 1=Yes)", "Monthly Charges")

	names := []string{"0", "1"}
	drawn := 0
	for outcome, values := range charges {
		if len(values) == 0 {
			continue
		}
		box, err := plotter.NewBoxPlot(vg.Points(60), float64(outcome), plotter.Values(values))
		if err != nil {
			return nil, err
		}
		p.Add(box)
		drawn++
	}
	if drawn > 0 {
		p.NominalX(names...)
	}
	return p, nil
}

type correlationGrid struct {
	corr churn.Correlation
}

func (g correlationGrid) Dims() (c, r int) {
	n := len(g.corr.Labels)
	return n, n
}

// Row 0 of the matrix is drawn at the top.
func (g correlationGrid) Z(c, r int) float64 {
	return g.corr.At(len(g.corr.Labels)-1-r, c)
}

func (g correlationGrid) X(c int) float64 { return float64(c) }

func (g correlationGrid) Y(r int) float64 { return float64(r) }

// CorrelationHeatmap draws the coefficient matrix on a blue-red scale fixed to
// [-1, 1] and annotates every cell.
func CorrelationHeatmap(corr churn.Correlation) (*plot.Plot, error) {
	p := newPlot("Correlation Heatmap", "", "")
	n := len(corr.Labels)
	if n == 0 {
		return p, nil
	}

	colors := moreland.SmoothBlueRed()
	colors.SetMin(-1)
	colors.SetMax(1)

	grid := correlationGrid{corr: corr}
	heat := plotter.NewHeatMap(grid, colors.Palette(255))
	heat.Min = -1
	heat.Max = 1
	heat.NaN = color.Gray{Y: 200}
	p.Add(heat)

	annotations := plotter.XYLabels{
		XYs:    make(plotter.XYs, 0, n*n),
		Labels: make([]string, 0, n*n),
	}
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			annotations.XYs = append(annotations.XYs, plotter.XY{X: float64(c), Y: float64(r)})
			annotations.Labels = append(annotations.Labels, formatCoefficient(grid.Z(c, r)))
		}
	}
	labels, err := plotter.NewLabels(annotations)
	if err != nil {
		return nil, err
	}
	for i := range labels.TextStyle {
		labels.TextStyle[i].XAlign = draw.XCenter
		labels.TextStyle[i].YAlign = draw.YCenter
	}
	p.Add(labels)

	reversed := make([]string, n)
	for i, label := range corr.Labels {
		reversed[n-1-i] = label
	}
	p.NominalX(corr.Labels...)
	p.NominalY(reversed...)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = draw.XRight
	return p, nil
}

func formatCoefficient(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return fmt.Sprintf("%.2f", v)
}
