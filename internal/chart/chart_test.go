package chart

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"customer-churn-analysis/internal/churn"
)

func sampleInput() Input {
	nan := math.NaN()
	return Input{
		Country: []churn.GroupRate{
			{Key: "France", Count: 3, Churned: 2, Rate: 2.0 / 3},
			{Key: "Spain", Count: 2, Churned: 1, Rate: 0.5},
		},
		Tenure: []churn.GroupRate{
			{Key: "1", Count: 2, Churned: 2, Rate: 1},
			{Key: "2", Count: 3, Churned: 1, Rate: 1.0 / 3},
		},
		Charges: [2][]float64{{20.5, 30.25, 44}, {55.1, 61.9}},
		Correlation: churn.Correlation{
			Labels: []string{"Age", "Tenure", "Churn"},
			Values: [][]float64{
				{1, 0.25, -0.5},
				{0.25, 1, nan},
				{-0.5, nan, 1},
			},
		},
	}
}

func TestRenderAllWritesFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "charts")
	paths, err := RenderAll(dir, "png", sampleInput())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(paths) != 4 {
		t.Fatalf("expected 4 charts, got %d", len(paths))
	}
	want := []string{FileCountry, FileTenure, FileCharges, FileCorrelation}
	for i, path := range paths {
		if filepath.Base(path) != want[i]+".png" {
			t.Fatalf("expected %s.png, got %s", want[i], filepath.Base(path))
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat %s: %v", path, err)
		}
		if info.Size() == 0 {
			t.Fatalf("%s is empty", path)
		}
	}
}

func TestRenderAllSVG(t *testing.T) {
	paths, err := RenderAll(t.TempDir(), "SVG", sampleInput())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if filepath.Ext(paths[0]) != ".svg" {
		t.Fatalf("expected svg output, got %s", paths[0])
	}
}

func TestRenderAllRejectsFormat(t *testing.T) {
	if _, err := RenderAll(t.TempDir(), "bmp", sampleInput()); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}

func TestRenderAllEmptyInput(t *testing.T) {
	paths, err := RenderAll(t.TempDir(), "png", Input{})
	if err != nil {
		t.Fatalf("render empty: %v", err)
	}
	if len(paths) != 4 {
		t.Fatalf("expected 4 charts, got %d", len(paths))
	}
}

func TestChargesBoxSkipsEmptyOutcome(t *testing.T) {
	if _, err := ChargesBox([2][]float64{nil, {10, 20, 30}}); err != nil {
		t.Fatalf("box: %v", err)
	}
}

func TestCorrelationGridTopRowFirst(t *testing.T) {
	grid := correlationGrid{corr: sampleInput().Correlation}
	c, r := grid.Dims()
	if c != 3 || r != 3 {
		t.Fatalf("expected 3x3, got %dx%d", c, r)
	}
	// The top grid row (r=2) holds matrix row 0.
	if grid.Z(2, 2) != -0.5 {
		t.Fatalf("expected -0.5 at top right, got %v", grid.Z(2, 2))
	}
	if grid.Z(0, 0) != -0.5 {
		t.Fatalf("expected -0.5 at bottom left, got %v", grid.Z(0, 0))
	}
}

func TestTenureLineRejectsNonNumericKey(t *testing.T) {
	if _, err := TenureLine([]churn.GroupRate{{Key: "long", Rate: 0.2}}); err == nil {
		t.Fatalf("expected error for non-numeric tenure")
	}
}

func TestFormatCoefficient(t *testing.T) {
	if got := formatCoefficient(0.4567); got != "0.46" {
		t.Fatalf("expected 0.46, got %s", got)
	}
	if got := formatCoefficient(math.NaN()); got != "" {
		t.Fatalf("expected blank NaN label, got %q", got)
	}
}
