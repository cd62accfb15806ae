package main

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"row-major/thickmirror/wavefront"
)

// intensityGrid adapts one energy slice of a wavefront to plotter.GridXYZ.
type intensityGrid struct {
	w         *wavefront.Wavefront
	intensity []float64
}

func (g intensityGrid) Dims() (c, r int)   { return g.w.X.N, g.w.Z.N }
func (g intensityGrid) Z(c, r int) float64 { return g.intensity[r*g.w.X.N+c] }
func (g intensityGrid) X(c int) float64    { return g.w.X.Value(c) }
func (g intensityGrid) Y(r int) float64    { return g.w.Z.Value(r) }

func saveIntensityPlot(w *wavefront.Wavefront, ie int, name string) error {
	if ie < 0 || ie >= w.Energy.N {
		return fmt.Errorf("energy index %d out of range [0, %d)", ie, w.Energy.N)
	}

	grid := intensityGrid{w: w, intensity: w.Intensity(ie)}
	peak := floats.Max(grid.intensity)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Intensity at %.6g eV (peak %.4g)", w.Energy.Value(ie), peak)
	p.Title.TextStyle.Font.Size = vg.Points(12)
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "z (m)"

	heat := plotter.NewHeatMap(grid, palette.Heat(64, 1))
	if peak > 0 {
		heat.Min, heat.Max = 0, peak
	}
	p.Add(heat)

	if err := p.Save(6*vg.Inch, 6*vg.Inch, name); err != nil {
		return fmt.Errorf("while saving plot to %s: %w", name, err)
	}
	return nil
}
