package sim

import (
	"fmt"
	"image/color"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// New2DPlot creates new plot of a tracking run from the three data sources:
// truth:     ground truth positions; may be nil when not known
// measured:  measured positions
// estimated: estimated positions
// Every matrix holds [px, py] rows.
// It returns error if the plot fails to be created. This can be due to either of the following conditions:
// * measured or estimated matrix is nil
// * either of the supplied data matrices does not have at least 2 columns
// * gonum plot fails to be created
func New2DPlot(truth, measured, estimated *mat.Dense) (*plot.Plot, error) {
	if measured == nil || estimated == nil {
		return nil, fmt.Errorf("invalid data supplied")
	}

	for _, m := range []*mat.Dense{truth, measured, estimated} {
		if m == nil {
			continue
		}
		if _, c := m.Dims(); c < 2 {
			return nil, fmt.Errorf("invalid data dimensions")
		}
	}

	p := plot.New()

	p.Title.Text = "Tracking"
	p.X.Label.Text = "px"
	p.Y.Label.Text = "py"

	legend := plot.NewLegend()
	legend.Top = true
	p.Legend = legend

	p.Add(plotter.NewGrid())

	if truth != nil {
		// Make a line plotter for ground truth
		truthLine, err := plotter.NewLine(makePoints(truth))
		if err != nil {
			return nil, fmt.Errorf("failed to create line: %w", err)
		}
		truthLine.LineStyle.Color = color.RGBA{R: 255, B: 128, A: 255}
		truthLine.LineStyle.Width = vg.Points(1)

		p.Add(truthLine)
		p.Legend.Add("truth", truthLine)
	}

	// Make a scatter plotter for measurement data
	measScatter, err := plotter.NewScatter(makePoints(measured))
	if err != nil {
		return nil, fmt.Errorf("failed to create scatter: %w", err)
	}
	measScatter.GlyphStyle.Color = color.RGBA{G: 255, A: 128}
	measScatter.GlyphStyle.Radius = vg.Points(2)

	p.Add(measScatter)
	p.Legend.Add("measurement", measScatter)

	// Make a scatter plotter for estimates
	estScatter, err := plotter.NewScatter(makePoints(estimated))
	if err != nil {
		return nil, fmt.Errorf("failed to create scatter: %w", err)
	}
	estScatter.GlyphStyle.Color = color.RGBA{R: 169, G: 169, B: 169}
	estScatter.Shape = draw.CrossGlyph{}
	estScatter.GlyphStyle.Radius = vg.Points(2)

	p.Add(estScatter)
	p.Legend.Add("estimate", estScatter)

	return p, nil
}

func makePoints(m *mat.Dense) plotter.XYs {
	r, _ := m.Dims()
	pts := make(plotter.XYs, r)
	for i := 0; i < r; i++ {
		pts[i].X = m.At(i, 0)
		pts[i].Y = m.At(i, 1)
	}

	return pts
}
