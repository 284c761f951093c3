package preview

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/pcdfusion/internal/pcd"
)

// TopDownPNG draws the x/y projection of pc, shaded by intensity.
func TopDownPNG(pc *pcd.PointCloud, w io.Writer, opts Options) error {
	s, err := downsample(pc, opts.maxPoints())
	if err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = opts.Title
	if p.Title.Text == "" {
		p.Title.Text = fmt.Sprintf("Top-down (%d of %d points)", len(s.points), s.total)
	}
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"
	p.Add(plotter.NewGrid())

	if len(s.points) > 0 {
		xys := make(plotter.XYs, len(s.points))
		for i, pt := range s.points {
			xys[i] = plotter.XY{X: float64(pt[0]), Y: float64(pt[1])}
		}
		sc, err := plotter.NewScatter(xys)
		if err != nil {
			return fmt.Errorf("scatter: %w", err)
		}
		sc.GlyphStyleFunc = func(i int) draw.GlyphStyle {
			return draw.GlyphStyle{
				Color:  grey(s.norm(s.points[i][3])),
				Radius: vg.Points(1),
				Shape:  draw.CircleGlyph{},
			}
		}
		p.Add(sc)
	}

	// Square extent so distances read the same on both axes.
	pad := s.maxAbs * 1.05
	if pad == 0 {
		pad = 1
	}
	p.X.Min, p.X.Max = -pad, pad
	p.Y.Min, p.Y.Max = -pad, pad

	wt, err := p.WriterTo(8*vg.Inch, 8*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("render png: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

// grey maps 0 to a dark blue-grey and 1 to near white.
func grey(v float64) color.Color {
	c := uint8(40 + v*200)
	return color.RGBA{R: c, G: c, B: uint8(min(255, int(c)+30)), A: 255}
}
