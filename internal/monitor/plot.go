package monitor

import (
	"fmt"
	"image/color"
	"net/http"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/OpenSourceIronman/BikeRADAR/internal/grid"
	"github.com/OpenSourceIronman/BikeRADAR/internal/objects"
	"github.com/OpenSourceIronman/BikeRADAR/internal/pipeline"
)

const plotSize = 8 * vg.Inch

func hexColor(hex string) color.Color {
	v, err := strconv.ParseUint(hex[1:], 16, 32)
	if err != nil {
		return color.Black
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
}

// GridPlot draws the selected surfaces in the display frame and outlines
// each stationary object of the cycle.
func GridPlot(res *pipeline.CycleResult, surfaces []grid.Surface) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Cycle %d - %d stationary objects", res.Cycle, len(res.Objects))
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"

	limit := float64(res.Snapshot.MaxRadius)
	p.X.Min, p.X.Max = -limit, limit
	p.Y.Min, p.Y.Max = -limit, limit
	p.Add(plotter.NewGrid())

	for _, s := range surfaces {
		cells, err := res.Snapshot.Points(s)
		if err != nil {
			return nil, err
		}
		if len(cells) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(cells))
		for i, c := range cells {
			pos := objects.DisplayPosition(c.Radius, c.Angle)
			pts[i] = plotter.XY{X: pos.X, Y: pos.Y}
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("%s scatter: %w", s, err)
		}
		sc.GlyphStyle.Color = hexColor(surfaceColors[s])
		sc.GlyphStyle.Radius = vg.Points(1.5)
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(sc)
		p.Legend.Add(s.String(), sc)
	}

	for _, o := range res.Objects {
		positions := o.Positions()
		if len(positions) < 2 {
			continue
		}
		pts := make(plotter.XYs, len(positions))
		for i, pos := range positions {
			pts[i] = plotter.XY{X: pos.X, Y: pos.Y}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("object %d outline: %w", o.ID, err)
		}
		line.Width = vg.Points(1)
		line.Color = color.RGBA{R: 220, G: 50, B: 47, A: 255}
		p.Add(line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

func (c *Charts) handleGridPlot(w http.ResponseWriter, r *http.Request) {
	res, surfaces, ok := c.latestFor(w, r)
	if !ok {
		return
	}

	p, err := GridPlot(res, surfaces)
	if err != nil {
		c.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to build plot: %v", err))
		return
	}
	wt, err := p.WriterTo(plotSize, plotSize, "png")
	if err != nil {
		c.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render plot: %v", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = wt.WriteTo(w)
}
