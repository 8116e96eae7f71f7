// Package monitor renders debug charts of the latest occupancy grid.
package monitor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/OpenSourceIronman/BikeRADAR/internal/grid"
	"github.com/OpenSourceIronman/BikeRADAR/internal/objects"
	"github.com/OpenSourceIronman/BikeRADAR/internal/pipeline"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// surfaceColors keeps each surface the same colour across both renderers.
var surfaceColors = map[grid.Surface]string{
	grid.Past:       "#3e4989",
	grid.Current:    "#35b779",
	grid.Stationary: "#fde725",
}

// Charts serves debug renderings of the engine's latest snapshot.
type Charts struct {
	engine *pipeline.Engine
}

func NewCharts(engine *pipeline.Engine) *Charts {
	return &Charts{engine: engine}
}

// AttachRoutes mounts the chart endpoints under /debug/grid/ on mux. Access
// is limited the same way as the rest of /debug/.
func (c *Charts) AttachRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.Handle("grid/polar", "Scatter of the latest grid surfaces (HTML)", http.HandlerFunc(c.handleGridPolar))
	debug.Handle("grid/plot.png", "Scatter of the latest grid surfaces and objects (PNG)", http.HandlerFunc(c.handleGridPlot))
}

func (c *Charts) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// surfacesFromQuery parses ?surface=a,b. An empty value selects all surfaces.
func surfacesFromQuery(r *http.Request) ([]grid.Surface, error) {
	raw := r.URL.Query().Get("surface")
	if raw == "" {
		return grid.Surfaces, nil
	}
	var out []grid.Surface
	for _, name := range strings.Split(raw, ",") {
		s, err := grid.ParseSurface(name)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// latestFor resolves the request's surfaces and the latest cycle, writing
// an error response when either is unavailable.
func (c *Charts) latestFor(w http.ResponseWriter, r *http.Request) (*pipeline.CycleResult, []grid.Surface, bool) {
	surfaces, err := surfacesFromQuery(r)
	if err != nil {
		c.writeJSONError(w, http.StatusBadRequest, err.Error())
		return nil, nil, false
	}
	res := c.engine.Latest()
	if res == nil {
		c.writeJSONError(w, http.StatusServiceUnavailable, "no scan cycle has completed yet")
		return nil, nil, false
	}
	return res, surfaces, true
}

// handleGridPolar renders the selected surfaces as a display-frame scatter,
// one series per surface.
func (c *Charts) handleGridPolar(w http.ResponseWriter, r *http.Request) {
	res, surfaces, ok := c.latestFor(w, r)
	if !ok {
		return
	}

	pad := float64(res.Snapshot.MaxRadius) * 1.05

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Radar Grid (Polar->XY)", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Radar Occupancy Grid", Subtitle: fmt.Sprintf("cycle=%d objects=%d", res.Cycle, len(res.Objects))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y", NameLocation: "middle", NameGap: 30}),
	)

	for _, s := range surfaces {
		cells, err := res.Snapshot.Points(s)
		if err != nil {
			c.writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		data := make([]opts.ScatterData, 0, len(cells))
		for _, cell := range cells {
			p := objects.DisplayPosition(cell.Radius, cell.Angle)
			data = append(data, opts.ScatterData{Value: []interface{}{p.X, p.Y, cell.String()}})
		}
		scatter.AddSeries(s.String(), data,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: surfaceColors[s]}),
		)
	}

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		c.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
