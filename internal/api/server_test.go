package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenSourceIronman/BikeRADAR/internal/config"
	"github.com/OpenSourceIronman/BikeRADAR/internal/db"
	"github.com/OpenSourceIronman/BikeRADAR/internal/grid"
	"github.com/OpenSourceIronman/BikeRADAR/internal/motion"
	"github.com/OpenSourceIronman/BikeRADAR/internal/pipeline"
	"github.com/OpenSourceIronman/BikeRADAR/internal/sensor"
)

func newTestEngine(t *testing.T) *pipeline.Engine {
	t.Helper()
	e, err := pipeline.NewEngine(pipeline.Options{
		MaxRadius: grid.HardMaxRadius,
		Params:    motion.Params{Velocity: 10, PollRate: 2},
	})
	require.NoError(t, err)
	return e
}

// runReference runs the two-cycle reference scene, recording each cycle
// in database when it is non-nil.
func runReference(t *testing.T, e *pipeline.Engine, database *db.DB) *pipeline.CycleResult {
	t.Helper()
	frames := []sensor.Frame{
		{Cells: []grid.Cell{{Radius: 60, Angle: 0}, {Radius: 60, Angle: 3}}},
		{Cells: []grid.Cell{{Radius: 40, Angle: 0}, {Radius: 40, Angle: 3}, {Radius: 80, Angle: 0}}},
	}
	var res *pipeline.CycleResult
	for _, f := range frames {
		var err error
		res, err = e.RunCycle(f)
		require.NoError(t, err)
		if database != nil {
			require.NoError(t, database.RecordCycle(context.Background(), res))
		}
	}
	return res
}

func setupTestServer(t *testing.T) (*Server, *pipeline.Engine, *db.DB) {
	t.Helper()
	database, err := db.NewDB(filepath.Join(t.TempDir(), "radar.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	e := newTestEngine(t)
	return NewServer(e, database, config.Empty()), e, database
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestGridPoints_BeforeFirstCycle(t *testing.T) {
	server := NewServer(newTestEngine(t), nil, nil)
	w := get(t, server.ServeMux(), "/api/grid/points?surface=current")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "error")
}

func TestGridPoints(t *testing.T) {
	server, e, _ := setupTestServer(t)
	res := runReference(t, e, nil)
	mux := server.ServeMux()

	tests := []struct {
		query string
		want  [][2]int
	}{
		{"", [][2]int{{40, 0}}},
		{"?surface=stationary", [][2]int{{40, 0}}},
		{"?surface=current", [][2]int{{40, 0}, {40, 3}, {80, 0}}},
		{"?surface=PAST", [][2]int{{60, 0}, {60, 3}}},
	}
	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			w := get(t, mux, "/api/grid/points"+tc.query)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var body struct {
				Surface string   `json:"surface"`
				Cycle   int      `json:"cycle"`
				CycleID string   `json:"cycle_id"`
				Points  [][2]int `json:"points"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.want, body.Points)
			assert.Equal(t, 2, body.Cycle)
			assert.Equal(t, res.CycleID.String(), body.CycleID)
		})
	}
}

func TestGridPoints_BadRequests(t *testing.T) {
	server, e, _ := setupTestServer(t)
	runReference(t, e, nil)
	mux := server.ServeMux()

	w := get(t, mux, "/api/grid/points?surface=future")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "future")

	req := httptest.NewRequest(http.MethodPost, "/api/grid/points", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestListObjects(t *testing.T) {
	server, e, _ := setupTestServer(t)
	runReference(t, e, nil)

	w := get(t, server.ServeMux(), "/api/objects")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Cycle           int `json:"cycle"`
		StationaryCells int `json:"stationary_cells"`
		Objects         []struct {
			ID        int `json:"id"`
			GroupID   int `json:"group_id"`
			Points    []struct{ Radius, Angle int }
			Positions []struct{ X, Y float64 }
			Outline   struct {
				Radius []int `json:"radius"`
				Angle  []int `json:"angle"`
			} `json:"outline"`
			OutlineWKT string `json:"outline_wkt"`
			Summary    string `json:"summary"`
		} `json:"objects"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	assert.Equal(t, 2, body.Cycle)
	assert.Equal(t, 1, body.StationaryCells)
	require.Len(t, body.Objects, 1)
	o := body.Objects[0]
	assert.Equal(t, 0, o.ID)
	assert.Equal(t, 0, o.GroupID)
	assert.Equal(t, []int{40}, o.Outline.Radius)
	assert.Equal(t, []int{0}, o.Outline.Angle)
	require.Len(t, o.Positions, 1)
	assert.InDelta(t, 0.0, o.Positions[0].X, 1e-9)
	assert.InDelta(t, 40.0, o.Positions[0].Y, 1e-9)
	assert.True(t, strings.HasPrefix(o.OutlineWKT, "POINT"))
	assert.True(t, strings.HasPrefix(o.Summary, "StationaryObject #0"))
}

func TestListCycles(t *testing.T) {
	server, e, database := setupTestServer(t)
	res := runReference(t, e, database)
	mux := server.ServeMux()

	w := get(t, mux, "/api/cycles")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var cycles []db.CycleRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cycles))
	require.Len(t, cycles, 2)
	assert.Equal(t, res.CycleID.String(), cycles[0].CycleID)

	w = get(t, mux, "/api/cycles?limit=1")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cycles))
	assert.Len(t, cycles, 1)

	for _, bad := range []string{"0", "-3", "many"} {
		w = get(t, mux, "/api/cycles?limit="+bad)
		assert.Equal(t, http.StatusBadRequest, w.Code, "limit=%s", bad)
	}

	w = get(t, mux, "/api/cycles/"+res.CycleID.String()+"/objects")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var objs []db.ObjectRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &objs))
	require.Len(t, objs, 1)
	assert.Equal(t, 1, objs[0].PointCount)

	w = get(t, mux, "/api/cycles/unknown/objects")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())
}

func TestListCycles_WithoutDatabase(t *testing.T) {
	server := NewServer(newTestEngine(t), nil, nil)
	mux := server.ServeMux()

	assert.Equal(t, http.StatusServiceUnavailable, get(t, mux, "/api/cycles").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, mux, "/api/cycles/x/objects").Code)
}

func TestShowConfig(t *testing.T) {
	mode := "connected"
	radius := 120
	server := NewServer(newTestEngine(t), nil, &config.RadarConfig{ClusterMode: &mode, MaxRadius: &radius})

	w := get(t, server.ServeMux(), "/api/config")
	require.Equal(t, http.StatusOK, w.Code)

	var eff config.Effective
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &eff))
	assert.Equal(t, "connected", eff.ClusterMode)
	assert.Equal(t, 120, eff.MaxRadius)
	assert.Equal(t, 2.0, eff.PollRate)
	assert.Equal(t, "mps", eff.VelocityUnits)
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := get(t, handler, "/api/objects?x=1")

	assert.Equal(t, http.StatusTeapot, w.Code)
	out := buf.String()
	assert.Contains(t, out, "418")
	assert.Contains(t, out, "GET")
	assert.Contains(t, out, "/api/objects?x=1")
}

func TestStatusCodeColor(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, colorBoldGreen + "200" + colorReset},
		{304, colorYellow + "304" + colorReset},
		{404, colorBoldRed + "404" + colorReset},
		{503, colorBoldRed + "503" + colorReset},
		{101, "101"},
	}
	for _, tc := range tests {
		if got := statusCodeColor(tc.code); got != tc.want {
			t.Errorf("statusCodeColor(%d) = %q, want %q", tc.code, got, tc.want)
		}
	}
}
