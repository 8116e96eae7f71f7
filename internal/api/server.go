// Package api serves the latest cycle and the cycle history over HTTP.
package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/OpenSourceIronman/BikeRADAR/internal/config"
	"github.com/OpenSourceIronman/BikeRADAR/internal/db"
	"github.com/OpenSourceIronman/BikeRADAR/internal/grid"
	"github.com/OpenSourceIronman/BikeRADAR/internal/objects"
	"github.com/OpenSourceIronman/BikeRADAR/internal/pipeline"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server answers queries against a running engine. The database is
// optional; without it the history endpoints report 503.
type Server struct {
	engine *pipeline.Engine
	db     *db.DB
	cfg    *config.RadarConfig
}

func NewServer(engine *pipeline.Engine, database *db.DB, cfg *config.RadarConfig) *Server {
	if cfg == nil {
		cfg = config.Empty()
	}
	return &Server{
		engine: engine,
		db:     database,
		cfg:    cfg,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	s.AttachRoutes(mux)
	return mux
}

// AttachRoutes registers the /api/ endpoints on mux.
func (s *Server) AttachRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/grid/points", s.listGridPoints)
	mux.HandleFunc("/api/objects", s.listObjects)
	mux.HandleFunc("/api/cycles", s.listCycles)
	mux.HandleFunc("/api/cycles/{id}/objects", s.listCycleObjects)
	mux.HandleFunc("/api/config", s.showConfig)
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// latest returns the most recent cycle or writes 503 and returns nil.
func (s *Server) latest(w http.ResponseWriter) *pipeline.CycleResult {
	res := s.engine.Latest()
	if res == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "No scan cycle has completed yet")
	}
	return res
}

type gridPointsResponse struct {
	Surface grid.Surface `json:"surface"`
	Cycle   int          `json:"cycle"`
	CycleID string       `json:"cycle_id"`
	Points  [][2]int     `json:"points"`
}

func (s *Server) listGridPoints(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	surface := grid.Stationary
	if name := r.URL.Query().Get("surface"); name != "" {
		parsed, err := grid.ParseSurface(name)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		surface = parsed
	}

	res := s.latest(w)
	if res == nil {
		return
	}

	cells, err := res.Snapshot.Points(surface)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	points := make([][2]int, len(cells))
	for i, c := range cells {
		points[i] = [2]int{c.Radius, c.Angle}
	}

	resp := gridPointsResponse{
		Surface: surface,
		Cycle:   res.Cycle,
		CycleID: res.CycleID.String(),
		Points:  points,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write grid points")
		return
	}
}

// objectView is a StationaryObject with its derived display fields.
type objectView struct {
	objects.StationaryObject
	Positions  []objects.Position `json:"positions"`
	OutlineWKT string             `json:"outline_wkt"`
	Summary    string             `json:"summary"`
}

type objectsResponse struct {
	Cycle           int          `json:"cycle"`
	CycleID         string       `json:"cycle_id"`
	StartedAt       time.Time    `json:"started_at"`
	StationaryCells int          `json:"stationary_cells"`
	Objects         []objectView `json:"objects"`
}

func (s *Server) listObjects(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	res := s.latest(w)
	if res == nil {
		return
	}

	views := make([]objectView, len(res.Objects))
	for i, o := range res.Objects {
		views[i] = objectView{
			StationaryObject: o,
			Positions:        o.Positions(),
			OutlineWKT:       o.OutlineWKT(),
			Summary:          o.String(),
		}
	}

	resp := objectsResponse{
		Cycle:           res.Cycle,
		CycleID:         res.CycleID.String(),
		StartedAt:       res.StartedAt,
		StationaryCells: res.StationaryCells,
		Objects:         views,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write objects")
		return
	}
}

func (s *Server) listCycles(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "Cycle history is not being recorded")
		return
	}

	limit := 0 // db default
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	cycles, err := s.db.RecentCycles(r.Context(), limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve cycles: %v", err))
		return
	}

	if err := json.NewEncoder(w).Encode(cycles); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write cycles")
		return
	}
}

func (s *Server) listCycleObjects(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "Cycle history is not being recorded")
		return
	}

	objs, err := s.db.ObjectsForCycle(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve objects: %v", err))
		return
	}

	if err := json.NewEncoder(w).Encode(objs); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write objects")
		return
	}
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := json.NewEncoder(w).Encode(s.cfg.Effective()); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write config")
		return
	}
}
