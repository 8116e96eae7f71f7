package pipeline

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/OpenSourceIronman/BikeRADAR/internal/cluster"
	"github.com/OpenSourceIronman/BikeRADAR/internal/grid"
	"github.com/OpenSourceIronman/BikeRADAR/internal/motion"
	"github.com/OpenSourceIronman/BikeRADAR/internal/objects"
	"github.com/OpenSourceIronman/BikeRADAR/internal/sensor"
	"github.com/OpenSourceIronman/BikeRADAR/internal/timeutil"
)

// Options configures an Engine.
type Options struct {
	MaxRadius int
	Params    motion.Params
	Mode      cluster.Mode
	// Clock defaults to timeutil.RealClock.
	Clock timeutil.Clock
}

// CycleResult is everything one cycle produced. It is never modified after
// RunCycle returns and may be shared between goroutines.
type CycleResult struct {
	Cycle     int           `json:"cycle"`
	CycleID   uuid.UUID     `json:"cycle_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Params    motion.Params `json:"params"`
	Mode      cluster.Mode  `json:"-"`

	NoData          bool `json:"no_data"`
	Partial         bool `json:"partial"`
	CurrentCells    int  `json:"current_cells"`
	StationaryCells int  `json:"stationary_cells"`

	Points   []cluster.DetectionPoint   `json:"points"`
	Objects  []objects.StationaryObject `json:"objects"`
	Snapshot *grid.Snapshot             `json:"-"`
}

// Engine owns the occupancy grid and runs cycles against it. Cycles are
// serialised; Latest may be called from any goroutine.
type Engine struct {
	mu        sync.Mutex
	grid      *grid.Grid
	comp      *motion.Compensator
	clusterer cluster.Clusterer
	clock     timeutil.Clock
	cycle     int

	latest atomic.Pointer[CycleResult]
}

// NewEngine builds an engine with an empty grid.
func NewEngine(opts Options) (*Engine, error) {
	g, err := grid.New(opts.MaxRadius)
	if err != nil {
		return nil, err
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Engine{
		grid:      g,
		comp:      motion.New(opts.Params),
		clusterer: cluster.New(opts.Mode),
		clock:     clock,
	}, nil
}

// MaxRadius returns the grid size.
func (e *Engine) MaxRadius() int { return e.grid.MaxRadius() }

// Params returns the motion parameters in use.
func (e *Engine) Params() motion.Params { return e.comp.Params }

// Mode returns the clustering mode in use.
func (e *Engine) Mode() cluster.Mode { return e.clusterer.Mode() }

// Latest returns the most recent cycle result, or nil before the first
// cycle completes.
func (e *Engine) Latest() *CycleResult {
	return e.latest.Load()
}

// RunCycle runs one full cycle on frame. A no-data frame runs with an empty
// current surface. Cells outside the grid fail the cycle before any state
// changes.
func (e *Engine) RunCycle(frame sensor.Frame) (*CycleResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	started := e.clock.Now()
	g := e.grid

	if frame.NoData {
		if err := g.Reset(grid.Current); err != nil {
			return nil, err
		}
	} else if err := g.Fill(grid.Current, frame.Cells); err != nil {
		return nil, fmt.Errorf("cycle %d: fill current surface: %w", e.cycle+1, err)
	}

	stationary, err := e.comp.FindStationaryPoints(g)
	if err != nil {
		return nil, fmt.Errorf("cycle %d: compensate: %w", e.cycle+1, err)
	}

	points, err := cluster.ClusterSurface(e.clusterer, g, grid.Stationary)
	if err != nil {
		return nil, fmt.Errorf("cycle %d: cluster: %w", e.cycle+1, err)
	}
	objs := objects.Aggregate(points)

	snap := g.Snapshot()
	g.Advance()
	e.cycle++

	res := &CycleResult{
		Cycle:           e.cycle,
		CycleID:         uuid.New(),
		StartedAt:       started,
		Duration:        e.clock.Since(started),
		Params:          e.comp.Params,
		Mode:            e.clusterer.Mode(),
		NoData:          frame.NoData,
		Partial:         frame.Partial,
		CurrentCells:    snap.Count(grid.Current),
		StationaryCells: stationary,
		Points:          points,
		Objects:         objs,
		Snapshot:        snap,
	}
	e.latest.Store(res)

	diagf("cycle %d: current=%d stationary=%d objects=%d (%s)",
		res.Cycle, res.CurrentCells, res.StationaryCells, len(objs), res.Duration)
	for _, o := range objs {
		tracef("cycle %d: %s", res.Cycle, o)
	}
	return res, nil
}
