package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenSourceIronman/BikeRADAR/internal/cluster"
	"github.com/OpenSourceIronman/BikeRADAR/internal/grid"
	"github.com/OpenSourceIronman/BikeRADAR/internal/motion"
	"github.com/OpenSourceIronman/BikeRADAR/internal/objects"
	"github.com/OpenSourceIronman/BikeRADAR/internal/sensor"
	"github.com/OpenSourceIronman/BikeRADAR/internal/timeutil"
)

var (
	referencePast = []grid.Cell{{Radius: 60, Angle: 0}, {Radius: 60, Angle: 3}}

	referenceCurrent = []grid.Cell{
		{Radius: 40, Angle: 0}, {Radius: 40, Angle: 3}, {Radius: 80, Angle: 0},
		{Radius: 100, Angle: 359}, {Radius: 100, Angle: 1}, {Radius: 100, Angle: 2},
		{Radius: 100, Angle: 3}, {Radius: 101, Angle: 3}, {Radius: 102, Angle: 4},
		{Radius: 108, Angle: 5}, {Radius: 103, Angle: 4},
	}

	referenceParams = motion.Params{Velocity: 10, PollRate: 2}
)

func newEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	if opts.MaxRadius == 0 {
		opts.MaxRadius = grid.HardMaxRadius
	}
	e, err := NewEngine(opts)
	require.NoError(t, err)
	return e
}

func TestNewEngine_RejectsBadRadius(t *testing.T) {
	_, err := NewEngine(Options{MaxRadius: 301})
	assert.ErrorIs(t, err, grid.ErrConfiguration)
}

func TestRunCycle_ReferenceScenario(t *testing.T) {
	for _, mode := range []cluster.Mode{cluster.ModeTwoPass, cluster.ModeConnected} {
		t.Run(mode.String(), func(t *testing.T) {
			e := newEngine(t, Options{Params: referenceParams, Mode: mode})
			assert.Nil(t, e.Latest())

			first, err := e.RunCycle(sensor.Frame{Cells: referencePast})
			require.NoError(t, err)
			assert.Equal(t, 1, first.Cycle)
			assert.Zero(t, first.StationaryCells)
			assert.Empty(t, first.Objects)

			second, err := e.RunCycle(sensor.Frame{Cells: referenceCurrent})
			require.NoError(t, err)
			assert.Equal(t, 2, second.Cycle)
			assert.NotEqual(t, first.CycleID, second.CycleID)
			assert.Equal(t, 11, second.CurrentCells)
			assert.Equal(t, 1, second.StationaryCells)
			assert.Equal(t, mode, second.Mode)

			wantPoints := []cluster.DetectionPoint{{Radius: 40, Angle: 0, GroupID: 0}}
			if diff := cmp.Diff(wantPoints, second.Points); diff != "" {
				t.Errorf("points mismatch (-want +got):\n%s", diff)
			}

			require.Len(t, second.Objects, 1)
			assert.Equal(t, []objects.Position{{X: 0, Y: 40}}, second.Objects[0].Positions())

			past, err := second.Snapshot.Points(grid.Past)
			require.NoError(t, err)
			assert.Equal(t, referencePast, past)

			assert.Same(t, second, e.Latest())
		})
	}
}

func TestRunCycle_IdempotentAcrossEngines(t *testing.T) {
	frames := []sensor.Frame{
		{Cells: referencePast},
		{Cells: referenceCurrent},
		{NoData: true},
		{Cells: referenceCurrent},
	}

	run := func() [][]objects.StationaryObject {
		e := newEngine(t, Options{Params: referenceParams})
		var out [][]objects.StationaryObject
		for _, f := range frames {
			res, err := e.RunCycle(f)
			require.NoError(t, err)
			out = append(out, res.Objects)
		}
		return out
	}

	if diff := cmp.Diff(run(), run()); diff != "" {
		t.Errorf("repeated runs differ (-first +second):\n%s", diff)
	}
}

func TestRunCycle_SteadyState(t *testing.T) {
	// With no motion, axis cells back-project onto themselves.
	frame := sensor.Frame{Cells: []grid.Cell{
		{Radius: 10, Angle: 0}, {Radius: 11, Angle: 0}, {Radius: 100, Angle: 90},
	}}
	e := newEngine(t, Options{Params: motion.Params{}})

	first, err := e.RunCycle(frame)
	require.NoError(t, err)
	assert.Empty(t, first.Objects)

	second, err := e.RunCycle(frame)
	require.NoError(t, err)
	third, err := e.RunCycle(frame)
	require.NoError(t, err)

	assert.Equal(t, 3, second.StationaryCells)
	require.Len(t, second.Objects, 2)
	assert.Equal(t, []objects.PolarPoint{{Radius: 10, Angle: 0}, {Radius: 11, Angle: 0}}, second.Objects[0].Points)
	if diff := cmp.Diff(second.Objects, third.Objects); diff != "" {
		t.Errorf("steady-state cycles differ (-second +third):\n%s", diff)
	}
}

func TestRunCycle_NoDataClearsCurrent(t *testing.T) {
	e := newEngine(t, Options{Params: motion.Params{}})
	frame := sensor.Frame{Cells: []grid.Cell{{Radius: 10, Angle: 0}}}

	_, err := e.RunCycle(frame)
	require.NoError(t, err)

	res, err := e.RunCycle(sensor.Frame{NoData: true})
	require.NoError(t, err)
	assert.True(t, res.NoData)
	assert.Zero(t, res.CurrentCells)
	assert.Zero(t, res.StationaryCells)
	assert.NotNil(t, res.Objects)

	// The empty surface became the past, so nothing matches next time.
	res, err = e.RunCycle(frame)
	require.NoError(t, err)
	assert.Zero(t, res.StationaryCells)
}

func TestRunCycle_OutOfRangeCellFailsCycle(t *testing.T) {
	e := newEngine(t, Options{MaxRadius: 50})

	ok, err := e.RunCycle(sensor.Frame{Cells: []grid.Cell{{Radius: 5, Angle: 5}}})
	require.NoError(t, err)

	_, err = e.RunCycle(sensor.Frame{Cells: []grid.Cell{{Radius: 7, Angle: 7}, {Radius: 60, Angle: 0}}})
	assert.ErrorIs(t, err, grid.ErrInvalidIndex)
	assert.Same(t, ok, e.Latest())

	// The rejected frame leaves the live grid as the last good cycle left it.
	for _, s := range []grid.Surface{grid.Past, grid.Current} {
		got, err := e.grid.Points(s)
		require.NoError(t, err)
		assert.Equal(t, []grid.Cell{{Radius: 5, Angle: 5}}, got, s.String())
	}

	next, err := e.RunCycle(sensor.Frame{})
	require.NoError(t, err)
	assert.Equal(t, 2, next.Cycle)
}

func TestRunCycle_SnapshotIsImmutable(t *testing.T) {
	e := newEngine(t, Options{})
	res, err := e.RunCycle(sensor.Frame{Cells: []grid.Cell{{Radius: 1, Angle: 1}}})
	require.NoError(t, err)

	_, err = e.RunCycle(sensor.Frame{Cells: []grid.Cell{{Radius: 2, Angle: 2}, {Radius: 3, Angle: 3}}})
	require.NoError(t, err)

	cur, err := res.Snapshot.Points(grid.Current)
	require.NoError(t, err)
	assert.Equal(t, []grid.Cell{{Radius: 1, Angle: 1}}, cur)
}

func TestRunCycle_ConcurrentLatestReaders(t *testing.T) {
	e := newEngine(t, Options{Params: referenceParams})

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if res := e.Latest(); res != nil {
					_ = res.Snapshot.Count(grid.Current)
				}
			}
		}()
	}

	for i := 0; i < 20; i++ {
		_, err := e.RunCycle(sensor.Frame{Cells: referenceCurrent})
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
	assert.Equal(t, 20, e.Latest().Cycle)
}

func recv(t *testing.T, ch <-chan *CycleResult) *CycleResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a cycle")
		return nil
	}
}

func TestRun_PacedByClock(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC))
	e := newEngine(t, Options{Params: referenceParams, Clock: clock})
	assert.Equal(t, 500*time.Millisecond, e.Interval())

	src := sensor.NewFixtureSource(sensor.Frame{Cells: referencePast}, sensor.Frame{Cells: referenceCurrent})
	results := make(chan *CycleResult, 4)
	sink := SinkFunc(func(_ context.Context, res *CycleResult) error {
		results <- res
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx, src, sink) }()

	first := recv(t, results)
	assert.Equal(t, 1, first.Cycle)
	assert.Equal(t, 1, clock.TickerCount())

	select {
	case <-results:
		t.Fatal("second cycle ran before the ticker fired")
	case <-time.After(20 * time.Millisecond):
	}

	clock.Advance(500 * time.Millisecond)
	second := recv(t, results)
	assert.Equal(t, 2, second.Cycle)
	assert.Equal(t, 1, second.StationaryCells)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_ZeroPollRate(t *testing.T) {
	e := newEngine(t, Options{Params: motion.Params{Velocity: 1}})
	err := e.Run(context.Background(), sensor.NewFixtureSource())
	assert.ErrorIs(t, err, grid.ErrConfiguration)
}

type scriptedSource struct {
	mu     sync.Mutex
	errs   []error
	frames []sensor.Frame
}

func (s *scriptedSource) Scan(ctx context.Context) (sensor.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return sensor.Frame{}, err
		}
	}
	if len(s.frames) == 0 {
		return sensor.Frame{NoData: true}, sensor.ErrNoData
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return f, nil
}

func TestRun_ScanErrorsAndSinkErrors(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	e := newEngine(t, Options{Params: referenceParams, Clock: clock})

	src := &scriptedSource{
		errs:   []error{errors.New("port unplugged"), nil},
		frames: []sensor.Frame{{Cells: []grid.Cell{{Radius: 1, Angle: 1}}}},
	}

	results := make(chan *CycleResult, 4)
	failing := SinkFunc(func(context.Context, *CycleResult) error { return errors.New("disk full") })
	collecting := SinkFunc(func(_ context.Context, res *CycleResult) error {
		results <- res
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx, src, failing, collecting) }()

	// The first scan fails, so no cycle runs until the next tick.
	select {
	case <-results:
		t.Fatal("cycle ran despite scan error")
	case <-time.After(20 * time.Millisecond):
	}

	clock.Advance(500 * time.Millisecond)
	res := recv(t, results)
	assert.Equal(t, 1, res.Cycle)
	assert.Equal(t, 1, res.CurrentCells)

	// Source exhausted: the cycle still runs, with no data.
	clock.Advance(500 * time.Millisecond)
	res = recv(t, results)
	assert.True(t, res.NoData)
	assert.Zero(t, res.CurrentCells)

	cancel()
	<-errCh
}
