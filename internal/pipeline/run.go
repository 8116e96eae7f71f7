package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OpenSourceIronman/BikeRADAR/internal/grid"
	"github.com/OpenSourceIronman/BikeRADAR/internal/sensor"
)

// Sink receives every completed cycle.
type Sink interface {
	HandleCycle(ctx context.Context, res *CycleResult) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, res *CycleResult) error

// HandleCycle calls f.
func (f SinkFunc) HandleCycle(ctx context.Context, res *CycleResult) error {
	return f(ctx, res)
}

// Interval is the time between cycles, 1/PollRate. It is zero when the
// poll rate is not positive.
func (e *Engine) Interval() time.Duration {
	if e.comp.Params.PollRate <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / e.comp.Params.PollRate)
}

// Run runs one cycle immediately and then one per poll interval until ctx
// is cancelled. Each cycle pulls a frame from src, runs to completion and
// is handed to every sink in order. Cancellation is only observed between
// cycles. Run returns ctx.Err() on cancellation.
func (e *Engine) Run(ctx context.Context, src sensor.Source, sinks ...Sink) error {
	interval := e.Interval()
	if interval <= 0 {
		return fmt.Errorf("%w: poll rate must be positive to run continuously", grid.ErrConfiguration)
	}

	ticker := e.clock.NewTicker(interval)
	defer ticker.Stop()

	diagf("cycle loop started: interval=%s max_radius=%d mode=%s",
		interval, e.MaxRadius(), e.Mode())

	for {
		e.step(ctx, src, sinks)

		select {
		case <-ctx.Done():
			diagf("cycle loop stopped after %d cycles", e.cycleCount())
			return ctx.Err()
		case <-ticker.C():
		}
	}
}

func (e *Engine) step(ctx context.Context, src sensor.Source, sinks []Sink) {
	if ctx.Err() != nil {
		return
	}

	frame, err := src.Scan(ctx)
	switch {
	case errors.Is(err, sensor.ErrNoData):
		frame = sensor.Frame{NoData: true}
	case err != nil:
		if ctx.Err() == nil {
			opsf("scan failed, skipping cycle: %v", err)
		}
		return
	}

	res, err := e.RunCycle(frame)
	if err != nil {
		opsf("cycle failed: %v", err)
		return
	}

	for _, s := range sinks {
		if err := s.HandleCycle(ctx, res); err != nil {
			opsf("cycle %d: sink error: %v", res.Cycle, err)
		}
	}
}

func (e *Engine) cycleCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cycle
}
